package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	apperrors "leadflow/internal/errors"
	"leadflow/internal/httputil"
	"leadflow/internal/metrics"
	"leadflow/internal/middleware"
	"leadflow/internal/models"
	"leadflow/internal/validation"
	"leadflow/internal/versioning"
)

const userIDHeader = "X-User-ID"

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	cfg     *models.Config
	app     *application
	verbose bool
	server  *http.Server
}

func NewServer(cfg *models.Config, app *application, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		cfg:     cfg,
		app:     app,
		verbose: verbose,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	if s.verbose {
		s.router.Use(middleware.DetailedLogging(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/metrics/prometheus", s.app.pipeline.Handler()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook").Subrouter()
	if limit := s.cfg.Server.WebhookRateLimit; limit > 0 {
		webhook.Use(middleware.NewRateLimiter(limit, time.Minute).Middleware(s.logger))
	}
	webhook.Use(middleware.WebhookObservability(s.logger, "whatsapp"))
	webhook.HandleFunc("/whatsapp", s.handleWhatsAppWebhook()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/notifications").Subrouter()
	api.Use(versioning.Negotiate(s.logger))
	api.HandleFunc("", s.handlePendingNotifications()).Methods(http.MethodGet)
	api.HandleFunc("/read-all", s.handleMarkAllRead()).Methods(http.MethodPost)
	api.HandleFunc("/{id}/read", s.handleMarkRead()).Methods(http.MethodPost)

	history := api.PathPrefix("/history").Subrouter()
	history.Use(versioning.Require(versioning.V1_1_0, s.logger))
	history.HandleFunc("", s.handleHistory()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type pendingResponse struct {
	Success     bool                  `json:"success"`
	Data        []models.Notification `json:"data"`
	UnreadCount int                   `json:"unreadCount"`
	Timestamp   time.Time             `json:"timestamp"`
}

type historyResponse struct {
	Success bool                  `json:"success"`
	Data    []models.Notification `json:"data"`
	Page    int                   `json:"page"`
	Size    int                   `json:"size"`
	Total   int                   `json:"total"`
}

func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := s.cfg.Server.MaxBodyBytes
		if err := validation.ValidateHTTPRequestSize(r, maxBytes); err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				httputil.WriteError(w, r, s.logger, apperrors.NewInvalidPayloadError("body", "body too large"))
				return
			}
			httputil.WriteError(w, r, s.logger, apperrors.NewInvalidPayloadError("body", "failed to read body"))
			return
		}

		signature := r.Header.Get(s.cfg.WhatsApp.SignatureHeader)
		if signature == "" {
			signature = r.Header.Get(constants.AltSignatureHeader)
		}

		result, err := s.app.ingestion.Process(r.Context(), body, signature)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, envelope{Success: true, Data: result})
	}
}

func (s *Server) handlePendingNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validation.ParseUserID(r.Header.Get(userIDHeader))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		since, err := validation.ParseSince(r.URL.Query().Get("last_check"))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}

		pending, err := s.app.notifier.GetPending(r.Context(), userID, since)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		unread, err := s.app.notifier.UnreadCount(r.Context(), userID)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if pending == nil {
			pending = []models.Notification{}
		}

		httputil.WriteJSON(w, s.logger, http.StatusOK, pendingResponse{
			Success:     true,
			Data:        pending,
			UnreadCount: unread,
			Timestamp:   time.Now().UTC(),
		})
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validation.ParseUserID(r.Header.Get(userIDHeader))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		id, err := validation.ParseNotificationID(mux.Vars(r)["id"])
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}

		updated, err := s.app.notifier.MarkRead(r.Context(), id, userID)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if !updated {
			httputil.WriteError(w, r, s.logger, apperrors.NewNotFoundError("notification", mux.Vars(r)["id"]))
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, envelope{Success: true})
	}
}

func (s *Server) handleMarkAllRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validation.ParseUserID(r.Header.Get(userIDHeader))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		n, err := s.app.notifier.MarkAllRead(r.Context(), userID)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, envelope{Success: true, Data: map[string]int64{"updated": n}})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validation.ParseUserID(r.Header.Get(userIDHeader))
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		page, err := httputil.QueryInt(r, "page", 1)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		size, err := httputil.QueryInt(r, "size", constants.DefaultNotificationPageSize)
		if err == nil {
			err = validation.ValidatePageSize(size)
		}
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}

		items, total, err := s.app.notifier.List(r.Context(), userID, page, size)
		if err != nil {
			httputil.WriteError(w, r, s.logger, err)
			return
		}
		if items == nil {
			items = []models.Notification{}
		}
		httputil.WriteJSON(w, s.logger, http.StatusOK, historyResponse{
			Success: true, Data: items, Page: page, Size: size, Total: total,
		})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "kv": "ok"}
		status := http.StatusOK
		if err := s.app.db.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check: database unreachable")
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if err := s.app.store.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check: key-value store unreachable")
			checks["kv"] = "unavailable"
			status = http.StatusServiceUnavailable
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		httputil.WriteJSON(w, s.logger, status, map[string]interface{}{
			"status":        overall,
			"checks":        checks,
			"ai_configured": s.app.classifier.AIConfigured(),
			"ai_breaker":    s.app.classifier.BreakerStats().State,
		})
	}
}

func (s *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, s.logger, http.StatusOK, versioning.NewBuildInfo(Version, GitCommit, BuildTime))
	}
}

// handleMetrics serves the in-process HTTP metrics registry as JSON.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		httputil.WriteJSON(w, s.logger, http.StatusOK, metrics.GetSnapshot())
	}
}
