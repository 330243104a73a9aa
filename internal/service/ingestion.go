package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leadflow/internal/classifier"
	"leadflow/internal/constants"
	apperrors "leadflow/internal/errors"
	"leadflow/internal/features"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
	"leadflow/internal/phone"
	"leadflow/internal/privacy"
	"leadflow/internal/security"
)

// Skip reasons recorded on results and audit events.
const (
	SkipOutgoing    = "outgoing"
	SkipDebounced   = "debounced"
	SkipNoText      = "no_text"
	auditWriteLimit = 5 * time.Second
)

// IngestionResult is the outcome of one delivery.
type IngestionResult struct {
	Accepted       bool                         `json:"accepted"`
	SkippedReason  string                       `json:"skipped_reason,omitempty"`
	Classification *models.ClassificationResult `json:"classification,omitempty"`
	LeadCreated    bool                         `json:"lead_created"`
	LeadID         int64                        `json:"lead_id,omitempty"`
	AlertSent      bool                         `json:"alert_sent"`
	// LeadError and AlertError report failed side effects of an otherwise
	// handled delivery.
	LeadError  string `json:"lead_error,omitempty"`
	AlertError string `json:"alert_error,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IngestionConfig holds the webhook and pipeline settings.
type IngestionConfig struct {
	WebhookSecret string
	// RequireSignature rejects unsigned deliveries even without a secret.
	RequireSignature  bool
	CountryCode       string
	ProcessingTimeout time.Duration
}

// IngestionDeps are the collaborators of the pipeline. Fallback, Flags,
// Metrics and Logger are optional.
type IngestionDeps struct {
	Gate       *DebounceGate
	Resolver   *ContextResolver
	Classifier classifier.Classifier
	Fallback   classifier.Classifier
	Leads      *LeadMaterializer
	Notifier   *NotificationDispatcher
	Audit      AuditStore
	Flags      FlagChecker
	Metrics    *metrics.Pipeline
	Logger     logrus.FieldLogger
}

// Ingestion validates, debounces, classifies and acts on incoming messages.
type Ingestion struct {
	cfg        IngestionConfig
	normalizer *phone.Normalizer
	gate       *DebounceGate
	resolver   *ContextResolver
	classifier classifier.Classifier
	fallback   classifier.Classifier
	leads      *LeadMaterializer
	notifier   *NotificationDispatcher
	audit      AuditStore
	flags      FlagChecker
	metrics    *metrics.Pipeline
	tracer     trace.Tracer
	logger     logrus.FieldLogger
	newID      func() string
}

func NewIngestion(cfg IngestionConfig, deps IngestionDeps) *Ingestion {
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = time.Duration(constants.DefaultProcessingTimeoutSec) * time.Second
	}
	if deps.Fallback == nil {
		deps.Fallback = classifier.NewRuleBased()
	}
	if deps.Flags == nil {
		fm := features.NewFlagManager()
		fm.InitializeDefaults()
		deps.Flags = fm
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Ingestion{
		cfg:        cfg,
		normalizer: phone.NewNormalizer(cfg.CountryCode),
		gate:       deps.Gate,
		resolver:   deps.Resolver,
		classifier: deps.Classifier,
		fallback:   deps.Fallback,
		leads:      deps.Leads,
		notifier:   deps.Notifier,
		audit:      deps.Audit,
		flags:      deps.Flags,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer("leadflow/service"),
		logger:     deps.Logger.WithField(LogFieldComponent, "ingestion"),
		newID:      uuid.NewString,
	}
}

// Process handles one raw webhook delivery. Validation failures return an
// InvalidSignature or InvalidPayload error without side effects. Everything
// after validation runs detached from ctx's cancellation and is audited.
func (s *Ingestion) Process(ctx context.Context, raw []byte, signature string) (*IngestionResult, error) {
	start := time.Now()

	if err := s.verifySignature(raw, signature); err != nil {
		s.metrics.ObserveWebhook("invalid_signature")
		return &IngestionResult{Error: apperrors.GetUserMessage(err)}, err
	}
	msg, err := ParseWebhook(raw)
	if err == nil {
		err = s.normalizeSender(msg)
	}
	if err != nil {
		s.metrics.ObserveWebhook("invalid_payload")
		return &IngestionResult{Error: apperrors.GetUserMessage(err)}, err
	}

	result, err := s.run(ctx, msg)
	s.metrics.ObserveProcessing(time.Since(start))
	return result, err
}

// ProcessDeferred runs an already validated message, typically a merged
// batch from the deferred queue, through the pipeline.
func (s *Ingestion) ProcessDeferred(ctx context.Context, msg *models.IncomingMessage) (*IngestionResult, error) {
	return s.run(ctx, msg)
}

func (s *Ingestion) run(ctx context.Context, msg *models.IncomingMessage) (*IngestionResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProcessingTimeout)
	defer cancel()

	result, err := s.process(ctx, msg)
	switch {
	case err != nil:
		s.metrics.ObserveWebhook("error")
	case result.SkippedReason != "":
		s.metrics.ObserveWebhook("skipped")
	default:
		s.metrics.ObserveWebhook("accepted")
	}
	return result, err
}

// normalizeSender canonicalizes the sender of an incoming message. Outgoing
// messages are skipped later and keep their raw sender.
func (s *Ingestion) normalizeSender(msg *models.IncomingMessage) error {
	if msg.IsOutgoing() {
		return nil
	}
	sender := s.normalizer.Normalize(msg.SenderPhone)
	if sender == "" {
		return apperrors.NewInvalidPayloadError("sender_phone", "sender_phone is not a valid phone number")
	}
	msg.SenderPhone = sender
	return nil
}

func (s *Ingestion) verifySignature(raw []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		if s.cfg.RequireSignature {
			return apperrors.NewInvalidSignatureError("webhook secret not configured")
		}
		return nil
	}
	if err := security.VerifySignature(raw, s.cfg.WebhookSecret, signature); err != nil {
		return apperrors.NewInvalidSignatureError(err.Error())
	}
	return nil
}

func (s *Ingestion) process(ctx context.Context, msg *models.IncomingMessage) (result *IngestionResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.process", trace.WithAttributes(
		attribute.String("message.id", msg.MessageID),
		attribute.String("message.session", msg.SessionID),
		attribute.String("message.direction", string(msg.Direction)),
	))
	defer span.End()

	result = &IngestionResult{Accepted: true}
	event := &models.AutomationEvent{
		ID:          s.newID(),
		MessageID:   msg.MessageID,
		SenderPhone: msg.SenderPhone,
		SessionID:   msg.SessionID,
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "message processing failed")
		}
		s.writeAudit(ctx, event, result)
	}()

	if msg.IsOutgoing() {
		result.SkippedReason = SkipOutgoing
		return result, nil
	}

	text, hasText := msg.Content()
	event.Text = text

	deferred, err := s.debounce(ctx, msg)
	if err != nil {
		result.Accepted = false
		result.Error = err.Error()
		return result, err
	}
	if deferred {
		result.SkippedReason = SkipDebounced
		return result, nil
	}

	if !hasText {
		result.SkippedReason = SkipNoText
		return result, nil
	}

	if err = s.runPipeline(ctx, msg, text, result, event); err != nil {
		result.Accepted = false
		result.Error = err.Error()
	}
	return result, err
}

// debounce reports whether msg was queued behind an open gate. A gate that
// cannot be checked lets the message through.
func (s *Ingestion) debounce(ctx context.Context, msg *models.IncomingMessage) (bool, error) {
	if s.gate == nil {
		return false, nil
	}
	opened, err := s.gate.Acquire(ctx, msg.SenderPhone)
	if err != nil {
		apperrors.LogWarn(s.logger, apperrors.NewCacheError("debounce gate", err),
			"Debounce gate unavailable, processing immediately", messageFields(ctx, msg))
		return false, nil
	}
	if opened {
		return false, nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode deferred message")
	}
	if err := s.gate.Defer(ctx, msg.SenderPhone, payload); err != nil {
		appErr := apperrors.NewCacheError("deferred queue", err)
		apperrors.LogError(s.logger, appErr, "Failed to queue debounced message", messageFields(ctx, msg))
		return false, appErr
	}
	s.metrics.ObserveDeferred()
	s.logger.WithFields(messageFields(ctx, msg)).Debug("Skipping processing: sender debounced, message queued")
	return true, nil
}

// runPipeline resolves context, classifies, decides and executes. Panics
// are recovered and reported as internal errors.
func (s *Ingestion) runPipeline(ctx context.Context, msg *models.IncomingMessage, text string, result *IngestionResult, event *models.AutomationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrCodeInternalError, fmt.Sprintf("panic while processing message: %v", r))
			s.logger.WithFields(messageFields(ctx, msg)).WithField(LogFieldPanic, r).Error("Recovered panic while processing message")
		}
	}()

	LogMessageProcessing(ctx, s.logger, msg, text)

	var cc *models.CustomerContext
	if s.resolver != nil {
		resolved, rerr := s.resolver.Resolve(ctx, msg.SenderPhone)
		if rerr != nil {
			s.logger.WithError(rerr).WithFields(messageFields(ctx, msg)).Warn("Failed to resolve customer context, continuing without it")
		} else {
			cc = resolved
		}
	}

	classification := s.classify(ctx, text, cc)
	result.Classification = classification
	event.Intent = classification.Intent
	event.Confidence = classification.Confidence
	event.Sentiment = classification.Sentiment
	event.Source = string(classification.Source)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("classification.intent", string(classification.Intent)),
		attribute.String("classification.source", string(classification.Source)),
	)

	decision := Decide(classification, cc, Policy{
		AutoCreateLeads: s.flags.IsEnabled(features.FlagAutoCreateLeads),
		SellerAlerts:    s.flags.IsEnabled(features.FlagSellerAlerts),
	})
	s.logger.WithFields(messageFields(ctx, msg)).WithFields(logrus.Fields{
		LogFieldIntent:     classification.Intent,
		LogFieldConfidence: classification.Confidence,
		LogFieldSource:     classification.Source,
		LogFieldReasons:    decision.Reasons,
	}).Debug("Message classified")

	var lead LeadOutcome
	if decision.CreateLead && s.leads != nil {
		lead = s.leads.CreateLead(ctx, LeadRequest{Message: msg, Text: text, Classification: classification, Context: cc})
		if lead.Err != nil {
			apperrors.LogError(s.logger, lead.Err, "Failed to create lead", messageFields(ctx, msg))
			result.LeadError = apperrors.GetUserMessage(lead.Err)
		} else {
			result.LeadCreated = true
			result.LeadID = lead.LeadID
		}
	}

	if decision.AlertSeller && s.notifier != nil {
		if aerr := s.alertSeller(ctx, msg, classification, cc, result.LeadID); aerr != nil {
			apperrors.LogError(s.logger, aerr, "Failed to alert seller", messageFields(ctx, msg))
			result.AlertError = apperrors.GetUserMessage(aerr)
		} else {
			result.AlertSent = true
			s.metrics.ObserveAlert()
		}
	} else if result.LeadCreated && !lead.Existing && lead.SellerID != 0 && s.notifier != nil {
		s.notifyLeadCreated(ctx, msg, classification, cc, lead)
	}
	return nil
}

func (s *Ingestion) classify(ctx context.Context, text string, cc *models.CustomerContext) *models.ClassificationResult {
	opts := classifier.Options{
		ContextMessages: contextMessages(cc),
		NoCache:         !s.flags.IsEnabled(features.FlagClassificationCache),
	}
	if cc != nil && cc.Customer != nil {
		opts.CustomerName = cc.Customer.Name
	}

	primary := s.classifier
	if primary == nil || !s.flags.IsEnabled(features.FlagAIClassification) {
		primary = s.fallback
	}
	result, err := primary.Classify(ctx, text, opts)
	if err == nil && result != nil {
		return result
	}
	if err != nil {
		apperrors.LogWarn(s.logger, apperrors.NewClassificationUnavailableError(err), "Classifier failed, using rule-based fallback")
	}
	result, _ = s.fallback.Classify(ctx, text, opts)
	return result
}

func (s *Ingestion) alertSeller(ctx context.Context, msg *models.IncomingMessage, c *models.ClassificationResult, cc *models.CustomerContext, leadID int64) error {
	data := alertData{
		SenderPhone: msg.SenderPhone,
		MessageID:   msg.MessageID,
		SessionID:   msg.SessionID,
		Intent:      c.Intent,
		Confidence:  c.Confidence,
		Sentiment:   c.Sentiment,
		Urgency:     c.Urgency,
		LeadID:      leadID,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return apperrors.NewNotificationDeliveryError("encode", err)
	}

	n := &models.Notification{
		UserID:   cc.SellerID,
		Type:     models.NotificationSellerAlert,
		Title:    alertTitle(c.Intent),
		Message:  fmt.Sprintf("%s: %s", customerLabel(msg, cc), c.Summary),
		Priority: NotificationPriority(c),
		Data:     payload,
	}
	if c.Intent == models.IntentComplaint {
		n.Type = models.NotificationComplaint
	}
	if _, err := s.notifier.Create(ctx, n); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		LogFieldSellerID: cc.SellerID,
		LogFieldIntent:   c.Intent,
		LogFieldLeadID:   leadID,
	}).Info("Seller alerted")
	return nil
}

func (s *Ingestion) notifyLeadCreated(ctx context.Context, msg *models.IncomingMessage, c *models.ClassificationResult, cc *models.CustomerContext, lead LeadOutcome) {
	payload, _ := json.Marshal(alertData{
		SenderPhone: msg.SenderPhone,
		MessageID:   msg.MessageID,
		SessionID:   msg.SessionID,
		Intent:      c.Intent,
		Confidence:  c.Confidence,
		LeadID:      lead.LeadID,
	})
	n := &models.Notification{
		UserID:   lead.SellerID,
		Type:     models.NotificationLeadCreated,
		Title:    "Novo lead via WhatsApp",
		Message:  fmt.Sprintf("%s: %s", customerLabel(msg, cc), c.Summary),
		Priority: NotificationPriority(c),
		Data:     payload,
	}
	if _, err := s.notifier.Create(ctx, n); err != nil {
		apperrors.LogWarn(s.logger, err, "Failed to notify lead creation", logrus.Fields{LogFieldLeadID: lead.LeadID})
	}
}

type alertData struct {
	SenderPhone string           `json:"sender_phone"`
	MessageID   string           `json:"message_id"`
	SessionID   string           `json:"session_id"`
	Intent      models.Intent    `json:"intent"`
	Confidence  float64          `json:"confidence"`
	Sentiment   models.Sentiment `json:"sentiment,omitempty"`
	Urgency     models.Urgency   `json:"urgency,omitempty"`
	LeadID      int64            `json:"lead_id,omitempty"`
}

func alertTitle(intent models.Intent) string {
	switch intent {
	case models.IntentComplaint:
		return "Reclamação de cliente"
	case models.IntentPurchaseIntent:
		return "Cliente com intenção de compra"
	case models.IntentQuoteRequest:
		return "Pedido de cotação"
	default:
		return "Mensagem requer atenção"
	}
}

func customerLabel(msg *models.IncomingMessage, cc *models.CustomerContext) string {
	if cc != nil && cc.Customer != nil && cc.Customer.Name != "" {
		return cc.Customer.Name
	}
	return privacy.MaskPhoneNumber(msg.SenderPhone)
}

func auditError(result *IngestionResult) string {
	var parts []string
	for _, e := range []string{result.Error, result.LeadError, result.AlertError} {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "; ")
}

// writeAudit records the delivery outcome. It uses its own deadline so an
// exhausted processing timeout still leaves a record.
func (s *Ingestion) writeAudit(ctx context.Context, event *models.AutomationEvent, result *IngestionResult) {
	if s.audit == nil {
		return
	}
	event.LeadCreated = result.LeadCreated
	event.LeadID = result.LeadID
	event.AlertSent = result.AlertSent
	event.SkippedReason = result.SkippedReason
	event.Error = auditError(result)

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteLimit)
	defer cancel()
	if err := s.audit.InsertAutomationEvent(auditCtx, event); err != nil {
		s.logger.WithError(err).WithField(LogFieldMessageID, privacy.MaskMessageID(event.MessageID)).Error("Failed to write automation audit event")
	}
}
