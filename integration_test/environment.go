package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"leadflow/internal/classifier"
	"leadflow/internal/config"
	"leadflow/internal/database"
	"leadflow/internal/features"
	"leadflow/internal/kv"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
	"leadflow/internal/service"
	"leadflow/pkg/circuitbreaker"
)

const (
	testSender   = "5511987654321"
	testSellerID = int64(42)
	debounceTTL  = 5 * time.Second
)

// TestEnvironment runs the whole pipeline on SQLite, an in-process Redis
// server and a mock OpenAI-compatible endpoint.
type TestEnvironment struct {
	t         *testing.T
	Config    models.Config
	DB        *database.Database
	Redis     *miniredis.Miniredis
	Store     *kv.RedisStore
	Flags     *features.FlagManager
	Metrics   *metrics.Pipeline
	Breaker   *circuitbreaker.CircuitBreaker
	Ingestion *service.Ingestion
	Notifier  *service.NotificationDispatcher
	Scheduler *service.Scheduler
	Logger    *logrus.Logger
	Hook      *test.Hook
	AI        *MockAI
}

// NewTestEnvironment wires the pipeline. mutate adjusts the configuration
// before wiring.
func NewTestEnvironment(t *testing.T, mutate ...func(*models.Config)) *TestEnvironment {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ai := NewMockAI(t)
	cfg := config.Defaults()
	cfg.Database.Path = filepath.Join(t.TempDir(), "leadflow.db")
	cfg.AI.APIKey = "sk-test"
	cfg.AI.BaseURL = ai.URL() + "/v1"
	cfg.AI.BreakerFailures = 2
	cfg.Automation.AutoCreateLeads = true
	for _, m := range mutate {
		m(&cfg)
	}

	env := &TestEnvironment{t: t, Config: cfg, Logger: logger, Hook: hook, AI: ai}
	env.setupStorage()
	env.wire()
	return env
}

func (env *TestEnvironment) setupStorage() {
	db, err := database.New(context.Background(), env.Config.Database.Path)
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = db.Close() })
	env.DB = db

	env.Redis = miniredis.RunT(env.t)
	env.Config.Redis.URL = "redis://" + env.Redis.Addr()
	store, err := kv.NewRedisStore(env.Config.Redis)
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = store.Close() })
	env.Store = store
}

func (env *TestEnvironment) wire() {
	cfg := &env.Config
	env.Flags = features.NewFlagManager()
	env.Flags.InitializeDefaults()
	require.NoError(env.t, env.Flags.LoadFromConfig(features.FromConfig(cfg)))

	env.Metrics = metrics.NewPipeline()
	env.Breaker = circuitbreaker.New("ai-classifier", cfg.AI.BreakerFailures, time.Minute, circuitbreaker.WithLogger(env.Logger))
	classify := classifier.NewService(classifier.NewAI(cfg.AI), env.Logger,
		classifier.WithCache(env.Store, time.Hour),
		classifier.WithBreaker(env.Breaker),
		classifier.WithMetrics(env.Metrics),
	)

	gate := service.NewDebounceGate(env.Store, debounceTTL, cfg.Automation.DeferredQueueMaxSize)
	env.Notifier = service.NewNotificationDispatcher(env.DB, env.Store, service.NotificationConfig{
		BufferSize: cfg.Notifications.BufferSize,
		BufferTTL:  time.Hour,
	}, env.Metrics, env.Logger)

	env.Ingestion = service.NewIngestion(service.IngestionConfig{CountryCode: "55"}, service.IngestionDeps{
		Gate:       gate,
		Resolver:   service.NewContextResolver(env.DB, cfg.Automation.ContextMessages, env.Logger),
		Classifier: classify,
		Leads:      service.NewLeadMaterializer(env.DB, cfg.Automation.DefaultSellerID, env.Metrics, env.Logger),
		Notifier:   env.Notifier,
		Audit:      env.DB,
		Flags:      env.Flags,
		Metrics:    env.Metrics,
		Logger:     env.Logger,
	})
	env.Scheduler = service.NewScheduler(service.SchedulerConfig{}, env.Ingestion, gate, env.Notifier, env.DB, env.Flags, env.Metrics, env.Logger)
}

// SeedCustomer registers the test sender as a customer of testSellerID.
func (env *TestEnvironment) SeedCustomer() *models.Customer {
	env.t.Helper()
	c := &models.Customer{Name: "Oficina Silva", Phone: testSender, SellerID: testSellerID}
	require.NoError(env.t, env.DB.CreateCustomer(context.Background(), c))
	return c
}

// Deliver pushes one flat webhook payload through the pipeline.
func (env *TestEnvironment) Deliver(messageID, text string) *service.IngestionResult {
	env.t.Helper()
	raw, err := json.Marshal(models.IncomingMessage{
		MessageID:   messageID,
		SessionID:   "default",
		SenderPhone: testSender,
		Text:        models.StringPtr(text),
		Direction:   models.DirectionIncoming,
		Type:        "text",
	})
	require.NoError(env.t, err)

	result, err := env.Ingestion.Process(context.Background(), raw, "")
	require.NoError(env.t, err)
	return result
}

// ExpireDebounce moves the Redis clock past the gate window.
func (env *TestEnvironment) ExpireDebounce() {
	env.Redis.FastForward(debounceTTL + time.Second)
}

// MockAI serves canned chat completions and counts requests.
type MockAI struct {
	server   *httptest.Server
	requests atomic.Int32

	mu      sync.Mutex
	status  int
	content string
	prompts []string
}

func NewMockAI(t *testing.T) *MockAI {
	m := &MockAI{status: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

func (m *MockAI) URL() string { return m.server.URL }

func (m *MockAI) Requests() int { return int(m.requests.Load()) }

// Respond sets the JSON classification returned by the next calls.
func (m *MockAI) Respond(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = http.StatusOK
	m.content = content
}

// Fail makes every call answer with status.
func (m *MockAI) Fail(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// LastPrompt returns the user message of the latest request.
func (m *MockAI) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *MockAI) handle(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	status, content := m.status, m.content
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			m.prompts = append(m.prompts, msg.Content)
		}
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"upstream unavailable","type":"server_error"}}`)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
}
