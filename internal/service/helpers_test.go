package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leadflow/internal/classifier"
	"leadflow/internal/database"
	"leadflow/internal/features"
	"leadflow/internal/kv"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
)

const testSender = "5511987654321"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "leadflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestFlags(t *testing.T, autoLeads bool) *features.FlagManager {
	t.Helper()
	fm := features.NewFlagManager()
	fm.InitializeDefaults()
	require.NoError(t, fm.Set(features.FlagAutoCreateLeads, autoLeads))
	return fm
}

// pipeline wires the real components on SQLite and the in-memory store.
type pipeline struct {
	db        *database.Database
	store     *kv.MemoryStore
	clock     *fakeClock
	flags     *features.FlagManager
	gate      *DebounceGate
	notifier  *NotificationDispatcher
	leads     *LeadMaterializer
	ingestion *Ingestion
	metrics   *metrics.Pipeline
	logger    *logrus.Logger
	hook      *test.Hook
}

type pipelineOption func(*IngestionConfig, *IngestionDeps)

func withClassifier(c classifier.Classifier) pipelineOption {
	return func(_ *IngestionConfig, d *IngestionDeps) { d.Classifier = c }
}

func withLeadStore(store LeadStore) pipelineOption {
	return func(_ *IngestionConfig, d *IngestionDeps) {
		d.Leads = NewLeadMaterializer(store, 0, d.Metrics, d.Logger)
	}
}

func withSecret(secret string, required bool) pipelineOption {
	return func(c *IngestionConfig, _ *IngestionDeps) {
		c.WebhookSecret = secret
		c.RequireSignature = required
	}
}

func newPipeline(t *testing.T, opts ...pipelineOption) *pipeline {
	t.Helper()
	logger, hook := newTestLogger()
	clock := newFakeClock()
	store := kv.NewMemoryStore()
	store.Now = clock.Now
	db := newTestDB(t)
	m := metrics.NewPipeline()
	flags := newTestFlags(t, true)

	p := &pipeline{db: db, store: store, clock: clock, flags: flags, metrics: m, logger: logger, hook: hook}
	p.gate = NewDebounceGate(store, 5*time.Second, 20)
	p.notifier = NewNotificationDispatcher(db, store, NotificationConfig{}, m, logger)
	p.leads = NewLeadMaterializer(db, 0, m, logger)

	cfg := IngestionConfig{CountryCode: "55"}
	deps := IngestionDeps{
		Gate:       p.gate,
		Resolver:   NewContextResolver(db, 5, logger),
		Classifier: classifier.NewService(nil, logger, classifier.WithCache(store, time.Hour)),
		Leads:      p.leads,
		Notifier:   p.notifier,
		Audit:      db,
		Flags:      flags,
		Metrics:    m,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	p.ingestion = NewIngestion(cfg, deps)
	return p
}

func (p *pipeline) seedSeller(t *testing.T, sellerID int64) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: "Oficina Silva", Phone: testSender, SellerID: sellerID}
	require.NoError(t, p.db.CreateCustomer(context.Background(), c))
	return c
}

func (p *pipeline) seedCatalog(t *testing.T) *models.Product {
	t.Helper()
	prod := &models.Product{SKU: "6204", Name: "Rolamento 6204 ZZ"}
	require.NoError(t, p.db.CreateProduct(context.Background(), prod))
	return prod
}

func rawMessage(t *testing.T, id, text string) []byte {
	t.Helper()
	msg := models.IncomingMessage{
		MessageID:      id,
		SessionID:      "default",
		SenderPhone:    testSender,
		RecipientPhone: "5511900000000",
		Direction:      models.DirectionIncoming,
		Type:           "text",
	}
	if text != "" {
		msg.Text = models.StringPtr(text)
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, text string, opts classifier.Options) (*models.ClassificationResult, error) {
	args := m.Called(ctx, text, opts)
	if r := args.Get(0); r != nil {
		return r.(*models.ClassificationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLeadStore struct {
	mock.Mock
}

func (m *mockLeadStore) FindProduct(ctx context.Context, terms []string) (*models.Product, error) {
	args := m.Called(ctx, terms)
	if p := args.Get(0); p != nil {
		return p.(*models.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLeadStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *mockLeadStore) FindLeadForMessage(ctx context.Context, messageID, senderPhone string) (int64, bool, error) {
	args := m.Called(ctx, messageID, senderPhone)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

type mockAuditStore struct {
	mock.Mock
}

func (m *mockAuditStore) InsertAutomationEvent(ctx context.Context, e *models.AutomationEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockAuditStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ProcessDeferred(ctx context.Context, msg *models.IncomingMessage) (*IngestionResult, error) {
	args := m.Called(ctx, msg)
	if r := args.Get(0); r != nil {
		return r.(*IngestionResult), args.Error(1)
	}
	return nil, args.Error(1)
}
