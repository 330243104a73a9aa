package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/features"
	"leadflow/internal/models"
	"leadflow/internal/security"
)

func TestIngestion_QuoteRequestCreatesLeadAndAlertsSeller(t *testing.T) {
	p := newPipeline(t)
	p.seedSeller(t, 7)
	product := p.seedCatalog(t)
	ctx := context.Background()

	result, err := p.ingestion.Process(ctx, rawMessage(t, "m1", "Preciso de 5 rolamentos 6204, qual o valor?"), "")
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Empty(t, result.SkippedReason)
	require.NotNil(t, result.Classification)
	assert.Equal(t, models.IntentQuoteRequest, result.Classification.Intent)
	assert.Equal(t, 0.7, result.Classification.Confidence)
	assert.Equal(t, models.SourceRuleBased, result.Classification.Source)
	assert.Len(t, result.Classification.Entities.Products, 1)
	assert.True(t, result.LeadCreated)
	assert.NotZero(t, result.LeadID)
	assert.True(t, result.AlertSent)

	lead, err := p.db.GetLead(ctx, result.LeadID)
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, int64(7), lead.SellerID)
	assert.Equal(t, "whatsapp", lead.Origin)
	require.Len(t, lead.Items, 1)
	assert.Equal(t, product.ID, lead.Items[0].ProductID)
	assert.Equal(t, 5, lead.Items[0].Quantity)
	assert.False(t, lead.Items[0].Unresolved)

	var origin models.LeadOrigin
	require.NoError(t, json.Unmarshal(lead.Metadata, &origin))
	assert.Equal(t, "m1", origin.MessageID)
	assert.Equal(t, "default", origin.SessionID)

	pending, err := p.notifier.GetPending(ctx, 7, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.NotificationSellerAlert, pending[0].Type)
	assert.Equal(t, models.PriorityHigh, pending[0].Priority)
	assert.Contains(t, string(pending[0].Data), `"lead_id":`)

	turns, err := p.db.RecentTurns(ctx, testSender, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1, "the delivery is audited")
	assert.Equal(t, models.IntentQuoteRequest, turns[0].Intent)
}

func TestIngestion_ComplaintAlertsKnownSeller(t *testing.T) {
	p := newPipeline(t)
	p.seedSeller(t, 3)
	ctx := context.Background()

	result, err := p.ingestion.Process(ctx, rawMessage(t, "m1", "Isso é um absurdo, produto com defeito!"), "")
	require.NoError(t, err)

	assert.Equal(t, models.IntentComplaint, result.Classification.Intent)
	assert.Equal(t, models.SentimentNegative, result.Classification.Sentiment)
	assert.True(t, result.AlertSent)
	assert.False(t, result.LeadCreated)

	pending, err := p.notifier.GetPending(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.NotificationComplaint, pending[0].Type)
	assert.Equal(t, models.PriorityUrgent, pending[0].Priority)
	assert.Contains(t, pending[0].Message, "Oficina Silva")
}

func TestIngestion_UnknownSenderGetsNoAlert(t *testing.T) {
	p := newPipeline(t)

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "Isso é um absurdo, produto com defeito!"), "")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.False(t, result.AlertSent)
}

func TestIngestion_LeadAutomationDisabled(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.flags.Disable(features.FlagAutoCreateLeads))

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "Preciso de 5 rolamentos 6204, qual o valor?"), "")
	require.NoError(t, err)
	assert.False(t, result.LeadCreated)
	assert.Zero(t, result.LeadID)
}

func TestIngestion_OutgoingIsSkippedWithoutSideEffects(t *testing.T) {
	audit := &mockAuditStore{}
	var recorded *models.AutomationEvent
	audit.On("InsertAutomationEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*models.AutomationEvent) }).
		Return(nil).Once()

	ai := &mockClassifier{}
	p := newPipeline(t, withClassifier(ai), func(_ *IngestionConfig, d *IngestionDeps) { d.Audit = audit })

	raw := []byte(`{"message_id":"m1","session_id":"default","sender_phone":"5511987654321","text":"Preciso de 5 rolamentos","direction":"outgoing"}`)
	result, err := p.ingestion.Process(context.Background(), raw, "")
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, SkipOutgoing, result.SkippedReason)
	assert.Nil(t, result.Classification)
	ai.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
	audit.AssertExpectations(t)
	require.NotNil(t, recorded)
	assert.Equal(t, SkipOutgoing, recorded.SkippedReason)

	active, err := p.gate.Active(context.Background(), testSender)
	require.NoError(t, err)
	assert.False(t, active, "outgoing messages never open the gate")
}

func TestIngestion_GatewayEnvelope(t *testing.T) {
	p := newPipeline(t)

	raw := []byte(`{"event":"message","session":"default","payload":{"id":"true_5511987654321@c.us_ABC","from":"5511987654321@c.us","to":"5511900000000@c.us","fromMe":false,"body":"Bom dia, tudo bem?"}}`)
	result, err := p.ingestion.Process(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, models.IntentGreeting, result.Classification.Intent)
}

func TestIngestion_DebounceCoalescesWithinWindow(t *testing.T) {
	ai := &mockClassifier{}
	ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(&models.ClassificationResult{
		Intent: models.IntentGeneralQuestion, Confidence: 0.5, Sentiment: models.SentimentNeutral,
		Urgency: models.UrgencyLow, Entities: models.Entities{Products: []string{}}, Source: models.SourceAI,
	}, nil)
	p := newPipeline(t, withClassifier(ai))
	ctx := context.Background()

	first, err := p.ingestion.Process(ctx, rawMessage(t, "m1", "oi, tem correia?"), "")
	require.NoError(t, err)
	assert.Empty(t, first.SkippedReason)

	p.clock.Advance(2 * time.Second)
	second, err := p.ingestion.Process(ctx, rawMessage(t, "m2", "a A42"), "")
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.Equal(t, SkipDebounced, second.SkippedReason)
	ai.AssertNumberOfCalls(t, "Classify", 1)

	queued, err := p.gate.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testSender}, queued)

	p.clock.Advance(4 * time.Second)
	third, err := p.ingestion.Process(ctx, rawMessage(t, "m3", "e o preço?"), "")
	require.NoError(t, err)
	assert.Empty(t, third.SkippedReason)
	ai.AssertNumberOfCalls(t, "Classify", 2)
}

func TestIngestion_NoText(t *testing.T) {
	p := newPipeline(t)

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", ""), "")
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, SkipNoText, result.SkippedReason)
}

func TestIngestion_TranscriptionUsedWhenNoText(t *testing.T) {
	p := newPipeline(t)

	raw := []byte(`{"message_id":"m1","session_id":"default","sender_phone":"5511987654321","media_transcription":"Isso é um absurdo, produto com defeito!","type":"audio"}`)
	result, err := p.ingestion.Process(context.Background(), raw, "")
	require.NoError(t, err)
	require.NotNil(t, result.Classification)
	assert.Equal(t, models.IntentComplaint, result.Classification.Intent)
}

func TestIngestion_InvalidPayload(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"empty", ``, "body"},
		{"malformed", `{not json`, "body"},
		{"missing sender", `{"session_id":"default","text":"oi"}`, "sender_phone"},
		{"missing session", `{"sender_phone":"5511987654321","text":"oi"}`, "session_id"},
		{"bad direction", `{"sender_phone":"5511987654321","session_id":"s","direction":"sideways"}`, "direction"},
		{"bad phone", `{"sender_phone":"123","session_id":"s","text":"oi"}`, "sender_phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &mockAuditStore{}
			p := newPipeline(t, func(_ *IngestionConfig, d *IngestionDeps) { d.Audit = audit })
			result, err := p.ingestion.Process(context.Background(), []byte(tt.raw), "")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidPayload))
			audit.AssertNotCalled(t, "InsertAutomationEvent", mock.Anything, mock.Anything)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
			require.NotNil(t, result)
			assert.False(t, result.Accepted)

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Context["field"])
		})
	}
}

func TestIngestion_Signature(t *testing.T) {
	const secret = "a-very-long-webhook-secret-of-32+chars"
	raw := rawMessage(t, "m1", "bom dia")

	t.Run("valid", func(t *testing.T) {
		p := newPipeline(t, withSecret(secret, true))
		result, err := p.ingestion.Process(context.Background(), raw, security.SignatureHeader(raw, secret))
		require.NoError(t, err)
		assert.True(t, result.Accepted)
	})

	t.Run("mismatch", func(t *testing.T) {
		p := newPipeline(t, withSecret(secret, true))
		_, err := p.ingestion.Process(context.Background(), raw, security.SignatureHeader(raw, "other-secret"))
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatusCode(err))
	})

	t.Run("missing header", func(t *testing.T) {
		p := newPipeline(t, withSecret(secret, false))
		_, err := p.ingestion.Process(context.Background(), raw, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidSignature))
	})

	t.Run("required without secret", func(t *testing.T) {
		p := newPipeline(t, withSecret("", true))
		_, err := p.ingestion.Process(context.Background(), raw, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidSignature))
	})

	t.Run("bypassed without secret outside production", func(t *testing.T) {
		p := newPipeline(t, withSecret("", false))
		result, err := p.ingestion.Process(context.Background(), raw, "")
		require.NoError(t, err)
		assert.True(t, result.Accepted)
	})
}

func TestIngestion_LeadFailureStillAlerts(t *testing.T) {
	leads := &mockLeadStore{}
	leads.On("FindLeadForMessage", mock.Anything, "m1", testSender).Return(int64(0), false, nil)
	leads.On("FindProduct", mock.Anything, mock.Anything).Return(nil, nil)
	leads.On("CreateLead", mock.Anything, mock.Anything).Return(assert.AnError)

	audit := &mockAuditStore{}
	audit.On("InsertAutomationEvent", mock.Anything, mock.MatchedBy(func(e *models.AutomationEvent) bool {
		return e.Error != "" && !e.LeadCreated && e.AlertSent
	})).Return(nil).Once()

	p := newPipeline(t, withLeadStore(leads), func(_ *IngestionConfig, d *IngestionDeps) { d.Audit = audit })
	p.seedSeller(t, 9)

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "Preciso de 5 rolamentos 6204, qual o valor?"), "")
	require.NoError(t, err, "a failed lead is reported in the result, not as a failed delivery")

	assert.True(t, result.Accepted)
	assert.Empty(t, result.Error)
	assert.NotEmpty(t, result.LeadError)
	assert.False(t, result.LeadCreated)
	assert.True(t, result.AlertSent, "a failed lead never blocks the alert")
	audit.AssertExpectations(t)

	pending, err := p.notifier.GetPending(context.Background(), 9, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngestion_RedeliveryReusesLead(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	raw := rawMessage(t, "m1", "Preciso de 5 rolamentos 6204, qual o valor?")

	first, err := p.ingestion.Process(ctx, raw, "")
	require.NoError(t, err)
	require.True(t, first.LeadCreated)

	p.clock.Advance(10 * time.Second)
	second, err := p.ingestion.Process(ctx, raw, "")
	require.NoError(t, err)
	assert.True(t, second.LeadCreated)
	assert.Equal(t, first.LeadID, second.LeadID)

	stats, err := p.db.ConversationStats(ctx, testSender)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LeadsCount)
}

func TestIngestion_PanicIsRecoveredAndAudited(t *testing.T) {
	ai := &mockClassifier{}
	ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})
	audit := &mockAuditStore{}
	audit.On("InsertAutomationEvent", mock.Anything, mock.MatchedBy(func(e *models.AutomationEvent) bool {
		return e.Error != "" && e.MessageID == "m1"
	})).Return(nil).Once()

	p := newPipeline(t, withClassifier(ai), func(_ *IngestionConfig, d *IngestionDeps) { d.Audit = audit })

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "bom dia"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternalError, apperrors.GetCode(err))
	assert.False(t, result.Accepted)
	audit.AssertExpectations(t)

	var sawPanic bool
	for _, e := range p.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data[LogFieldPanic] == "boom" {
			sawPanic = true
		}
	}
	assert.True(t, sawPanic)
}

func TestIngestion_CancelledRequestStillProcesses(t *testing.T) {
	p := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.ingestion.Process(ctx, rawMessage(t, "m1", "Bom dia, tudo bem?"), "")
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	turns, err := p.db.RecentTurns(context.Background(), testSender, 5)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestIngestion_ClassifierErrorFallsBackToRules(t *testing.T) {
	ai := &mockClassifier{}
	ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)
	p := newPipeline(t, withClassifier(ai))

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "Isso é um absurdo, produto com defeito!"), "")
	require.NoError(t, err)
	assert.Equal(t, models.SourceRuleBased, result.Classification.Source)
}

func TestIngestion_AIFlagOffUsesRules(t *testing.T) {
	ai := &mockClassifier{}
	p := newPipeline(t, withClassifier(ai))
	require.NoError(t, p.flags.Disable(features.FlagAIClassification))

	result, err := p.ingestion.Process(context.Background(), rawMessage(t, "m1", "Bom dia!"), "")
	require.NoError(t, err)
	assert.Equal(t, models.SourceRuleBased, result.Classification.Source)
	ai.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}
