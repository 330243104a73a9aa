package integration_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/models"
	"leadflow/internal/service"
	"leadflow/pkg/circuitbreaker"
)

const quoteResponse = `{"intent":"QUOTE_REQUEST","confidence":0.92,"sentiment":"neutral","urgency":"medium",` +
	`"entities":{"products":["5 rolamentos 6204"]},"summary":"Cotação de rolamentos"}`

func TestPipeline_AIQuoteCreatesLeadAndAlertsSeller(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SeedCustomer()
	env.AI.Respond(quoteResponse)
	ctx := context.Background()

	result := env.Deliver("wamid.quote-1", "Bom dia, preciso de 5 rolamentos 6204, qual o valor?")

	require.True(t, result.Accepted)
	assert.Empty(t, result.SkippedReason)
	require.NotNil(t, result.Classification)
	assert.Equal(t, models.SourceAI, result.Classification.Source)
	assert.Equal(t, models.IntentQuoteRequest, result.Classification.Intent)
	assert.Equal(t, 1, env.AI.Requests())

	require.True(t, result.LeadCreated)
	lead, err := env.DB.GetLead(ctx, result.LeadID)
	require.NoError(t, err)
	assert.Equal(t, testSellerID, lead.SellerID)
	require.Len(t, lead.Items, 1)

	assert.True(t, result.AlertSent)
	pending, err := env.Notifier.GetPending(ctx, testSellerID, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.NotificationSellerAlert, pending[0].Type)
	assert.NotEmpty(t, env.Redis.Keys(), "notifications are buffered in Redis")

	unread, err := env.Notifier.UnreadCount(ctx, testSellerID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestPipeline_SameDeliveryDoesNotDuplicateLead(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SeedCustomer()
	env.AI.Respond(quoteResponse)

	first := env.Deliver("wamid.dup-1", "Preciso de 5 rolamentos 6204")
	require.True(t, first.LeadCreated)

	env.ExpireDebounce()
	second := env.Deliver("wamid.dup-1", "Preciso de 5 rolamentos 6204")
	require.True(t, second.Accepted)
	assert.Equal(t, first.LeadID, second.LeadID, "a redelivered message maps to the existing lead")
}

func TestPipeline_AIOutageFallsBackAndTripsBreaker(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SeedCustomer()
	env.AI.Fail(http.StatusInternalServerError)

	deliveries := []struct{ id, text string }{
		{"wamid.down-1", "Preciso de 5 rolamentos 6204, qual o valor?"},
		{"wamid.down-2", "Preciso de 2 rolamentos 6205, qual o valor?"},
	}
	for i, d := range deliveries {
		result := env.Deliver(d.id, d.text)
		require.True(t, result.Accepted, "delivery %d", i)
		require.NotNil(t, result.Classification)
		assert.Equal(t, models.SourceRuleBased, result.Classification.Source)
		env.ExpireDebounce()
	}
	assert.Equal(t, 2, env.AI.Requests())
	assert.Equal(t, circuitbreaker.StateOpen, env.Breaker.State())

	result := env.Deliver("wamid.down-3", "Vocês têm correia B-42 em estoque?")
	require.NotNil(t, result.Classification)
	assert.Equal(t, models.SourceRuleBased, result.Classification.Source)
	assert.Equal(t, 2, env.AI.Requests(), "an open breaker keeps calls away from the backend")
}

func TestPipeline_DebounceDefersAndFlushMerges(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SeedCustomer()
	env.AI.Respond(quoteResponse)
	ctx := context.Background()

	first := env.Deliver("wamid.burst-1", "Oi, preciso de 5 rolamentos 6204")
	assert.Empty(t, first.SkippedReason)

	second := env.Deliver("wamid.burst-2", "Tem o 6205 também?")
	third := env.Deliver("wamid.burst-3", "E o 6206?")
	assert.Equal(t, service.SkipDebounced, second.SkippedReason)
	assert.Equal(t, service.SkipDebounced, third.SkippedReason)
	assert.Nil(t, second.Classification)
	assert.Equal(t, 1, env.AI.Requests())

	assert.Equal(t, 0, env.Scheduler.FlushDeferred(ctx), "queue stays put while the gate is open")

	env.ExpireDebounce()
	assert.Equal(t, 1, env.Scheduler.FlushDeferred(ctx))
	assert.Equal(t, 2, env.AI.Requests(), "queued messages are classified once, merged")
	assert.Contains(t, env.AI.LastPrompt(), "Tem o 6205 também?\nE o 6206?")

	env.ExpireDebounce()
	assert.Equal(t, 0, env.Scheduler.FlushDeferred(ctx), "drained queues are gone")
}

func TestPipeline_PriorMessagesReachThePrompt(t *testing.T) {
	env := NewTestEnvironment(t)
	env.SeedCustomer()
	env.AI.Respond(quoteResponse)

	env.Deliver("wamid.ctx-1", "Preciso de 5 rolamentos 6204")
	assert.NotContains(t, env.AI.LastPrompt(), "Mensagens anteriores:")
	assert.Contains(t, env.AI.LastPrompt(), "Cliente: Oficina Silva")

	env.ExpireDebounce()
	env.Deliver("wamid.ctx-2", "Consegue entregar até sexta?")

	prompt := env.AI.LastPrompt()
	assert.Contains(t, prompt, "Mensagens anteriores:")
	assert.Contains(t, prompt, "Preciso de 5 rolamentos 6204")
	assert.Contains(t, prompt, "Mensagem a classificar:\nConsegue entregar até sexta?")
}

func TestPipeline_UnknownSenderGetsNoAlert(t *testing.T) {
	env := NewTestEnvironment(t)
	env.AI.Respond(quoteResponse)
	ctx := context.Background()

	result := env.Deliver("wamid.stranger-1", "Preciso de 5 rolamentos 6204")

	require.True(t, result.Accepted)
	assert.False(t, result.AlertSent)
	pending, err := env.Notifier.GetPending(ctx, testSellerID, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPipeline_AutomationDisabled(t *testing.T) {
	env := NewTestEnvironment(t, func(cfg *models.Config) {
		cfg.Automation.AutoCreateLeads = false
		cfg.Automation.SellerAlerts = false
	})
	env.SeedCustomer()
	env.AI.Respond(quoteResponse)

	result := env.Deliver("wamid.off-1", "Preciso de 5 rolamentos 6204")

	require.True(t, result.Accepted)
	require.NotNil(t, result.Classification)
	assert.False(t, result.LeadCreated)
	assert.False(t, result.AlertSent)
}
