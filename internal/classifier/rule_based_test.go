package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/models"
)

func classifyRules(t *testing.T, text string) *models.ClassificationResult {
	t.Helper()
	result, err := NewRuleBased().Classify(context.Background(), text, Options{})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRuleBased_QuoteRequestWithProduct(t *testing.T) {
	result := classifyRules(t, "Preciso de 5 rolamentos 6204, qual o valor?")

	assert.Equal(t, models.IntentQuoteRequest, result.Intent)
	assert.Equal(t, 0.7, result.Confidence)
	assert.Equal(t, models.SourceRuleBased, result.Source)
	assert.Equal(t, models.SentimentNeutral, result.Sentiment)
	assert.Equal(t, models.UrgencyLow, result.Urgency)
	assert.Equal(t, []string{"5 rolamentos 6204"}, result.Entities.Products)
}

func TestRuleBased_Complaint(t *testing.T) {
	result := classifyRules(t, "Isso é um absurdo, produto com defeito!")

	assert.Equal(t, models.IntentComplaint, result.Intent)
	assert.Equal(t, models.SentimentNegative, result.Sentiment)
	assert.Equal(t, models.UrgencyMedium, result.Urgency)
	assert.Empty(t, result.Entities.Products)
}

func TestRuleBased_Intents(t *testing.T) {
	tests := []struct {
		text     string
		expected models.Intent
	}{
		{"Quero falar com um atendente", models.IntentHumanHandoff},
		{"Gostaria de um orçamento para correias", models.IntentQuoteRequest},
		{"Pode fechar o pedido com 10 unidades", models.IntentPurchaseIntent},
		{"Quanto custa o retentor?", models.IntentPriceCheck},
		{"Vocês têm em estoque?", models.IntentStockCheck},
		{"Qual a ficha técnica desse motor?", models.IntentProductInfo},
		{"Qual o status do meu pedido?", models.IntentOrderStatus},
		{"Qual o prazo de entrega para Campinas?", models.IntentDeliveryInquiry},
		{"O boleto venceu, podem mandar segunda via?", models.IntentPaymentIssue},
		{"Quero devolver a mercadoria", models.IntentReturnRequest},
		{"Muito obrigado pela ajuda", models.IntentThanks},
		{"Bom dia!", models.IntentGreeting},
		{"Olá", models.IntentGreeting},
		{"Vocês abrem no sábado?", models.IntentGeneralQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyRules(t, tt.text).Intent)
		})
	}
}

func TestRuleBased_FallbackConfidence(t *testing.T) {
	result := classifyRules(t, "Vocês abrem no sábado?")
	assert.Equal(t, models.IntentGeneralQuestion, result.Intent)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestRuleBased_TooShort(t *testing.T) {
	for _, text := range []string{"", " ", "k", "  ?  "} {
		result := classifyRules(t, text)
		assert.Equal(t, models.IntentUnknown, result.Intent, "text %q", text)
		assert.Equal(t, 0.0, result.Confidence)
		assert.Equal(t, models.SourceRuleBased, result.Source)
	}
}

func TestRuleBased_Totality(t *testing.T) {
	inputs := []string{
		"ok", "???", "🙂🙂", "123", "R$", "pedido", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"NÃO FUNCIONA NADA", "5", "\n\t\n", "amanhã 10/10 R$ 1.000,00 pedido 12345",
	}
	for _, text := range inputs {
		result := classifyRules(t, text)
		assert.True(t, result.Intent.Valid(), "text %q", text)
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 1.0)
		assert.NotNil(t, result.Entities.Products)
	}
}

func TestRuleBased_Deterministic(t *testing.T) {
	text := "Preciso de 5 rolamentos 6204, qual o valor?"
	assert.Equal(t, classifyRules(t, text), classifyRules(t, text))
}

func TestSentimentScore(t *testing.T) {
	assert.Equal(t, 0.0, sentimentScore("qual o horário?"))
	assert.Equal(t, -1.0, sentimentScore("absurdo, defeito"))
	assert.Equal(t, 1.0, sentimentScore("excelente, obrigado"))
	assert.Equal(t, 0.0, sentimentScore("ótimo produto mas veio com defeito"))

	assert.Equal(t, models.SentimentNeutral, analyzeSentiment("ótimo produto mas veio com defeito"))
	assert.Equal(t, models.SentimentPositive, analyzeSentiment("Excelente atendimento"))
}

func TestUrgency(t *testing.T) {
	assert.Equal(t, models.UrgencyHigh, classifyRules(t, "Preciso urgente de 2 correias A42").Urgency)
	assert.Equal(t, models.UrgencyHigh, classifyRules(t, "Nossa linha parada, preciso da peça").Urgency)
	assert.Equal(t, models.UrgencyLow, classifyRules(t, "Bom dia").Urgency)
}

func TestExtractEntities(t *testing.T) {
	entities := extractEntities("Sobre o pedido 45871: paguei R$ 1.234,56 em 12/03, entrega amanhã de 3 caixas de parafuso M8 e 2 filtros")

	assert.Equal(t, []string{"45871"}, entities.OrderNumbers)
	assert.Equal(t, []string{"R$ 1.234,56"}, entities.Values)
	assert.Equal(t, []string{"12/03", "amanhã"}, entities.Dates)
	assert.Equal(t, []string{"3 parafuso M8", "2 filtros"}, entities.Products)
}

func TestExtractProducts(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"quantity word code", "preciso de 5 rolamentos 6204", []string{"5 rolamentos 6204"}},
		{"unit prefix", "10 unidades de correia A42.", []string{"10 correia A42"}},
		{"time word skipped", "entrega em 3 dias", []string{}},
		{"known noun without quantity", "tem retentor 35x52x7 ?", []string{"retentor 35x52x7"}},
		{"noun inside word ignored", "o motorista chegou", []string{}},
		{"quantity claims noun", "2 bombas", []string{"2 bombas"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractProducts(tt.text))
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "a b", summarize("  a \n b "))

	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	s := summarize(long)
	assert.Equal(t, 123, len([]rune(s)))
	assert.True(t, len(s) > 3 && s[len(s)-3:] == "...")
}
