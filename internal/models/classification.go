package models

type Intent string

const (
	IntentQuoteRequest    Intent = "QUOTE_REQUEST"
	IntentPurchaseIntent  Intent = "PURCHASE_INTENT"
	IntentPriceCheck      Intent = "PRICE_CHECK"
	IntentProductInfo     Intent = "PRODUCT_INFO"
	IntentStockCheck      Intent = "STOCK_CHECK"
	IntentOrderStatus     Intent = "ORDER_STATUS"
	IntentDeliveryInquiry Intent = "DELIVERY_INQUIRY"
	IntentPaymentIssue    Intent = "PAYMENT_ISSUE"
	IntentReturnRequest   Intent = "RETURN_REQUEST"
	IntentComplaint       Intent = "COMPLAINT"
	IntentHumanHandoff    Intent = "HUMAN_HANDOFF"
	IntentGreeting        Intent = "GREETING"
	IntentThanks          Intent = "THANKS"
	IntentGeneralQuestion Intent = "GENERAL_QUESTION"
	IntentUnknown         Intent = "UNKNOWN"
)

// Intents is the closed taxonomy, in the order it is presented to the AI backend.
var Intents = []Intent{
	IntentQuoteRequest,
	IntentPurchaseIntent,
	IntentPriceCheck,
	IntentProductInfo,
	IntentStockCheck,
	IntentOrderStatus,
	IntentDeliveryInquiry,
	IntentPaymentIssue,
	IntentReturnRequest,
	IntentComplaint,
	IntentHumanHandoff,
	IntentGreeting,
	IntentThanks,
	IntentGeneralQuestion,
	IntentUnknown,
}

// Valid reports whether the intent belongs to the taxonomy.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

type ClassificationSource string

const (
	SourceAI        ClassificationSource = "ai"
	SourceRuleBased ClassificationSource = "rule-based"
)

// Entities holds the structured fragments extracted from a message.
type Entities struct {
	Products     []string `json:"products"`
	Values       []string `json:"values"`
	Dates        []string `json:"dates"`
	OrderNumbers []string `json:"order_numbers"`
}

// ClassificationResult is produced once per message (or read back from the cache)
// and never mutated afterwards.
type ClassificationResult struct {
	Intent     Intent               `json:"intent"`
	Confidence float64              `json:"confidence"`
	Sentiment  Sentiment            `json:"sentiment"`
	Urgency    Urgency              `json:"urgency"`
	Entities   Entities             `json:"entities"`
	Summary    string               `json:"summary"`
	Source     ClassificationSource `json:"source"`
}

// HasProducts reports whether at least one product entity was extracted.
func (r *ClassificationResult) HasProducts() bool {
	return r != nil && len(r.Entities.Products) > 0
}
