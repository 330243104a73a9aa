package service

import (
	"leadflow/internal/constants"
	"leadflow/internal/models"
)

// Policy holds the switches the decision depends on.
type Policy struct {
	AutoCreateLeads bool
	SellerAlerts    bool
}

// Decision says which side effects a classified message triggers.
type Decision struct {
	CreateLead  bool     `json:"create_lead"`
	AlertSeller bool     `json:"alert_seller"`
	Reasons     []string `json:"reasons"`
}

var leadIntents = map[models.Intent]bool{
	models.IntentQuoteRequest:   true,
	models.IntentPurchaseIntent: true,
	models.IntentPriceCheck:     true,
}

var alertIntents = map[models.Intent]bool{
	models.IntentComplaint:      true,
	models.IntentPurchaseIntent: true,
	models.IntentQuoteRequest:   true,
}

// Decide is pure: the same inputs always give the same decision. The two
// outcomes are independent of each other.
func Decide(result *models.ClassificationResult, cc *models.CustomerContext, policy Policy) Decision {
	d := Decision{Reasons: []string{}}
	if result == nil {
		d.Reasons = append(d.Reasons, "no classification")
		return d
	}

	switch {
	case !policy.AutoCreateLeads:
		d.Reasons = append(d.Reasons, "lead automation disabled")
	case !leadIntents[result.Intent]:
		d.Reasons = append(d.Reasons, "intent "+string(result.Intent)+" does not create leads")
	case result.Confidence < constants.LeadConfidenceMinimum:
		d.Reasons = append(d.Reasons, "confidence below lead threshold")
	case len(result.Entities.Products) == 0:
		d.Reasons = append(d.Reasons, "no products mentioned")
	default:
		d.CreateLead = true
		d.Reasons = append(d.Reasons, "lead: "+string(result.Intent)+" with products")
	}

	sellerKnown := cc != nil && cc.SellerID != 0
	switch {
	case !policy.SellerAlerts:
		d.Reasons = append(d.Reasons, "seller alerts disabled")
	case !sellerKnown:
		d.Reasons = append(d.Reasons, "no seller assigned")
	case alertIntents[result.Intent]:
		d.AlertSeller = true
		d.Reasons = append(d.Reasons, "alert: intent "+string(result.Intent))
	case result.Urgency == models.UrgencyHigh:
		d.AlertSeller = true
		d.Reasons = append(d.Reasons, "alert: high urgency")
	case result.Sentiment == models.SentimentNegative:
		d.AlertSeller = true
		d.Reasons = append(d.Reasons, "alert: negative sentiment")
	}
	return d
}

// NotificationPriority maps a classification to a 1..4 priority.
func NotificationPriority(result *models.ClassificationResult) int {
	if result == nil {
		return models.PriorityLow
	}
	switch {
	case result.Intent == models.IntentComplaint,
		result.Sentiment == models.SentimentNegative,
		result.Urgency == models.UrgencyHigh:
		return models.PriorityUrgent
	}
	switch result.Intent {
	case models.IntentPurchaseIntent, models.IntentQuoteRequest:
		return models.PriorityHigh
	case models.IntentPriceCheck, models.IntentOrderStatus, models.IntentPaymentIssue, models.IntentReturnRequest:
		return models.PriorityNormal
	default:
		return models.PriorityLow
	}
}
