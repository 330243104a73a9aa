package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	"leadflow/internal/models"
	"leadflow/internal/phone"
)

// ContextResolver builds the read-only customer snapshot used to classify
// and route a message.
type ContextResolver struct {
	store      CustomerStore
	turnsLimit int
	logger     logrus.FieldLogger
}

func NewContextResolver(store CustomerStore, turnsLimit int, logger logrus.FieldLogger) *ContextResolver {
	if turnsLimit <= 0 {
		turnsLimit = constants.DefaultContextMessages
	}
	return &ContextResolver{store: store, turnsLimit: turnsLimit, logger: logger}
}

// Resolve looks up sender. A failed customer lookup is an error; missing
// history only degrades the snapshot.
func (r *ContextResolver) Resolve(ctx context.Context, sender string) (*models.CustomerContext, error) {
	customer, err := r.store.FindCustomerByPhone(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}
	// numbers too short for a full match suffix only count on exact equality
	if customer != nil && customer.Phone != "" && customer.Phone != sender && !phone.Match(customer.Phone, sender) {
		customer = nil
	}

	cc := &models.CustomerContext{
		IsKnown:         customer != nil,
		Customer:        customer,
		RecentSentiment: models.SentimentNeutral,
	}
	if customer != nil {
		cc.SellerID = customer.SellerID
	}

	stats, err := r.store.ConversationStats(ctx, sender)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load conversation stats")
	} else {
		cc.Stats = stats
	}

	turns, err := r.store.RecentTurns(ctx, sender, r.turnsLimit)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load recent conversation turns")
	} else {
		cc.RecentTurns = turns
		cc.RecentSentiment = dominantSentiment(turns)
	}
	return cc, nil
}

// dominantSentiment is the majority of non-neutral sentiments; ties and
// empty histories are neutral.
func dominantSentiment(turns []models.ConversationTurn) models.Sentiment {
	var positive, negative int
	for _, t := range turns {
		switch t.Sentiment {
		case models.SentimentPositive:
			positive++
		case models.SentimentNegative:
			negative++
		}
	}
	switch {
	case negative > positive:
		return models.SentimentNegative
	case positive > negative:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

// contextMessages returns recent texts oldest first for classifier prompts.
func contextMessages(cc *models.CustomerContext) []string {
	if cc == nil || len(cc.RecentTurns) == 0 {
		return nil
	}
	out := make([]string, 0, len(cc.RecentTurns))
	for i := len(cc.RecentTurns) - 1; i >= 0; i-- {
		if text := cc.RecentTurns[i].Text; text != "" {
			out = append(out, text)
		}
	}
	return out
}
