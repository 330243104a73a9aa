// Package classifier assigns an intent, sentiment, urgency and entities to a
// chat message. An AI backend is preferred when configured; a local
// rule-based classifier is always available as the fallback.
package classifier

import (
	"context"

	"leadflow/internal/models"
)

// Options carries the optional conversation context for a classification.
type Options struct {
	// ContextMessages are earlier texts of the same conversation, oldest first.
	ContextMessages []string
	CustomerName    string
	// NoCache bypasses the classification cache for this call.
	NoCache bool
}

// Classifier is implemented by every classification backend.
type Classifier interface {
	Classify(ctx context.Context, text string, opts Options) (*models.ClassificationResult, error)
}
