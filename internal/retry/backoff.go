package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/models"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// FromModel builds a jittered doubling backoff from the retry section of the
// service configuration. Zero values fall back to the defaults.
func FromModel(cfg models.RetryConfig) BackoffConfig {
	out := DefaultBackoffConfig()
	if cfg.InitialBackoffMs > 0 {
		out.InitialDelay = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		out.MaxDelay = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if out.MaxDelay < out.InitialDelay {
		out.MaxDelay = out.InitialDelay
	}
	return out
}

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config BackoffConfig
	logger logrus.FieldLogger
	name   string
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Backoff)

// WithLogger logs every failed attempt that will be retried.
func WithLogger(logger logrus.FieldLogger, operation string) Option {
	return func(b *Backoff) {
		b.logger = logger
		b.name = operation
	}
}

func NewBackoff(config BackoffConfig, opts ...Option) *Backoff {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	b := &Backoff{config: config, sleep: sleepContext}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Retry retries every error until attempts run out.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryTransient retries only errors classified as retryable by the
// application error model.
func (b *Backoff) RetryTransient(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, apperrors.IsRetryable)
}

// RetryWithPredicate stops on the first success, the first error
// isRetryable rejects, context cancellation or the last attempt.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == b.config.MaxAttempts {
			break
		}

		delay := b.calculateDelay(attempt)
		if b.logger != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"operation":    b.name,
				"attempt":      attempt,
				"max_attempts": b.config.MaxAttempts,
				"retry_in_ms":  delay.Milliseconds(),
			}).Warn("Operation failed, retrying")
		}

		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// GetNextDelay returns the delay that would follow the given attempt.
func (b *Backoff) GetNextDelay(attempt int) time.Duration {
	return b.calculateDelay(attempt)
}

func (b *Backoff) calculateDelay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// +/-25%
	if b.config.Jitter {
		delay += (secureFloat64() - 0.5) * 0.5 * delay
		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureFloat64 returns a value in [0, 1).
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Int64()) / float64(1<<53)
}
