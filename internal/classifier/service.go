package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"leadflow/internal/constants"
	"leadflow/internal/errors"
	"leadflow/internal/kv"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
	"leadflow/pkg/circuitbreaker"
)

const cacheKeyPrefix = "classify:"

// Service picks the AI backend when it is configured and healthy, serves
// repeated inputs from the cache and falls back to the rule-based classifier
// on any AI failure. Classify never returns an error.
type Service struct {
	ai       Classifier
	rules    *RuleBased
	cache    kv.Store
	cacheTTL time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	logger   logrus.FieldLogger
	metrics  *metrics.Pipeline
	tracer   trace.Tracer
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCache enables result caching on store.
func WithCache(store kv.Store, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = store
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) ServiceOption {
	return func(s *Service) { s.breaker = cb }
}

// WithMetrics records classifications on p.
func WithMetrics(p *metrics.Pipeline) ServiceOption {
	return func(s *Service) { s.metrics = p }
}

// WithTracer sets the tracer used for classification spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// NewService builds the classification service. ai may be nil, in which case
// every message is classified by rules.
func NewService(ai Classifier, logger logrus.FieldLogger, opts ...ServiceOption) *Service {
	s := &Service{
		ai:       ai,
		rules:    NewRuleBased(),
		cacheTTL: constants.DefaultClassificationTTL,
		logger:   logger,
		tracer:   otel.Tracer("leadflow/classifier"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.New("ai-classifier", constants.BreakerMaxFailures,
			constants.BreakerResetTimeoutSec*time.Second, circuitbreaker.WithLogger(logger))
	}
	return s
}

// AIConfigured reports whether an AI backend is wired.
func (s *Service) AIConfigured() bool {
	return s.ai != nil
}

// BreakerStats exposes the AI circuit breaker state.
func (s *Service) BreakerStats() circuitbreaker.Stats {
	return s.breaker.Stats()
}

func (s *Service) Classify(ctx context.Context, text string, opts Options) (*models.ClassificationResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "classifier.classify")
	defer span.End()

	result, cached := s.classify(ctx, text, opts)

	span.SetAttributes(
		attribute.String("classifier.intent", string(result.Intent)),
		attribute.String("classifier.source", string(result.Source)),
		attribute.Bool("classifier.cached", cached),
	)
	s.metrics.ObserveClassification(string(result.Source), string(result.Intent), cached, time.Since(start))
	return result, nil
}

func (s *Service) classify(ctx context.Context, text string, opts Options) (*models.ClassificationResult, bool) {
	if s.ai == nil {
		return s.rules.classify(text), false
	}

	useCache := s.cache != nil && !opts.NoCache
	key := CacheKey(text, opts)
	if useCache {
		if result, ok := s.fromCache(ctx, key); ok {
			return result, true
		}
	}

	var result *models.ClassificationResult
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := s.ai.Classify(ctx, text, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		errors.LogRetryableError(s.logger, errors.NewClassificationUnavailableError(err),
			"AI classification failed, using rule-based fallback",
			logrus.Fields{"breaker_open": circuitbreaker.IsCircuitBreakerError(err)})
		fallback := s.rules.classify(text)
		if useCache {
			s.toCache(ctx, key, fallback, s.fallbackTTL())
		}
		return fallback, false
	}

	if useCache {
		s.toCache(ctx, key, result, s.cacheTTL)
	}
	return result, false
}

func (s *Service) fromCache(ctx context.Context, key string) (*models.ClassificationResult, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, kv.ErrNotFound) {
			errors.LogWarn(s.logger, errors.NewCacheError("get", err), "Classification cache read failed")
		}
		return nil, false
	}
	var result models.ClassificationResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.WithError(err).Warn("Discarding corrupt classification cache entry")
		return nil, false
	}
	return &result, true
}

// fallbackTTL keeps a repeated input stable during an AI outage without
// pinning it to the rule-based answer once the backend recovers.
func (s *Service) fallbackTTL() time.Duration {
	return min(constants.DefaultFallbackCacheTTL, s.cacheTTL)
}

func (s *Service) toCache(ctx context.Context, key string, result *models.ClassificationResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		errors.LogWarn(s.logger, errors.NewCacheError("set", err), "Classification cache write failed")
	}
}

// CacheKey derives the cache key from the text and the context that shapes
// the AI answer.
func CacheKey(text string, opts Options) string {
	h := sha256.New()
	for _, m := range opts.ContextMessages {
		h.Write([]byte(m))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	h.Write([]byte(opts.CustomerName))
	h.Write([]byte{1})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
