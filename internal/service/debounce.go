package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow/internal/constants"
	"leadflow/internal/kv"
)

const (
	gateKeyPrefix  = "debounce:"
	queueKeyPrefix = "deferred:"
)

// DebounceGate lets one message per sender through every TTL window and
// queues the rest for a later merged pass.
type DebounceGate struct {
	store    kv.Store
	ttl      time.Duration
	maxQueue int64
	queueTTL time.Duration
}

func NewDebounceGate(store kv.Store, ttl time.Duration, maxQueue int) *DebounceGate {
	if ttl <= 0 {
		ttl = constants.DefaultDebounceTTL
	}
	if maxQueue <= 0 {
		maxQueue = constants.DefaultDeferredQueueMaxSize
	}
	return &DebounceGate{
		store:    store,
		ttl:      ttl,
		maxQueue: int64(maxQueue),
		queueTTL: constants.DefaultDeferredQueueTTL,
	}
}

// TTL is the gate window.
func (g *DebounceGate) TTL() time.Duration {
	return g.ttl
}

// Acquire opens the gate for sender. It reports false when a gate is
// already open.
func (g *DebounceGate) Acquire(ctx context.Context, sender string) (bool, error) {
	opened, err := g.store.SetNX(ctx, gateKeyPrefix+sender, []byte(time.Now().UTC().Format(time.RFC3339Nano)), g.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire debounce gate: %w", err)
	}
	return opened, nil
}

// Active reports whether sender's gate is still open.
func (g *DebounceGate) Active(ctx context.Context, sender string) (bool, error) {
	return g.store.Exists(ctx, gateKeyPrefix+sender)
}

// Defer appends payload to sender's queue. Past the maximum size the oldest
// entry is dropped.
func (g *DebounceGate) Defer(ctx context.Context, sender string, payload []byte) error {
	if err := g.store.PushBack(ctx, queueKeyPrefix+sender, payload, g.maxQueue, g.queueTTL); err != nil {
		return fmt.Errorf("failed to defer message: %w", err)
	}
	return nil
}

// Pending lists senders with queued messages.
func (g *DebounceGate) Pending(ctx context.Context) ([]string, error) {
	keys, err := g.store.Keys(ctx, queueKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list deferred queues: %w", err)
	}
	senders := make([]string, 0, len(keys))
	for _, key := range keys {
		senders = append(senders, strings.TrimPrefix(key, queueKeyPrefix))
	}
	return senders, nil
}

// Drain empties sender's queue once the gate has expired. It returns nil
// while the gate is still open.
func (g *DebounceGate) Drain(ctx context.Context, sender string) ([][]byte, error) {
	active, err := g.Active(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to check debounce gate: %w", err)
	}
	if active {
		return nil, nil
	}
	items, err := g.store.Drain(ctx, queueKeyPrefix+sender)
	if err != nil {
		return nil, fmt.Errorf("failed to drain deferred queue: %w", err)
	}
	return items, nil
}
