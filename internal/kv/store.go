// Package kv provides the short-lived key-value state of the pipeline:
// debounce gates, deferred queues, the classification cache and the
// per-user notification ring buffers.
package kv

import (
	"context"
	stderrors "errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = stderrors.New("kv: key not found")
	// ErrConflict is returned by UpdateList when concurrent writers kept
	// changing the list.
	ErrConflict = stderrors.New("kv: list changed concurrently")
)

// ListUpdate receives the current list and returns its replacement and
// whether anything changed. It may run more than once and must not touch
// the store.
type ListUpdate func(items [][]byte) ([][]byte, bool)

// Store is the subset of Redis semantics the pipeline relies on. Every
// operation is atomic per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets key only when absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	// PushFront inserts value at the head, keeps the first maxLen items and
	// refreshes the TTL.
	PushFront(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error
	// PushBack appends value, keeps the last maxLen items and refreshes the TTL.
	PushBack(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	// Drain returns the whole list and deletes it in one step.
	Drain(ctx context.Context, key string) ([][]byte, error)
	// UpdateList rewrites the list atomically, keeping its remaining TTL. A
	// write landing between the read and the rewrite is never lost.
	UpdateList(ctx context.Context, key string, update ListUpdate) error

	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
