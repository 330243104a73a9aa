package kv

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	list      [][]byte
	isList    bool
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store used when no Redis URL is configured
// and in tests. Now is replaceable to drive TTL expiry deterministically.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	Now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore on the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		Now:     time.Now,
	}
}

// live returns the entry for key, evicting it if expired. Callers hold mu.
func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(s.Now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.Now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.isList {
		return nil, ErrNotFound
	}
	return clone(e.value), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memEntry{value: clone(value), expiresAt: s.deadline(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	s.entries[key] = &memEntry{value: clone(value), expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key) != nil, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) listEntry(key string) *memEntry {
	e := s.live(key)
	if e == nil || !e.isList {
		e = &memEntry{isList: true}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) PushFront(_ context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.listEntry(key)
	e.list = append([][]byte{clone(value)}, e.list...)
	if maxLen > 0 && int64(len(e.list)) > maxLen {
		e.list = e.list[:maxLen]
	}
	if ttl > 0 {
		e.expiresAt = s.deadline(ttl)
	}
	return nil
}

func (s *MemoryStore) PushBack(_ context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.listEntry(key)
	e.list = append(e.list, clone(value))
	if maxLen > 0 && int64(len(e.list)) > maxLen {
		e.list = e.list[int64(len(e.list))-maxLen:]
	}
	if ttl > 0 {
		e.expiresAt = s.deadline(ttl)
	}
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || !e.isList {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range e.list[start : stop+1] {
		out = append(out, clone(v))
	}
	return out, nil
}

func (s *MemoryStore) Drain(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || !e.isList {
		return [][]byte{}, nil
	}
	delete(s.entries, key)
	return e.list, nil
}

// UpdateList runs update with the store locked, so no write interleaves.
func (s *MemoryStore) UpdateList(_ context.Context, key string, update ListUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	var current [][]byte
	if e != nil && e.isList {
		current = make([][]byte, len(e.list))
		for i, v := range e.list {
			current[i] = clone(v)
		}
	}
	values, changed := update(current)
	if !changed {
		return nil
	}
	if len(values) == 0 {
		delete(s.entries, key)
		return nil
	}
	list := make([][]byte, len(values))
	for i, v := range values {
		list[i] = clone(v)
	}
	replacement := &memEntry{isList: true, list: list}
	if e != nil {
		replacement.expiresAt = e.expiresAt
	}
	s.entries[key] = replacement
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	var keys []string
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
