//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned when a fixed-window counter is at its cap.
var ErrRateLimited = errors.New("rate limited")

// Rate-limited resource types.
const (
	ResourceModel  = "model"
	ResourceAPI    = "api"
	ResourceSearch = "search"
	ResourceFile   = "file"
	ResourceAdmin  = "admin"
)

// Limit is a fixed-window rate: at most Limit events per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits returns the stock per-resource limits.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		ResourceModel:  {Limit: 60, Window: time.Minute},
		ResourceAPI:    {Limit: 120, Window: time.Minute},
		ResourceSearch: {Limit: 30, Window: time.Minute},
		ResourceFile:   {Limit: 60, Window: time.Minute},
		ResourceAdmin:  {Limit: 20, Window: time.Minute},
	}
}

// CounterStore is the fixed-window counter backend. Increment must be
// atomic: when the current window's count is already at limit it leaves
// the counter untouched and reports allowed=false; otherwise it
// increments and returns the updated count.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration, limit int) (count int64, allowed bool, err error)
}

// memoryCounters is the process-local counter backend.
type memoryCounters struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int64
}

// NewMemoryCounters creates the in-process counter store.
func NewMemoryCounters() CounterStore {
	return &memoryCounters{windows: make(map[string]*windowEntry)}
}

func (m *memoryCounters) Increment(_ context.Context, key string, window time.Duration, limit int) (int64, bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.windows[key]
	if !ok || now.Sub(entry.start) >= window {
		entry = &windowEntry{start: now.Truncate(window)}
		m.windows[key] = entry
	}
	if entry.count >= int64(limit) {
		return entry.count, false, nil
	}
	entry.count++
	return entry.count, true, nil
}

// RateLimiter enforces fixed-window limits keyed by (resource, user).
type RateLimiter struct {
	store  CounterStore
	limits map[string]Limit
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithCounterStore swaps the counter backend, e.g. for shared Redis
// counters across replicas.
func WithCounterStore(store CounterStore) RateLimiterOption {
	return func(l *RateLimiter) {
		if store != nil {
			l.store = store
		}
	}
}

// WithLimit overrides one resource's limit.
func WithLimit(resource string, limit Limit) RateLimiterOption {
	return func(l *RateLimiter) {
		l.limits[resource] = limit
	}
}

// NewRateLimiter creates a limiter with the default per-resource limits
// and the in-process counter store.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		store:  NewMemoryCounters(),
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit counts one event against (resource, user). It returns the
// updated in-window count, or ErrRateLimited without incrementing when
// the window is full. Resources with no configured limit always pass.
func (l *RateLimiter) CheckLimit(ctx context.Context, resource, userID string) (int64, error) {
	limit, ok := l.limits[resource]
	if !ok || limit.Limit <= 0 {
		return 0, nil
	}
	key := resource + ":" + userID
	count, allowed, err := l.store.Increment(ctx, key, limit.Window, limit.Limit)
	if err != nil {
		return 0, fmt.Errorf("rate limit check %s: %w", key, err)
	}
	if !allowed {
		return count, fmt.Errorf("%w: %s at %d/%s", ErrRateLimited, resource, limit.Limit, limit.Window)
	}
	return count, nil
}
