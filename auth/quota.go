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
	"errors"
	"fmt"
	"sync"
)

// ErrQuotaExceeded is returned when a reservation would pass the cap.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Quota-tracked resource types.
const (
	QuotaModelTokens = "model_tokens"
	QuotaModelCalls  = "model_calls"
	QuotaAPICalls    = "api_calls"
	QuotaStorageMB   = "storage_mb"
)

// DefaultQuotaCaps returns the stock per-user cumulative caps.
func DefaultQuotaCaps() map[string]int64 {
	return map[string]int64{
		QuotaModelTokens: 1_000_000,
		QuotaModelCalls:  10_000,
		QuotaAPICalls:    100_000,
		QuotaStorageMB:   1_024,
	}
}

// QuotaManager tracks cumulative resource usage per (user, resource)
// with a reserve-then-consume pattern: CheckQuota validates a
// reservation, UseQuota adds unconditionally.
type QuotaManager struct {
	mu   sync.Mutex
	caps map[string]int64
	used map[string]int64
}

// NewQuotaManager creates a manager with the default caps.
func NewQuotaManager() *QuotaManager {
	return &QuotaManager{
		caps: DefaultQuotaCaps(),
		used: make(map[string]int64),
	}
}

// SetCap overrides one resource's cap. A cap of zero removes the limit.
func (q *QuotaManager) SetCap(resource string, limit int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 {
		delete(q.caps, resource)
		return
	}
	q.caps[resource] = limit
}

func quotaKey(userID, resource string) string {
	return userID + ":" + resource
}

// CheckQuota fails ErrQuotaExceeded if used + amount would pass the cap.
// It does not consume.
func (q *QuotaManager) CheckQuota(userID, resource string, amount int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	limit, ok := q.caps[resource]
	if !ok {
		return nil
	}
	if q.used[quotaKey(userID, resource)]+amount > limit {
		return fmt.Errorf("%w: %s for %s", ErrQuotaExceeded, resource, userID)
	}
	return nil
}

// UseQuota consumes unconditionally; callers check first.
func (q *QuotaManager) UseQuota(userID, resource string, amount int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used[quotaKey(userID, resource)] += amount
}

// Usage returns the cumulative usage for (user, resource).
func (q *QuotaManager) Usage(userID, resource string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used[quotaKey(userID, resource)]
}
