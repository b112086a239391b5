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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript implements the capped fixed-window increment in one
// atomic step: never increment past the limit, expire the key at the
// window boundary so roll-over resets the count.
var incrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return {count, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {count, 1}
`)

// redisCounters backs the rate limiter with Redis so counters are
// shared across replicas.
type redisCounters struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisCounters creates a Redis-backed counter store.
func NewRedisCounters(client redis.UniversalClient, keyPrefix string) CounterStore {
	if keyPrefix == "" {
		keyPrefix = "agent:ratelimit:"
	}
	return &redisCounters{client: client, keyPrefix: keyPrefix}
}

func (r *redisCounters) Increment(ctx context.Context, key string, window time.Duration, limit int) (int64, bool, error) {
	res, err := incrementScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key}, limit, window.Milliseconds()).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis counter %s: %w", key, err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("redis counter %s: unexpected reply %v", key, res)
	}
	count, _ := vals[0].(int64)
	allowed, _ := vals[1].(int64)
	return count, allowed == 1, nil
}
