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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowCap(t *testing.T) {
	l := NewRateLimiter(WithLimit(ResourceModel, Limit{Limit: 2, Window: time.Minute}))
	ctx := context.Background()

	count, err := l.CheckLimit(ctx, ResourceModel, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	count, err = l.CheckLimit(ctx, ResourceModel, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// At the cap: rejected without incrementing.
	count, err = l.CheckLimit(ctx, ResourceModel, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 2, count)
	count, err = l.CheckLimit(ctx, ResourceModel, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 2, count)
}

func TestWindowsAreKeyedPerUserAndResource(t *testing.T) {
	l := NewRateLimiter(WithLimit(ResourceModel, Limit{Limit: 1, Window: time.Minute}))
	ctx := context.Background()

	_, err := l.CheckLimit(ctx, ResourceModel, "alice")
	require.NoError(t, err)
	_, err = l.CheckLimit(ctx, ResourceModel, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other users and other resources are unaffected.
	_, err = l.CheckLimit(ctx, ResourceModel, "bob")
	assert.NoError(t, err)
	_, err = l.CheckLimit(ctx, ResourceAPI, "alice")
	assert.NoError(t, err)
}

func TestWindowRollOverResets(t *testing.T) {
	l := NewRateLimiter(WithLimit(ResourceModel, Limit{Limit: 1, Window: 20 * time.Millisecond}))
	ctx := context.Background()

	_, err := l.CheckLimit(ctx, ResourceModel, "alice")
	require.NoError(t, err)
	_, err = l.CheckLimit(ctx, ResourceModel, "alice")
	require.ErrorIs(t, err, ErrRateLimited)

	time.Sleep(30 * time.Millisecond)
	count, err := l.CheckLimit(ctx, ResourceModel, "alice")
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUnconfiguredResourcePasses(t *testing.T) {
	l := NewRateLimiter()
	_, err := l.CheckLimit(context.Background(), "unheard_of", "alice")
	assert.NoError(t, err)
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()
	assert.Equal(t, Limit{Limit: 60, Window: time.Minute}, limits[ResourceModel])
	assert.Equal(t, Limit{Limit: 120, Window: time.Minute}, limits[ResourceAPI])
	assert.Equal(t, Limit{Limit: 30, Window: time.Minute}, limits[ResourceSearch])
	assert.Equal(t, Limit{Limit: 60, Window: time.Minute}, limits[ResourceFile])
	assert.Equal(t, Limit{Limit: 20, Window: time.Minute}, limits[ResourceAdmin])
}

func TestRedisCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRateLimiter(
		WithCounterStore(NewRedisCounters(client, "")),
		WithLimit(ResourceModel, Limit{Limit: 2, Window: time.Minute}),
	)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, err := l.CheckLimit(ctx, ResourceModel, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, i, count)
	}
	count, err := l.CheckLimit(ctx, ResourceModel, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 2, count)

	// Roll-over: the key expires with the window.
	mr.FastForward(2 * time.Minute)
	count, err = l.CheckLimit(ctx, ResourceModel, "alice")
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
