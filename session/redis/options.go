//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Defaults for the Redis session backend.
const (
	DefaultKeyPrefix  = "agent:session:"
	DefaultSessionTTL = time.Hour
)

// ServiceOpts holds the service configuration.
type ServiceOpts struct {
	url          string
	instanceName string
	keyPrefix    string
	sessionTTL   time.Duration
	client       redis.UniversalClient
}

// ServiceOpt configures the service.
type ServiceOpt func(*ServiceOpts)

// WithRedisClientURL sets the redis:// connection URL.
func WithRedisClientURL(url string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.url = url
	}
}

// WithRedisInstance selects a named instance registered with the
// storage layer.
func WithRedisInstance(name string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.instanceName = name
	}
}

// WithKeyPrefix overrides the key namespace prefix.
func WithKeyPrefix(prefix string) ServiceOpt {
	return func(o *ServiceOpts) {
		o.keyPrefix = prefix
	}
}

// WithSessionTTL sets the sliding session expiry. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) ServiceOpt {
	return func(o *ServiceOpts) {
		o.sessionTTL = ttl
	}
}

// WithRedisClient injects a pre-built client, bypassing the builder.
func WithRedisClient(client redis.UniversalClient) ServiceOpt {
	return func(o *ServiceOpts) {
		o.client = client
	}
}
