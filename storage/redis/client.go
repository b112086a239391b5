//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package redis centralizes Redis client construction: one place for URL
// parsing, pool sizing and named shared instances.
package redis

import (
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool defaults applied when the URL does not override them.
const (
	DefaultMaxConnections = 10
	DefaultSocketTimeout  = 5 * time.Second
)

// ClientBuilderOpts holds client construction parameters.
type ClientBuilderOpts struct {
	URL            string
	InstanceName   string
	MaxConnections int
	SocketTimeout  time.Duration
}

// ClientBuilderOpt configures client construction.
type ClientBuilderOpt func(*ClientBuilderOpts)

// WithClientBuilderURL sets the redis:// connection URL.
func WithClientBuilderURL(url string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) {
		o.URL = url
	}
}

// WithInstanceName selects a registered named instance instead of a URL.
func WithInstanceName(name string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) {
		o.InstanceName = name
	}
}

// WithMaxConnections sets the connection pool size.
func WithMaxConnections(n int) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) {
		o.MaxConnections = n
	}
}

// WithSocketTimeout sets read/write/dial timeouts.
func WithSocketTimeout(d time.Duration) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) {
		o.SocketTimeout = d
	}
}

// ClientBuilder constructs a Redis client from builder options.
type ClientBuilder func(opts ...ClientBuilderOpt) (redis.UniversalClient, error)

var (
	globalMu  sync.RWMutex
	builder   ClientBuilder = DefaultClientBuilder
	instances               = make(map[string]string)
)

// SetClientBuilder replaces the global client builder, letting tests or
// embedders inject their own construction path.
func SetClientBuilder(b ClientBuilder) {
	if b == nil {
		return
	}
	globalMu.Lock()
	builder = b
	globalMu.Unlock()
}

// GetClientBuilder returns the global client builder.
func GetClientBuilder() ClientBuilder {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return builder
}

// RegisterRedisInstance names a connection URL so components can share
// one logical instance by name.
func RegisterRedisInstance(name, url string) {
	globalMu.Lock()
	instances[name] = url
	globalMu.Unlock()
}

// GetRedisInstance looks up a registered instance URL.
func GetRedisInstance(name string) (string, bool) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	url, ok := instances[name]
	return url, ok
}

// DefaultClientBuilder builds a client from a URL or a registered
// instance name, applying pool defaults the URL leaves unset.
func DefaultClientBuilder(opts ...ClientBuilderOpt) (redis.UniversalClient, error) {
	o := ClientBuilderOpts{
		MaxConnections: DefaultMaxConnections,
		SocketTimeout:  DefaultSocketTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	url := o.URL
	if url == "" && o.InstanceName != "" {
		registered, ok := GetRedisInstance(o.InstanceName)
		if !ok {
			return nil, fmt.Errorf("redis instance %q not registered", o.InstanceName)
		}
		url = registered
	}
	if url == "" {
		return nil, fmt.Errorf("redis client builder requires a URL or instance name")
	}
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ropts.PoolSize == 0 {
		ropts.PoolSize = o.MaxConnections
	}
	if ropts.ReadTimeout == 0 {
		ropts.ReadTimeout = o.SocketTimeout
	}
	if ropts.WriteTimeout == 0 {
		ropts.WriteTimeout = o.SocketTimeout
	}
	if ropts.DialTimeout == 0 {
		ropts.DialTimeout = o.SocketTimeout
	}
	return redis.NewClient(ropts), nil
}
