//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package config loads runtime configuration from the environment, with
// .env file support for development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ensembleworks/ensemble/log"
)

// Config is the runtime configuration snapshot.
type Config struct {
	// UseRedis selects the Redis session backend over in-memory.
	UseRedis bool
	// RedisURL is the redis:// connection URL.
	RedisURL string
	// RedisPrefix namespaces all session keys.
	RedisPrefix string
	// RedisExpiry is the sliding session TTL.
	RedisExpiry time.Duration
	// RedisMaxConnections sizes the connection pool.
	RedisMaxConnections int
	// RedisSocketTimeout bounds socket reads and writes.
	RedisSocketTimeout time.Duration

	// ContextMaxMessages bounds the per-session message buffer.
	ContextMaxMessages int
	// ContextMaxContentLength caps stored message content.
	ContextMaxContentLength int

	// JWTSecretKey signs and verifies tokens. Empty disables the JWT
	// authentication path.
	JWTSecretKey string

	// OpenAIAPIKey authenticates model calls.
	OpenAIAPIKey string
	// OpenAIBaseURL points at an OpenAI-compatible endpoint.
	OpenAIBaseURL string

	// LogLevel sets the logging threshold: debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first without overriding real
// environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("load .env: %v", err)
	}
	return &Config{
		UseRedis:                envBool("USE_REDIS", false),
		RedisURL:                envString("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:             envString("REDIS_PREFIX", "agent:session:"),
		RedisExpiry:             envSeconds("REDIS_EXPIRY", 3600),
		RedisMaxConnections:     envInt("REDIS_MAX_CONNECTIONS", 10),
		RedisSocketTimeout:      envSeconds("REDIS_SOCKET_TIMEOUT", 5),
		ContextMaxMessages:      envInt("CONTEXT_MAX_MESSAGES", 20),
		ContextMaxContentLength: envInt("CONTEXT_MAX_CONTENT_LENGTH", 10000),
		JWTSecretKey:            envString("JWT_SECRET_KEY", ""),
		OpenAIAPIKey:            envString("OPENAI_API_KEY", ""),
		OpenAIBaseURL:           envString("OPENAI_BASE_URL", ""),
		LogLevel:                envString("LOG_LEVEL", "info"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
