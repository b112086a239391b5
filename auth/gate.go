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

	"github.com/ensembleworks/ensemble/log"
)

// AnonymousUserID identifies unauthenticated callers.
const AnonymousUserID = "anonymous"

// Gate is the single security entry point: authentication, RBAC, rate
// limiting, quotas and content safety behind one object. Everything but
// API-key lookup and counter state evaluates in memory.
type Gate struct {
	keys    *KeyStore
	jwt     *JWTManager
	rbac    *RBAC
	limiter *RateLimiter
	quotas  *QuotaManager
	content *ContentFilter

	allowAnonymous bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithKeyStore sets the API-key store.
func WithKeyStore(s *KeyStore) GateOption {
	return func(g *Gate) { g.keys = s }
}

// WithJWTManager sets the token manager.
func WithJWTManager(m *JWTManager) GateOption {
	return func(g *Gate) { g.jwt = m }
}

// WithRBAC sets the role resolver.
func WithRBAC(r *RBAC) GateOption {
	return func(g *Gate) { g.rbac = r }
}

// WithRateLimiter sets the rate limiter.
func WithRateLimiter(l *RateLimiter) GateOption {
	return func(g *Gate) { g.limiter = l }
}

// WithQuotaManager sets the quota manager.
func WithQuotaManager(q *QuotaManager) GateOption {
	return func(g *Gate) { g.quotas = q }
}

// WithContentFilter sets the content filter.
func WithContentFilter(f *ContentFilter) GateOption {
	return func(g *Gate) { g.content = f }
}

// WithAllowAnonymous lets credential-less callers through as the
// anonymous guest identity instead of failing.
func WithAllowAnonymous(allow bool) GateOption {
	return func(g *Gate) { g.allowAnonymous = allow }
}

// NewGate assembles a gate. Components left unset get defaults; the JWT
// manager stays nil without a secret and the JWT path then fails.
func NewGate(opts ...GateOption) (*Gate, error) {
	rbac, err := NewRBAC(DefaultRoles())
	if err != nil {
		return nil, err
	}
	g := &Gate{
		keys:           NewKeyStore(),
		rbac:           rbac,
		limiter:        NewRateLimiter(),
		quotas:         NewQuotaManager(),
		content:        NewContentFilter(),
		allowAnonymous: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// KeyStore exposes the gate's API-key store for key management.
func (g *Gate) KeyStore() *KeyStore { return g.keys }

// JWTManager exposes the gate's token manager, nil when unconfigured.
func (g *Gate) JWTManager() *JWTManager { return g.jwt }

// Quotas exposes the gate's quota manager for usage accounting.
func (g *Gate) Quotas() *QuotaManager { return g.quotas }

// Authenticate resolves a caller identity from an API key or JWT. The
// key path wins when both are supplied. Without credentials the gate
// returns the anonymous guest identity when allowed, ErrNoCredentials
// otherwise.
func (g *Gate) Authenticate(ctx context.Context, apiKey, jwtToken string) (*AuthResult, error) {
	switch {
	case apiKey != "":
		return g.keys.Verify(ctx, apiKey)
	case jwtToken != "":
		if g.jwt == nil {
			return nil, fmt.Errorf("%w: jwt not configured", ErrInvalidToken)
		}
		return g.jwt.VerifyAccess(jwtToken)
	case g.allowAnonymous:
		return &AuthResult{
			UserID: AnonymousUserID,
			Roles:  []string{"guest"},
			Method: "anonymous",
		}, nil
	default:
		return nil, ErrNoCredentials
	}
}

// RequirePermission runs the RBAC check.
func (g *Gate) RequirePermission(result *AuthResult, permission string) error {
	return g.rbac.Check(result, permission)
}

// CheckLimit counts one event against the caller's fixed window.
func (g *Gate) CheckLimit(ctx context.Context, resource, userID string) error {
	_, err := g.limiter.CheckLimit(ctx, resource, userID)
	return err
}

// CheckQuota validates a reservation without consuming.
func (g *Gate) CheckQuota(userID, resource string, amount int64) error {
	return g.quotas.CheckQuota(userID, resource, amount)
}

// UseQuota consumes quota after the work is done.
func (g *Gate) UseQuota(userID, resource string, amount int64) {
	g.quotas.UseQuota(userID, resource, amount)
}

// CheckContent scans user input. Filterable findings come back as
// masked text; anything else fails ErrContentBlocked.
func (g *Gate) CheckContent(input string) (string, error) {
	result := g.content.Check(input)
	if !result.IsFlagged {
		return input, nil
	}
	if result.SafeToUse {
		log.Infof("content filter masked input, flags=%v", result.Flags)
		return result.FilteredContent, nil
	}
	return "", fmt.Errorf("%w: %v", ErrContentBlocked, result.Flags)
}
