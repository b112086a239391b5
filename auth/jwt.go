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
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// JWT failures.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT payload: subject identity plus authorization tags.
type Claims struct {
	TokenType   string         `json:"type"`
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens.
type JWTManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// JWTOption configures a JWTManager.
type JWTOption func(*JWTManager)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) JWTOption {
	return func(m *JWTManager) { m.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) JWTOption {
	return func(m *JWTManager) { m.refreshTTL = ttl }
}

// NewJWTManager creates a token manager with the given signing secret.
func NewJWTManager(secret, issuer string, opts ...JWTOption) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	m := &JWTManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *JWTManager) issue(subject, tokenType string, ttl time.Duration, roles, permissions []string, metadata map[string]any) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType:   tokenType,
		Roles:       roles,
		Permissions: permissions,
		Metadata:    metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueAccessToken mints an access token for the subject.
func (m *JWTManager) IssueAccessToken(subject string, roles, permissions []string, metadata map[string]any) (string, error) {
	return m.issue(subject, TokenTypeAccess, m.accessTTL, roles, permissions, metadata)
}

// IssueRefreshToken mints a refresh token for the subject.
func (m *JWTManager) IssueRefreshToken(subject string, roles, permissions []string, metadata map[string]any) (string, error) {
	return m.issue(subject, TokenTypeRefresh, m.refreshTTL, roles, permissions, metadata)
}

// parse verifies the signature and standard claims.
func (m *JWTManager) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess validates an access token and returns the caller
// identity. Refresh tokens are rejected here.
func (m *JWTManager) VerifyAccess(tokenString string) (*AuthResult, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: got %q", ErrWrongTokenType, claims.TokenType)
	}
	return &AuthResult{
		UserID:      claims.Subject,
		Roles:       append([]string(nil), claims.Roles...),
		Permissions: append([]string(nil), claims.Permissions...),
		Metadata:    claims.Metadata,
		Method:      "jwt",
	}, nil
}

// Refresh accepts a refresh token and emits a new access token carrying
// the same subject, roles and permissions.
func (m *JWTManager) Refresh(refreshToken string) (string, error) {
	claims, err := m.parse(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", fmt.Errorf("%w: got %q", ErrWrongTokenType, claims.TokenType)
	}
	return m.IssueAccessToken(claims.Subject, claims.Roles, claims.Permissions, claims.Metadata)
}
