//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package auth implements the security gate: API-key and JWT
// authentication, RBAC, rate limiting, resource quotas, and
// content-safety checks.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// API key lifecycle states.
const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
	KeyStatusExpired = "expired"
)

// Key format: "<prefix>.<secret>". The prefix is stored in clear and
// indexes the key; only a bcrypt hash of the secret is persisted.
const (
	keyPrefixBytes = 4  // 8 hex chars
	keySecretBytes = 16 // 32 hex chars
)

// Authentication failures.
var (
	ErrNoCredentials   = errors.New("no credentials supplied")
	ErrMalformedKey    = errors.New("malformed api key")
	ErrUnknownKey      = errors.New("unknown api key")
	ErrKeyRevoked      = errors.New("api key revoked")
	ErrKeyExpired      = errors.New("api key expired")
	ErrKeyInvalid      = errors.New("api key secret mismatch")
	ErrAccountDisabled = errors.New("service account disabled")
)

// ServiceAccount is a non-human principal that owns API keys.
type ServiceAccount struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// APIKey is a credential scoped to a service account. Keys may carry
// fewer permissions than their account.
type APIKey struct {
	ID               string    `json:"id"`
	Prefix           string    `json:"prefix"`
	SecretHash       []byte    `json:"secret_hash"`
	ServiceAccountID string    `json:"service_account_id"`
	Permissions      []string  `json:"permissions,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	LastUsedAt       time.Time `json:"last_used_at,omitempty"`
	Status           string    `json:"status"`
}

// AuthResult is the identity the gate hands to the rest of the runtime.
type AuthResult struct {
	UserID      string         `json:"user_id"`
	AccountName string         `json:"account_name,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	// Method records how the caller authenticated: "api_key" or "jwt".
	Method string `json:"method"`
}

// KeyStore manages service accounts and their API keys in memory.
type KeyStore struct {
	mu       sync.RWMutex
	accounts map[string]*ServiceAccount // by account id
	keys     map[string]*APIKey         // by prefix
	byID     map[string]*APIKey         // by key id
}

// NewKeyStore creates an empty key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		accounts: make(map[string]*ServiceAccount),
		keys:     make(map[string]*APIKey),
		byID:     make(map[string]*APIKey),
	}
}

// CreateAccount registers a service account.
func (s *KeyStore) CreateAccount(name, ownerID string, roles, permissions []string) *ServiceAccount {
	account := &ServiceAccount{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerID:     ownerID,
		Roles:       append([]string(nil), roles...),
		Permissions: append([]string(nil), permissions...),
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	s.accounts[account.ID] = account
	s.mu.Unlock()
	return account
}

// GetAccount looks up a service account.
func (s *KeyStore) GetAccount(id string) (*ServiceAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	return account, ok
}

// SetAccountActive toggles an account. Keys of a disabled account fail
// verification without changing key status.
func (s *KeyStore) SetAccountActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("service account %s not found", id)
	}
	account.IsActive = active
	return nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GenerateKey mints a new API key for an account. The returned plaintext
// "<prefix>.<secret>" exists only here; the store keeps the bcrypt hash.
// expiresInDays ≤ 0 with expire=true means the key is born expired,
// which is how short-lived test keys are made; pass expire=false for a
// key with no expiry.
func (s *KeyStore) GenerateKey(accountID string, permissions []string, expiresInDays int, expire bool) (plaintext string, key *APIKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return "", nil, fmt.Errorf("service account %s not found", accountID)
	}
	prefix, err := randomHex(keyPrefixBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate key prefix: %w", err)
	}
	secret, err := randomHex(keySecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate key secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key secret: %w", err)
	}
	key = &APIKey{
		ID:               uuid.NewString(),
		Prefix:           prefix,
		SecretHash:       hash,
		ServiceAccountID: accountID,
		Permissions:      append([]string(nil), permissions...),
		CreatedAt:        time.Now(),
		Status:           KeyStatusActive,
	}
	if expire {
		key.ExpiresAt = time.Now().Add(time.Duration(expiresInDays) * 24 * time.Hour)
	}
	s.keys[prefix] = key
	s.byID[key.ID] = key
	return prefix + "." + secret, key, nil
}

// Verify authenticates a plaintext key and returns the caller identity.
// Expired active keys transition to expired on this path.
func (s *KeyStore) Verify(_ context.Context, plaintext string) (*AuthResult, error) {
	prefix, secret, ok := strings.Cut(plaintext, ".")
	if !ok || prefix == "" || secret == "" {
		return nil, ErrMalformedKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[prefix]
	if !ok {
		return nil, ErrUnknownKey
	}
	switch key.Status {
	case KeyStatusActive:
	case KeyStatusRevoked:
		return nil, ErrKeyRevoked
	case KeyStatusExpired:
		return nil, ErrKeyExpired
	default:
		return nil, fmt.Errorf("api key in unknown state %q", key.Status)
	}
	if !key.ExpiresAt.IsZero() && !key.ExpiresAt.After(time.Now()) {
		key.Status = KeyStatusExpired
		return nil, ErrKeyExpired
	}
	if err := bcrypt.CompareHashAndPassword(key.SecretHash, []byte(secret)); err != nil {
		return nil, ErrKeyInvalid
	}
	account, ok := s.accounts[key.ServiceAccountID]
	if !ok || !account.IsActive {
		return nil, ErrAccountDisabled
	}
	key.LastUsedAt = time.Now()
	// Roles come from the account; permissions come from the key, which
	// may be scoped below its account.
	return &AuthResult{
		UserID:      account.OwnerID,
		AccountName: account.Name,
		Roles:       append([]string(nil), account.Roles...),
		Permissions: append([]string(nil), key.Permissions...),
		Method:      "api_key",
	}, nil
}

// Revoke permanently disables a key by id.
func (s *KeyStore) Revoke(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[keyID]
	if !ok {
		return fmt.Errorf("api key %s not found", keyID)
	}
	key.Status = KeyStatusRevoked
	return nil
}

// Rotate revokes a key and mints a replacement with the same account,
// permissions and expiry policy.
func (s *KeyStore) Rotate(keyID string) (string, *APIKey, error) {
	s.mu.Lock()
	old, ok := s.byID[keyID]
	if !ok {
		s.mu.Unlock()
		return "", nil, fmt.Errorf("api key %s not found", keyID)
	}
	old.Status = KeyStatusRevoked
	accountID := old.ServiceAccountID
	permissions := append([]string(nil), old.Permissions...)
	expire := !old.ExpiresAt.IsZero()
	var days int
	if expire {
		days = int(time.Until(old.ExpiresAt).Hours()/24) + 1
		if days < 1 {
			days = 1
		}
	}
	s.mu.Unlock()
	return s.GenerateKey(accountID, permissions, days, expire)
}

// List returns an account's keys, skipping expired ones unless asked.
func (s *KeyStore) List(accountID string, includeExpired bool) []*APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*APIKey
	for _, key := range s.byID {
		if key.ServiceAccountID != accountID {
			continue
		}
		if !includeExpired && key.Status == KeyStatusExpired {
			continue
		}
		out = append(out, key)
	}
	return out
}
