//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/model"
)

// Bridge binds one session to a caller identity and caches its context
// so a turn does one fetch up front and write-throughs afterwards. Every
// access runs the ownership rules for the bound caller, and every
// materialized context carries the synthetic "User info:" system message
// at index 0.
type Bridge struct {
	mu       sync.Mutex
	service  Service
	id       string
	userID   string
	userName string
	roles    []string
	cached   *agent.Context
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithCallerRoles attaches the caller's roles so admin access survives
// the ownership checks.
func WithCallerRoles(roles ...string) BridgeOption {
	return func(b *Bridge) {
		b.roles = append([]string(nil), roles...)
	}
}

// NewBridge creates a bridge for an existing session, bound to the
// calling user's identity.
func NewBridge(svc Service, sessionID, userID, userName string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		service:  svc,
		id:       sessionID,
		userID:   userID,
		userName: userName,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionID returns the bound session id.
func (b *Bridge) SessionID() string {
	return b.id
}

// userInfoBlock renders the caller identity injected into the context.
func (b *Bridge) userInfoBlock() string {
	return fmt.Sprintf("User info:\n- user_id: %s\n- user_name: %s", b.userID, b.userName)
}

// materializeLocked installs the "User info:" system message and caches
// the context. Caller holds the lock.
func (b *Bridge) materializeLocked(sess *Session) *agent.Context {
	c := sess.Context
	c.AppendRaw(agent.Message{Role: model.RoleSystem, Content: b.userInfoBlock()})
	b.cached = c
	return c
}

// GetContext returns the session context, fetching from the service on
// first use or when refresh is set. The caller must be allowed to read
// the session.
func (b *Bridge) GetContext(ctx context.Context, refresh bool) (*agent.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil && !refresh {
		return b.cached, nil
	}
	sess, err := b.service.GetSession(ctx, b.id)
	if err != nil {
		return nil, err
	}
	if !CanRead(sess, b.userID, b.roles) {
		return nil, fmt.Errorf("read session %s: %w", b.id, ErrAccessDenied)
	}
	return b.materializeLocked(sess), nil
}

// AddMessage appends through the service, then refreshes the cache from
// the stored session so both views stay aligned regardless of backend.
// The caller must be allowed to write to the session.
func (b *Bridge) AddMessage(ctx context.Context, msg agent.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, err := b.service.GetSession(ctx, b.id)
	if err != nil {
		return err
	}
	if !CanWrite(sess, b.userID, b.roles) {
		return fmt.Errorf("append to session %s: %w", b.id, ErrAccessDenied)
	}
	if err := b.service.AppendMessage(ctx, b.id, msg); err != nil {
		return fmt.Errorf("append message to session %s: %w", b.id, err)
	}
	sess, err = b.service.GetSession(ctx, b.id)
	if err != nil {
		return err
	}
	b.materializeLocked(sess)
	return nil
}

// UpdateMetadata applies a metadata mutation on the service. The caller
// must be allowed to write to the session.
func (b *Bridge) UpdateMetadata(ctx context.Context, update func(*Metadata)) error {
	sess, err := b.service.GetSession(ctx, b.id)
	if err != nil {
		return err
	}
	if !CanWrite(sess, b.userID, b.roles) {
		return fmt.Errorf("update session %s: %w", b.id, ErrAccessDenied)
	}
	return b.service.UpdateMetadata(ctx, b.id, update)
}

// SyncFromContext persists the full cached context back to the service,
// used after bulk context mutation (filters, truncation on cancel).
func (b *Bridge) SyncFromContext(ctx context.Context) error {
	b.mu.Lock()
	cached := b.cached
	b.mu.Unlock()
	if cached == nil {
		return nil
	}
	sess, err := b.service.GetSession(ctx, b.id)
	if err != nil {
		return err
	}
	if !CanWrite(sess, b.userID, b.roles) {
		return fmt.Errorf("write session %s: %w", b.id, ErrAccessDenied)
	}
	sess.Context = cached
	sess.Metadata.MessageCount = len(cached.MessagesSnapshot())
	return b.service.SaveSession(ctx, sess)
}
