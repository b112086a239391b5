//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package session defines the conversation persistence contract: session
// state, metadata, lifecycle, ownership and the storage service
// interface implemented by the in-memory and Redis backends.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ensembleworks/ensemble/agent"
)

// Lifecycle states of a session.
const (
	StatusActive = "active"
	StatusPaused = "paused"
	StatusEnded  = "ended"
)

// Errors returned by session services.
var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired matches ErrSessionNotFound: callers that treat
	// expiry as absence keep working, callers that care can tell.
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrSessionNotFound)
	// ErrAccessDenied is returned when the caller lacks access to a
	// session under the ownership rules.
	ErrAccessDenied = errors.New("session access denied")
)

// Metadata carries the bookkeeping attached to a session: lifecycle,
// ownership, sharing, counters and free-form properties.
type Metadata struct {
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	// ExpiresAt is the absolute expiry deadline. Zero means no expiry.
	ExpiresAt  time.Time      `json:"expires_at,omitempty"`
	Status     string         `json:"status"`
	Tags       []string       `json:"tags,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`

	MessageCount int `json:"message_count"`
	TokenCount   int `json:"token_count"`
	TurnCount    int `json:"turn_count"`

	OwnerID    string   `json:"owner_id"`
	SharedWith []string `json:"shared_with,omitempty"`
	IsPublic   bool     `json:"is_public,omitempty"`
}

// Expired reports whether the session passed its expiry deadline.
func (m *Metadata) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	clone := *m
	clone.Tags = append([]string(nil), m.Tags...)
	clone.SharedWith = append([]string(nil), m.SharedWith...)
	if m.Properties != nil {
		clone.Properties = make(map[string]any, len(m.Properties))
		for k, v := range m.Properties {
			clone.Properties[k] = v
		}
	}
	return &clone
}

// Session pairs a conversation context with its metadata.
type Session struct {
	ID       string         `json:"id"`
	Context  *agent.Context `json:"context"`
	Metadata *Metadata      `json:"metadata"`
}

// New creates an active session owned by the context's user. A zero ttl
// means the session never expires.
func New(c *agent.Context, ttl time.Duration) *Session {
	now := time.Now()
	meta := &Metadata{
		CreatedAt:      now,
		LastAccessedAt: now,
		Status:         StatusActive,
		OwnerID:        c.UserID,
		MessageCount:   len(c.MessagesSnapshot()),
	}
	if ttl > 0 {
		meta.ExpiresAt = now.Add(ttl)
	}
	sess := &Session{
		ID:       uuid.NewString(),
		Context:  c,
		Metadata: meta,
	}
	c.SessionID = sess.ID
	return sess
}

// Touch refreshes last-access time and slides the expiry window.
func (s *Session) Touch(ttl time.Duration) {
	now := time.Now()
	s.Metadata.LastAccessedAt = now
	if ttl > 0 {
		s.Metadata.ExpiresAt = now.Add(ttl)
	}
	s.Context.Touch()
}

// Filter selects sessions in List. Zero-valued fields match everything.
type Filter struct {
	OwnerID string
	Status  string
	Tag     string
}

// Matches reports whether the session satisfies the filter.
func (f Filter) Matches(s *Session) bool {
	if f.OwnerID != "" && s.Metadata.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && s.Metadata.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range s.Metadata.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Statistics aggregates service-wide session counters.
type Statistics struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`
	PausedSessions int `json:"paused_sessions"`
	EndedSessions  int `json:"ended_sessions"`
	TotalMessages  int `json:"total_messages"`
	TotalTokens    int `json:"total_tokens"`
}

// Service is the session storage contract. Implementations must treat
// expired sessions as absent.
type Service interface {
	// CreateSession persists a new session built around the context.
	CreateSession(ctx context.Context, c *agent.Context) (*Session, error)
	// GetSession fetches a live session. Unknown sessions yield
	// ErrSessionNotFound, expired ones ErrSessionExpired.
	GetSession(ctx context.Context, id string) (*Session, error)
	// SaveSession persists the full session state.
	SaveSession(ctx context.Context, sess *Session) error
	// DeleteSession removes a session and its index entries.
	DeleteSession(ctx context.Context, id string) error
	// ListSessions returns live sessions matching the filter.
	ListSessions(ctx context.Context, f Filter) ([]*Session, error)
	// AppendMessage appends one message to the session's context and
	// bumps the message counter.
	AppendMessage(ctx context.Context, id string, msg agent.Message) error
	// UpdateMetadata applies a mutation to the session metadata.
	UpdateMetadata(ctx context.Context, id string, update func(*Metadata)) error
	// ClearMessages drops the session's message buffer.
	ClearMessages(ctx context.Context, id string) error
	// Touch refreshes last-access time and slides the expiry window.
	Touch(ctx context.Context, id string) error
	// Statistics aggregates counters over live sessions.
	Statistics(ctx context.Context) (*Statistics, error)
	// Close releases backend resources.
	Close() error
}
