//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory session service, the default
// backend for development and tests.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/session"
)

// Default housekeeping parameters.
const (
	DefaultSessionTTL      = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// ServiceOpts holds the service configuration.
type ServiceOpts struct {
	sessionTTL      time.Duration
	cleanupInterval time.Duration
}

// ServiceOpt configures the service.
type ServiceOpt func(*ServiceOpts)

// WithSessionTTL sets the sliding session expiry. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) ServiceOpt {
	return func(o *ServiceOpts) {
		o.sessionTTL = ttl
	}
}

// WithCleanupInterval sets the sweep interval for expired sessions.
// Zero disables the background sweeper; expiry is still enforced
// opportunistically on access.
func WithCleanupInterval(d time.Duration) ServiceOpt {
	return func(o *ServiceOpts) {
		o.cleanupInterval = d
	}
}

// SessionService stores sessions in process memory.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	opts     ServiceOpts

	done chan struct{}
	once sync.Once
}

// NewSessionService creates an in-memory session service.
func NewSessionService(opts ...ServiceOpt) *SessionService {
	o := ServiceOpts{
		sessionTTL:      DefaultSessionTTL,
		cleanupInterval: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &SessionService{
		sessions: make(map[string]*session.Session),
		opts:     o,
		done:     make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *SessionService) cleanupLoop() {
	ticker := time.NewTicker(s.opts.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.done:
			return
		}
	}
}

func (s *SessionService) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Metadata.Expired(now) {
			delete(s.sessions, id)
		}
	}
}

// getLive returns a live session, removing it when expired. Caller holds
// the write lock.
func (s *SessionService) getLiveLocked(id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if sess.Metadata.Expired(time.Now()) {
		delete(s.sessions, id)
		return nil, fmt.Errorf("%w: %s", session.ErrSessionExpired, id)
	}
	return sess, nil
}

// CreateSession implements the session.Service interface.
func (s *SessionService) CreateSession(_ context.Context, c *agent.Context) (*session.Session, error) {
	if c == nil {
		return nil, fmt.Errorf("context is nil")
	}
	sess := session.New(c, s.opts.sessionTTL)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

// GetSession implements the session.Service interface.
func (s *SessionService) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLiveLocked(id)
}

// SaveSession implements the session.Service interface.
func (s *SessionService) SaveSession(_ context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session is nil or missing id")
	}
	sess.Touch(s.opts.sessionTTL)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

// DeleteSession implements the session.Service interface. Deleting an
// unknown session is not an error.
func (s *SessionService) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// ListSessions implements the session.Service interface.
func (s *SessionService) ListSessions(_ context.Context, f session.Filter) ([]*session.Session, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.Metadata.Expired(now) {
			continue
		}
		if f.Matches(sess) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// AppendMessage implements the session.Service interface.
func (s *SessionService) AppendMessage(_ context.Context, id string, msg agent.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLiveLocked(id)
	if err != nil {
		return err
	}
	sess.Context.AppendRaw(msg)
	sess.Metadata.MessageCount = len(sess.Context.MessagesSnapshot())
	sess.Touch(s.opts.sessionTTL)
	return nil
}

// UpdateMetadata implements the session.Service interface.
func (s *SessionService) UpdateMetadata(_ context.Context, id string, update func(*session.Metadata)) error {
	if update == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLiveLocked(id)
	if err != nil {
		return err
	}
	update(sess.Metadata)
	return nil
}

// ClearMessages implements the session.Service interface.
func (s *SessionService) ClearMessages(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLiveLocked(id)
	if err != nil {
		return err
	}
	sess.Context.ClearMessages()
	sess.Metadata.MessageCount = 0
	return nil
}

// Touch implements the session.Service interface.
func (s *SessionService) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLiveLocked(id)
	if err != nil {
		return err
	}
	sess.Touch(s.opts.sessionTTL)
	return nil
}

// Statistics implements the session.Service interface.
func (s *SessionService) Statistics(_ context.Context) (*session.Statistics, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &session.Statistics{}
	for _, sess := range s.sessions {
		if sess.Metadata.Expired(now) {
			continue
		}
		stats.TotalSessions++
		switch sess.Metadata.Status {
		case session.StatusActive:
			stats.ActiveSessions++
		case session.StatusPaused:
			stats.PausedSessions++
		case session.StatusEnded:
			stats.EndedSessions++
		}
		stats.TotalMessages += sess.Metadata.MessageCount
		stats.TotalTokens += sess.Metadata.TokenCount
	}
	return stats, nil
}

// Close implements the session.Service interface.
func (s *SessionService) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}
