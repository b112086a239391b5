//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed session service for deployments
// that need sessions to survive process restarts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/session"
	storage "github.com/ensembleworks/ensemble/storage/redis"
)

// SessionService stores sessions in Redis. Context and metadata live in
// separate keys; secondary index sets support listing by owner, status
// and tag.
//
// Key layout (default prefix "agent:session:"):
//
//	<prefix><id>             context JSON
//	<prefix><id>:metadata    metadata JSON
//	<prefix>ids              set of all session ids
//	<prefix>owner:<user>     set of ids owned by user
//	<prefix>status:<status>  set of ids in a lifecycle state
//	<prefix>tag:<tag>        set of ids carrying a tag
type SessionService struct {
	client redis.UniversalClient
	opts   ServiceOpts
}

// NewService creates a Redis session service.
func NewService(opts ...ServiceOpt) (*SessionService, error) {
	o := ServiceOpts{
		keyPrefix:  DefaultKeyPrefix,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	client := o.client
	if client == nil {
		var builderOpts []storage.ClientBuilderOpt
		if o.url != "" {
			builderOpts = append(builderOpts, storage.WithClientBuilderURL(o.url))
		}
		if o.instanceName != "" {
			builderOpts = append(builderOpts, storage.WithInstanceName(o.instanceName))
		}
		var err error
		client, err = storage.GetClientBuilder()(builderOpts...)
		if err != nil {
			return nil, fmt.Errorf("build redis client: %w", err)
		}
	}
	return &SessionService{client: client, opts: o}, nil
}

func (s *SessionService) sessionKey(id string) string {
	return s.opts.keyPrefix + id
}

func (s *SessionService) metadataKey(id string) string {
	return s.opts.keyPrefix + id + ":metadata"
}

func (s *SessionService) idsKey() string {
	return s.opts.keyPrefix + "ids"
}

func (s *SessionService) ownerKey(userID string) string {
	return s.opts.keyPrefix + "owner:" + userID
}

func (s *SessionService) statusKey(status string) string {
	return s.opts.keyPrefix + "status:" + status
}

func (s *SessionService) tagKey(tag string) string {
	return s.opts.keyPrefix + "tag:" + tag
}

// writeSession persists both halves of a session and its index entries
// in one transaction. prev carries index memberships to retract; nil on
// create.
func (s *SessionService) writeSession(ctx context.Context, sess *session.Session, prev *session.Metadata) error {
	contextData, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	metaData, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), contextData, 0)
	pipe.Set(ctx, s.metadataKey(sess.ID), metaData, 0)
	if !sess.Metadata.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, s.sessionKey(sess.ID), sess.Metadata.ExpiresAt)
		pipe.ExpireAt(ctx, s.metadataKey(sess.ID), sess.Metadata.ExpiresAt)
	}
	if prev != nil {
		if prev.Status != sess.Metadata.Status {
			pipe.SRem(ctx, s.statusKey(prev.Status), sess.ID)
		}
		for _, tag := range prev.Tags {
			pipe.SRem(ctx, s.tagKey(tag), sess.ID)
		}
	}
	pipe.SAdd(ctx, s.idsKey(), sess.ID)
	pipe.SAdd(ctx, s.ownerKey(sess.Metadata.OwnerID), sess.ID)
	pipe.SAdd(ctx, s.statusKey(sess.Metadata.Status), sess.ID)
	for _, tag := range sess.Metadata.Tags {
		pipe.SAdd(ctx, s.tagKey(tag), sess.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return nil
}

// removeSession deletes a session's keys and retracts its index entries.
func (s *SessionService) removeSession(ctx context.Context, id string, meta *session.Metadata) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(id), s.metadataKey(id))
	pipe.SRem(ctx, s.idsKey(), id)
	if meta != nil {
		pipe.SRem(ctx, s.ownerKey(meta.OwnerID), id)
		pipe.SRem(ctx, s.statusKey(meta.Status), id)
		for _, tag := range meta.Tags {
			pipe.SRem(ctx, s.tagKey(tag), id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *SessionService) fetch(ctx context.Context, id string) (*session.Session, error) {
	vals, err := s.client.MGet(ctx, s.sessionKey(id), s.metadataKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", id, err)
	}
	contextRaw, okCtx := vals[0].(string)
	metaRaw, okMeta := vals[1].(string)
	if !okCtx || !okMeta {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	c := &agent.Context{}
	if err := json.Unmarshal([]byte(contextRaw), c); err != nil {
		return nil, fmt.Errorf("unmarshal session context %s: %w", id, err)
	}
	meta := &session.Metadata{}
	if err := json.Unmarshal([]byte(metaRaw), meta); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata %s: %w", id, err)
	}
	sess := &session.Session{ID: id, Context: c, Metadata: meta}
	if meta.Expired(time.Now()) {
		_ = s.removeSession(ctx, id, meta)
		return nil, fmt.Errorf("%w: %s", session.ErrSessionExpired, id)
	}
	return sess, nil
}

// CreateSession implements the session.Service interface.
func (s *SessionService) CreateSession(ctx context.Context, c *agent.Context) (*session.Session, error) {
	if c == nil {
		return nil, fmt.Errorf("context is nil")
	}
	sess := session.New(c, s.opts.sessionTTL)
	if err := s.writeSession(ctx, sess, nil); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession implements the session.Service interface.
func (s *SessionService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.fetch(ctx, id)
}

// SaveSession implements the session.Service interface.
func (s *SessionService) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session is nil or missing id")
	}
	var prev *session.Metadata
	if existing, err := s.fetch(ctx, sess.ID); err == nil {
		prev = existing.Metadata
	}
	sess.Touch(s.opts.sessionTTL)
	return s.writeSession(ctx, sess, prev)
}

// DeleteSession implements the session.Service interface. Deleting an
// unknown session is not an error.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.fetch(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return s.removeSession(ctx, id, sess.Metadata)
}

// candidateIDs picks the narrowest index set for a filter.
func (s *SessionService) candidateIDs(ctx context.Context, f session.Filter) ([]string, error) {
	var keys []string
	if f.OwnerID != "" {
		keys = append(keys, s.ownerKey(f.OwnerID))
	}
	if f.Status != "" {
		keys = append(keys, s.statusKey(f.Status))
	}
	if f.Tag != "" {
		keys = append(keys, s.tagKey(f.Tag))
	}
	if len(keys) == 0 {
		return s.client.SMembers(ctx, s.idsKey()).Result()
	}
	if len(keys) == 1 {
		return s.client.SMembers(ctx, keys[0]).Result()
	}
	return s.client.SInter(ctx, keys...).Result()
}

// ListSessions implements the session.Service interface.
func (s *SessionService) ListSessions(ctx context.Context, f session.Filter) ([]*session.Session, error) {
	ids, err := s.candidateIDs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []*session.Session
	for _, id := range ids {
		sess, err := s.fetch(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		if f.Matches(sess) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// AppendMessage implements the session.Service interface.
func (s *SessionService) AppendMessage(ctx context.Context, id string, msg agent.Message) error {
	sess, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	sess.Context.AppendRaw(msg)
	sess.Metadata.MessageCount = len(sess.Context.MessagesSnapshot())
	sess.Touch(s.opts.sessionTTL)
	return s.writeSession(ctx, sess, sess.Metadata)
}

// UpdateMetadata implements the session.Service interface.
func (s *SessionService) UpdateMetadata(ctx context.Context, id string, update func(*session.Metadata)) error {
	if update == nil {
		return nil
	}
	sess, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	prev := sess.Metadata.Clone()
	update(sess.Metadata)
	return s.writeSession(ctx, sess, prev)
}

// ClearMessages implements the session.Service interface.
func (s *SessionService) ClearMessages(ctx context.Context, id string) error {
	sess, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	sess.Context.ClearMessages()
	sess.Metadata.MessageCount = 0
	return s.writeSession(ctx, sess, sess.Metadata)
}

// Touch implements the session.Service interface.
func (s *SessionService) Touch(ctx context.Context, id string) error {
	sess, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	sess.Touch(s.opts.sessionTTL)
	return s.writeSession(ctx, sess, sess.Metadata)
}

// Statistics implements the session.Service interface.
func (s *SessionService) Statistics(ctx context.Context) (*session.Statistics, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("session statistics: %w", err)
	}
	stats := &session.Statistics{}
	for _, id := range ids {
		sess, err := s.fetch(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				continue
			}
			return nil, err
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
	return s.client.Close()
}
