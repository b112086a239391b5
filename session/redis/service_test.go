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
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/session"
)

func newService(t *testing.T, opts ...ServiceOpt) (*SessionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts = append([]ServiceOpt{WithRedisClientURL("redis://" + mr.Addr())}, opts...)
	svc, err := NewService(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, mr
}

func TestCreateAndGetSession(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	c := agent.NewContext("u1", "alice")
	c.AddMessage(model.RoleUser, "hello")
	sess, err := svc.CreateSession(ctx, c)
	require.NoError(t, err)

	assert.True(t, mr.Exists(DefaultKeyPrefix+sess.ID))
	assert.True(t, mr.Exists(DefaultKeyPrefix+sess.ID+":metadata"))

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Context.UserID)
	msgs := got.Context.MessagesSnapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAppendMessageRoundTrips(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.AppendMessage(ctx, sess.ID, agent.Message{
		Role:    model.RoleAssistant,
		Content: "reply",
	}))
	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metadata.MessageCount)
	msgs := got.Context.MessagesSnapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
}

func TestDeleteSessionRemovesIndexes(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, sess.ID))
	assert.False(t, mr.Exists(DefaultKeyPrefix+sess.ID))
	assert.False(t, mr.Exists(DefaultKeyPrefix+sess.ID+":metadata"))

	byOwner, err := svc.ListSessions(ctx, session.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, byOwner)
}

func TestListSessionsByIndexes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.CreateSession(ctx, agent.NewContext("alice", "alice"))
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, agent.NewContext("bob", "bob"))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateMetadata(ctx, a.ID, func(m *session.Metadata) {
		m.Tags = append(m.Tags, "support")
		m.Status = session.StatusPaused
	}))

	byOwner, err := svc.ListSessions(ctx, session.Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, a.ID, byOwner[0].ID)

	byBoth, err := svc.ListSessions(ctx, session.Filter{Tag: "support", Status: session.StatusPaused})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, a.ID, byBoth[0].ID)

	none, err := svc.ListSessions(ctx, session.Filter{Status: session.StatusEnded})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatusIndexFollowsUpdates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateMetadata(ctx, sess.ID, func(m *session.Metadata) {
		m.Status = session.StatusEnded
	}))
	active, err := svc.ListSessions(ctx, session.Filter{Status: session.StatusActive})
	require.NoError(t, err)
	assert.Empty(t, active)

	ended, err := svc.ListSessions(ctx, session.Filter{Status: session.StatusEnded})
	require.NoError(t, err)
	assert.Len(t, ended, 1)
}

func TestSessionExpiry(t *testing.T) {
	svc, mr := newService(t, WithSessionTTL(time.Second))
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = svc.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStatistics(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx, agent.NewContext("u2", "bob"))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateMetadata(ctx, b.ID, func(m *session.Metadata) {
		m.Status = session.StatusPaused
	}))

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.PausedSessions)
}
