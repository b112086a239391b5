//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/session"
)

func newService(t *testing.T, opts ...ServiceOpt) *SessionService {
	t.Helper()
	svc := NewSessionService(opts...)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCreateAndGetSession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	c := agent.NewContext("u1", "alice")
	sess, err := svc.CreateSession(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, sess.ID, c.SessionID)
	assert.Equal(t, session.StatusActive, sess.Metadata.Status)
	assert.Equal(t, "u1", sess.Metadata.OwnerID)

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetSessionNotFound(t *testing.T) {
	svc := newService(t)
	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	svc := newService(t, WithSessionTTL(10*time.Millisecond), WithCleanupInterval(0))
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = svc.GetSession(ctx, sess.ID)
	// Expiry is distinguishable but still reads as absence.
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAppendMessageUpdatesCount(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.AppendMessage(ctx, sess.ID, agent.Message{
		Role:    model.RoleUser,
		Content: "hello",
	}))
	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metadata.MessageCount)
	msgs := got.Context.MessagesSnapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestListSessionsFilters(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.CreateSession(ctx, agent.NewContext("alice", "alice"))
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, agent.NewContext("bob", "bob"))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateMetadata(ctx, a.ID, func(m *session.Metadata) {
		m.Tags = append(m.Tags, "support")
	}))

	byOwner, err := svc.ListSessions(ctx, session.Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, a.ID, byOwner[0].ID)

	byTag, err := svc.ListSessions(ctx, session.Filter{Tag: "support"})
	require.NoError(t, err)
	assert.Len(t, byTag, 1)

	all, err := svc.ListSessions(ctx, session.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteSession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, sess.ID))
	_, err = svc.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// Deleting twice is not an error.
	assert.NoError(t, svc.DeleteSession(ctx, sess.ID))
}

func TestClearMessages(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c := agent.NewContext("u1", "alice")
	c.AddMessage(model.RoleUser, "hello")
	sess, err := svc.CreateSession(ctx, c)
	require.NoError(t, err)

	require.NoError(t, svc.ClearMessages(ctx, sess.ID))
	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Context.MessagesSnapshot())
	assert.Zero(t, got.Metadata.MessageCount)
}

func TestStatistics(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, agent.NewContext("u2", "bob"))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateMetadata(ctx, a.ID, func(m *session.Metadata) {
		m.Status = session.StatusEnded
	}))

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.EndedSessions)
}

func TestTouchSlidesExpiry(t *testing.T) {
	svc := newService(t, WithSessionTTL(50*time.Millisecond), WithCleanupInterval(0))
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, agent.NewContext("u1", "alice"))
	require.NoError(t, err)

	// Keep touching past the original deadline.
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, svc.Touch(ctx, sess.ID))
	}
	_, err = svc.GetSession(ctx, sess.ID)
	assert.NoError(t, err)
}
