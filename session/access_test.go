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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ensembleworks/ensemble/agent"
)

func policySession(owner string, shared []string, public bool) *Session {
	sess := New(agent.NewContext(owner, owner), 0)
	sess.Metadata.SharedWith = shared
	sess.Metadata.IsPublic = public
	return sess
}

func TestAccessPolicy(t *testing.T) {
	tests := []struct {
		name      string
		sess      *Session
		userID    string
		roles     []string
		canRead   bool
		canWrite  bool
		canDelete bool
	}{
		{
			name:   "owner has full access",
			sess:   policySession("alice", nil, false),
			userID: "alice",
			canRead: true, canWrite: true, canDelete: true,
		},
		{
			name:   "admin overrides ownership",
			sess:   policySession("alice", nil, false),
			userID: "root", roles: []string{"admin"},
			canRead: true, canWrite: true, canDelete: true,
		},
		{
			name:   "shared user reads and writes but cannot delete",
			sess:   policySession("alice", []string{"bob"}, false),
			userID: "bob",
			canRead: true, canWrite: true, canDelete: false,
		},
		{
			name:   "public grants read only",
			sess:   policySession("alice", nil, true),
			userID: "stranger",
			canRead: true, canWrite: false, canDelete: false,
		},
		{
			name:   "unrelated user gets nothing",
			sess:   policySession("alice", []string{"bob"}, false),
			userID: "mallory",
			canRead: false, canWrite: false, canDelete: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canRead, CanRead(tt.sess, tt.userID, tt.roles))
			assert.Equal(t, tt.canWrite, CanWrite(tt.sess, tt.userID, tt.roles))
			assert.Equal(t, tt.canDelete, CanDelete(tt.sess, tt.userID, tt.roles))
		})
	}
}

func TestAccessPolicyNilSafety(t *testing.T) {
	assert.False(t, CanRead(nil, "anyone", nil))
	assert.False(t, CanWrite(&Session{}, "anyone", nil))
	assert.False(t, CanDelete(nil, "anyone", []string{"admin"}))
}
