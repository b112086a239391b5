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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleImplicationIsTransitive(t *testing.T) {
	r, err := NewRBAC(DefaultRoles())
	require.NoError(t, err)

	// Monotonicity: everything user grants, admin grants too.
	userPerms := r.PermissionsForRoles([]string{"user"})
	adminPerms := r.PermissionsForRoles([]string{"admin"})
	for _, p := range userPerms {
		assert.Contains(t, adminPerms, p)
	}
	// Transitivity reaches guest permissions from admin.
	assert.Contains(t, adminPerms, "model:read")
}

func TestCycleRejectedAtLoad(t *testing.T) {
	_, err := NewRBAC(map[string]RoleConfig{
		"a": {Implies: []string{"b"}},
		"b": {Implies: []string{"c"}},
		"c": {Implies: []string{"a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestUndeclaredImpliedRoleRejected(t *testing.T) {
	_, err := NewRBAC(map[string]RoleConfig{
		"a": {Implies: []string{"ghost"}},
	})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	r, err := NewRBAC(DefaultRoles())
	require.NoError(t, err)

	tests := []struct {
		name       string
		result     *AuthResult
		permission string
		granted    bool
	}{
		{
			name:       "explicit permission",
			result:     &AuthResult{Permissions: []string{"tool:admin"}},
			permission: "tool:admin",
			granted:    true,
		},
		{
			name:       "role-granted permission",
			result:     &AuthResult{Roles: []string{"user"}},
			permission: "model:invoke",
			granted:    true,
		},
		{
			name:       "transitively granted permission",
			result:     &AuthResult{Roles: []string{"admin"}},
			permission: "model:read",
			granted:    true,
		},
		{
			name:       "missing permission",
			result:     &AuthResult{Roles: []string{"guest"}},
			permission: "admin:manage",
			granted:    false,
		},
		{
			name:       "nil result",
			result:     nil,
			permission: "model:read",
			granted:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Check(tt.result, tt.permission)
			if tt.granted {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}
