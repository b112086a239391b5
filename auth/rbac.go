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
	"sort"
)

// ErrPermissionDenied is returned when RBAC rejects an operation.
var ErrPermissionDenied = errors.New("permission denied")

// RoleConfig declares one role: its direct permissions and the roles it
// implies. Implication is transitive; cycles are rejected at load time.
type RoleConfig struct {
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Implies     []string `json:"implies,omitempty" yaml:"implies,omitempty"`
}

// RBAC resolves roles to effective permission sets.
type RBAC struct {
	// resolved maps role → full transitive permission set.
	resolved map[string]map[string]struct{}
}

// DefaultRoles is the stock admin ⊃ user ⊃ guest hierarchy.
func DefaultRoles() map[string]RoleConfig {
	return map[string]RoleConfig{
		"guest": {
			Permissions: []string{"model:read"},
		},
		"user": {
			Permissions: []string{"model:invoke", "session:read", "session:write"},
			Implies:     []string{"guest"},
		},
		"admin": {
			Permissions: []string{"admin:manage", "session:delete", "tool:admin"},
			Implies:     []string{"user"},
		},
	}
}

// NewRBAC resolves a role configuration, failing on implication cycles
// or references to undeclared roles.
func NewRBAC(roles map[string]RoleConfig) (*RBAC, error) {
	for name, cfg := range roles {
		for _, implied := range cfg.Implies {
			if _, ok := roles[implied]; !ok {
				return nil, fmt.Errorf("role %s implies undeclared role %s", name, implied)
			}
		}
	}
	resolved := make(map[string]map[string]struct{}, len(roles))
	for name := range roles {
		perms := make(map[string]struct{})
		if err := collect(roles, name, perms, map[string]bool{}, map[string]bool{}); err != nil {
			return nil, err
		}
		resolved[name] = perms
	}
	return &RBAC{resolved: resolved}, nil
}

// collect walks the implication graph depth-first, detecting cycles via
// the on-stack set.
func collect(roles map[string]RoleConfig, name string, perms map[string]struct{}, done, onStack map[string]bool) error {
	if onStack[name] {
		return fmt.Errorf("role implication cycle through %s", name)
	}
	if done[name] {
		return nil
	}
	onStack[name] = true
	cfg := roles[name]
	for _, p := range cfg.Permissions {
		perms[p] = struct{}{}
	}
	for _, implied := range cfg.Implies {
		if err := collect(roles, implied, perms, done, onStack); err != nil {
			return err
		}
	}
	onStack[name] = false
	done[name] = true
	return nil
}

// PermissionsForRoles returns the sorted union of permissions granted by
// the roles. Unknown roles contribute nothing.
func (r *RBAC) PermissionsForRoles(roles []string) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for p := range r.resolved[role] {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Check grants iff the permission appears in the result's explicit
// permissions or is granted by one of its roles.
func (r *RBAC) Check(result *AuthResult, permission string) error {
	if result == nil {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, permission)
	}
	for _, p := range result.Permissions {
		if p == permission {
			return nil
		}
	}
	for _, role := range result.Roles {
		if _, ok := r.resolved[role][permission]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPermissionDenied, permission)
}
