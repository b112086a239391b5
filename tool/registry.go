//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"fmt"
	"sync"
)

// Registry holds named tools together with the permission each requires.
//
// An empty permission means the tool is available to every caller.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	permissions map[string]string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:       make(map[string]Tool),
		permissions: make(map[string]string),
	}
}

// Register adds a tool to the registry. The permission string, when
// non-empty, must be held by the caller for the tool to be dispatched.
func (r *Registry) Register(t Tool, permission string) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return fmt.Errorf("tool declaration missing name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[decl.Name]; ok {
		return fmt.Errorf("tool %q already registered", decl.Name)
	}
	r.tools[decl.Name] = t
	if permission != "" {
		r.permissions[decl.Name] = permission
	}
	return nil
}

// Get returns the named tool, or nil when absent.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// RequiredPermission returns the permission required to dispatch the
// named tool. Empty when the tool is unrestricted or unknown.
func (r *Registry) RequiredPermission(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.permissions[name]
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
