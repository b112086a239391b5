//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/tool"
)

// ErrTemplateNotFound is returned when a template name does not resolve.
var ErrTemplateNotFound = errors.New("template not found")

// ModelResolver maps a model config to a concrete model implementation.
type ModelResolver func(cfg ModelConfig) (model.Model, error)

// Registry holds loaded agent definitions.
//
// The registry is read-mostly: definitions load at startup and hot
// reload under a write lock that blocks new reads for the duration.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	dir         string

	modelResolver ModelResolver
	tools         *tool.Registry

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithModelResolver sets the model resolver used when building agents.
func WithModelResolver(r ModelResolver) RegistryOption {
	return func(reg *Registry) {
		reg.modelResolver = r
	}
}

// WithToolRegistry sets the tool registry used when building agents.
func WithToolRegistry(t *tool.Registry) RegistryOption {
	return func(reg *Registry) {
		reg.tools = t
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	reg := &Registry{
		definitions: make(map[string]*Definition),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Register adds a definition directly, replacing any previous one with
// the same name.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
	return nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return def, nil
}

// List returns the registered template names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	return names
}

// Load reads every .json/.yaml/.yml template file in dir.
func (r *Registry) Load(dir string) error {
	defs, err := loadDir(dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = dir
	for _, def := range defs {
		r.definitions[def.Name] = def
	}
	return nil
}

// Reload re-reads the configured directory under the write lock,
// replacing the full definition set.
func (r *Registry) Reload() error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("registry has no load directory")
	}
	defs, err := loadDir(dir)
	if err != nil {
		return err
	}
	next := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		next[def.Name] = def
	}
	r.mu.Lock()
	r.definitions = next
	r.mu.Unlock()
	return nil
}

func loadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir %s: %w", dir, err)
	}
	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := loadFile(path, ext)
		if err != nil {
			log.Warnf("skip template %s: %v", path, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadFile(path, ext string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if ext == ".json" {
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Watch starts a filesystem watcher that reloads the registry when the
// template directory changes. Stop with Close.
func (r *Registry) Watch() error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("registry has no load directory")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.watcher = watcher
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					log.Errorf("template reload failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("template watcher: %v", err)
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	r.once.Do(func() {
		close(r.done)
	})
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// BuildAgent materializes a working copy of the named template: model
// resolved, tools bound, handoff configs carried for the handoff engine
// to normalize.
func (r *Registry) BuildAgent(_ context.Context, name string) (*agent.Agent, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	var m model.Model
	if r.modelResolver != nil {
		if m, err = r.modelResolver(def.Model); err != nil {
			return nil, fmt.Errorf("resolve model for template %s: %w", name, err)
		}
	}
	handoffs := make([]any, 0, len(def.Handoffs))
	for _, h := range def.Handoffs {
		handoffs = append(handoffs, h)
	}
	return &agent.Agent{
		Name:         def.Name,
		Description:  def.Description,
		Instructions: def.Instructions,
		Model:        m,
		ModelRef:     def.Model.Name,
		Tools:        resolveTools(r.tools, def.Tools),
		Handoffs:     handoffs,
	}, nil
}
