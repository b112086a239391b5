//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/tool"
)

// Info provides basic agent identification.
type Info struct {
	// Name is the agent name.
	Name string
	// Description describes the agent's purpose.
	Description string
}

// Agent is a per-turn working copy of an agent template. Templates are
// immutable; the runtime clones them and mutates only the clone.
//
// Handoffs is intentionally heterogeneous: entries may be canonical
// handoff descriptors, declarative handoff configs from a template file,
// or raw *Agent targets. The handoff engine normalizes the list before
// the model sees it.
type Agent struct {
	// Name is the agent name.
	Name string
	// Description describes the agent's purpose.
	Description string
	// Instructions is the system prompt.
	Instructions string
	// Model is the resolved model implementation.
	Model model.Model
	// ModelRef names the configured model, e.g. "gpt-4o-mini".
	ModelRef string
	// GenerationConfig holds model call parameters.
	GenerationConfig model.GenerationConfig
	// Tools are the tools exposed to the model.
	Tools []tool.Tool
	// Handoffs is the heterogeneous delegation list.
	Handoffs []any
}

// Info returns the agent's identification.
func (a *Agent) Info() Info {
	return Info{
		Name:        a.Name,
		Description: a.Description,
	}
}

// CloneOption overrides fields on a cloned agent.
type CloneOption func(*Agent)

// WithInstructions overrides the clone's instructions.
func WithInstructions(instructions string) CloneOption {
	return func(a *Agent) {
		a.Instructions = instructions
	}
}

// WithHandoffs overrides the clone's handoff list.
func WithHandoffs(handoffs []any) CloneOption {
	return func(a *Agent) {
		a.Handoffs = handoffs
	}
}

// WithModel overrides the clone's model.
func WithModel(m model.Model) CloneOption {
	return func(a *Agent) {
		a.Model = m
	}
}

// Clone produces a working copy with the given overrides. Slices are
// copied so mutating the clone never touches the original.
func (a *Agent) Clone(opts ...CloneOption) *Agent {
	clone := &Agent{
		Name:             a.Name,
		Description:      a.Description,
		Instructions:     a.Instructions,
		Model:            a.Model,
		ModelRef:         a.ModelRef,
		GenerationConfig: a.GenerationConfig,
		Tools:            append([]tool.Tool(nil), a.Tools...),
		Handoffs:         append([]any(nil), a.Handoffs...),
	}
	for _, opt := range opts {
		opt(clone)
	}
	return clone
}

// ToolMap returns the agent's tools keyed by declaration name, the form
// the model request expects.
func (a *Agent) ToolMap() map[string]tool.Tool {
	if len(a.Tools) == 0 {
		return nil
	}
	m := make(map[string]tool.Tool, len(a.Tools))
	for _, t := range a.Tools {
		if decl := t.Declaration(); decl != nil {
			m[decl.Name] = t
		}
	}
	return m
}
