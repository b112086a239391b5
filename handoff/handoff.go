//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package handoff

import (
	"context"
	"fmt"

	"github.com/ensembleworks/ensemble/template"
	"github.com/ensembleworks/ensemble/tool"
)

// ToolNamePrefix prefixes every generated handoff tool name. The engine
// also uses it to infer targets from unregistered tool names.
const ToolNamePrefix = "handoff_to_"

// Handoff is the canonical delegation descriptor the model sees as a
// tool. Non-canonical handoff shapes on an agent are normalized to this
// form before a turn runs.
type Handoff struct {
	// TargetAgent is the template name of the delegate.
	TargetAgent string
	// ToolName is the tool name exposed to the model.
	ToolName string
	// ToolDescription is the tool description exposed to the model.
	ToolDescription string
	// InputSchema describes the tool arguments.
	InputSchema *tool.Schema
	// OnInvoke runs when the handoff fires, before the delegate turn.
	OnInvoke func(ctx context.Context, reason string) error
	// InputFilter transforms the history handed to the delegate.
	InputFilter Filter

	// filterSafe records that InputFilter already passed through Wrap,
	// so re-normalizing the list is a no-op.
	filterSafe bool
}

// DefaultToolName returns the generated tool name for a target.
func DefaultToolName(target string) string {
	return ToolNamePrefix + target
}

// DefaultToolDescription returns the generated tool description.
func DefaultToolDescription(target string) string {
	return fmt.Sprintf("Delegate the conversation to the %s agent.", target)
}

// DefaultInputSchema returns the argument schema every handoff tool
// shares: a required reason plus optional details.
func DefaultInputSchema() *tool.Schema {
	return &tool.Schema{
		Type: "object",
		Properties: map[string]*tool.Schema{
			"reason": {
				Type:        "string",
				Description: "Why the conversation is being handed off.",
			},
			"details": {
				Type:        "string",
				Description: "Additional context for the receiving agent.",
			},
		},
		Required: []string{"reason"},
	}
}

// New builds a canonical handoff to the named target with defaults
// filled in and the filter safety-wrapped.
func New(target string, opts ...Option) *Handoff {
	h := &Handoff{TargetAgent: target}
	for _, opt := range opts {
		opt(h)
	}
	h.fillDefaults()
	return h
}

// Option configures a Handoff.
type Option func(*Handoff)

// WithToolName overrides the generated tool name.
func WithToolName(name string) Option {
	return func(h *Handoff) { h.ToolName = name }
}

// WithToolDescription overrides the generated tool description.
func WithToolDescription(desc string) Option {
	return func(h *Handoff) { h.ToolDescription = desc }
}

// WithInputSchema overrides the default argument schema.
func WithInputSchema(s *tool.Schema) Option {
	return func(h *Handoff) { h.InputSchema = s }
}

// WithOnInvoke sets the invocation hook.
func WithOnInvoke(fn func(ctx context.Context, reason string) error) Option {
	return func(h *Handoff) { h.OnInvoke = fn }
}

// WithInputFilter sets the history filter. The filter is safety-wrapped
// when the handoff is built or normalized.
func WithInputFilter(f Filter) Option {
	return func(h *Handoff) { h.InputFilter = f }
}

// fillDefaults populates missing fields and wraps the filter.
func (h *Handoff) fillDefaults() {
	if h.ToolName == "" {
		h.ToolName = DefaultToolName(h.TargetAgent)
	}
	if h.ToolDescription == "" {
		h.ToolDescription = DefaultToolDescription(h.TargetAgent)
	}
	if h.InputSchema == nil {
		h.InputSchema = DefaultInputSchema()
	}
	if !h.filterSafe {
		h.InputFilter = Wrap(h.InputFilter)
		h.filterSafe = true
	}
}

// Declaration exposes the handoff as a model-callable tool.
func (h *Handoff) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        h.ToolName,
		Description: h.ToolDescription,
		InputSchema: h.InputSchema,
	}
}

// FromConfig resolves a declarative handoff config into canonical form.
func FromConfig(cfg template.HandoffConfig) *Handoff {
	h := &Handoff{
		TargetAgent:     cfg.AgentName,
		ToolName:        cfg.ToolName,
		ToolDescription: cfg.ToolDescription,
		OnInvoke:        cfg.OnInvoke,
		InputFilter:     ResolveNamedFilter(cfg.InputFilter, cfg.SummarizePrefix, cfg.KeepRecentMessages),
		filterSafe:      true,
	}
	h.fillDefaults()
	return h
}

// Filter applies the handoff's input filter.
func (h *Handoff) Filter(d InputData) InputData {
	if h.InputFilter == nil {
		return d
	}
	return h.InputFilter(d)
}
