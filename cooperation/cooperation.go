//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package cooperation builds triage patterns on top of the handoff
// engine: one front-line agent delegating to registered experts.
package cooperation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/handoff"
	"github.com/ensembleworks/ensemble/runner"
	"github.com/ensembleworks/ensemble/template"
	"github.com/ensembleworks/ensemble/tool"
)

// Service registers experts and assembles triage agents around them.
// All turns go through the runner, so security, persistence and handoff
// depth limits apply uniformly.
type Service struct {
	mu        sync.RWMutex
	runner    *runner.Runner
	templates *template.Registry
	experts   map[string]*handoff.Handoff
}

// NewService creates a cooperation service.
func NewService(run *runner.Runner, templates *template.Registry) *Service {
	return &Service{
		runner:    run,
		templates: templates,
		experts:   make(map[string]*handoff.Handoff),
	}
}

// ExpertOptions configures expert registration.
type ExpertOptions struct {
	description string
	toolName    string
	inputSchema *tool.Schema
	inputFilter any
}

// ExpertOption configures RegisterExpert.
type ExpertOption func(*ExpertOptions)

// WithDescription sets the expert's tool description.
func WithDescription(desc string) ExpertOption {
	return func(o *ExpertOptions) { o.description = desc }
}

// WithToolName overrides the generated handoff tool name.
func WithToolName(name string) ExpertOption {
	return func(o *ExpertOptions) { o.toolName = name }
}

// WithInputSchema overrides the handoff tool's argument schema.
func WithInputSchema(schema *tool.Schema) ExpertOption {
	return func(o *ExpertOptions) { o.inputSchema = schema }
}

// WithInputFilter sets the history filter. Accepts a handoff.Filter, a
// bare filter factory (initialized with defaults), or a built-in filter
// name.
func WithInputFilter(f any) ExpertOption {
	return func(o *ExpertOptions) { o.inputFilter = f }
}

// RegisterExpert stores a canonical handoff descriptor for the named
// expert. target is the expert's template name, or an *agent.Agent
// that gets registered as a template first. The default input filter
// strips tool traffic from the delegated history.
func (s *Service) RegisterExpert(name string, target any, opts ...ExpertOption) error {
	o := &ExpertOptions{}
	for _, opt := range opts {
		opt(o)
	}
	templateName, err := s.resolveTarget(target)
	if err != nil {
		return err
	}
	filter := handoff.Wrap(handoff.RemoveAllTools)
	if o.inputFilter != nil {
		filter = handoff.ResolveFilter(o.inputFilter)
	}
	var hopts []handoff.Option
	hopts = append(hopts, handoff.WithInputFilter(filter))
	if o.toolName != "" {
		hopts = append(hopts, handoff.WithToolName(o.toolName))
	}
	if o.description != "" {
		hopts = append(hopts, handoff.WithToolDescription(o.description))
	}
	if o.inputSchema != nil {
		hopts = append(hopts, handoff.WithInputSchema(o.inputSchema))
	}
	h := handoff.New(templateName, hopts...)

	s.mu.Lock()
	s.experts[name] = h
	s.mu.Unlock()
	return nil
}

// resolveTarget maps an expert target onto a registered template name.
func (s *Service) resolveTarget(target any) (string, error) {
	switch t := target.(type) {
	case string:
		if _, err := s.templates.Get(t); err != nil {
			return "", err
		}
		return t, nil
	case *agent.Agent:
		def := &template.Definition{
			Name:         t.Name,
			Instructions: t.Instructions,
			Description:  t.Description,
			Model:        template.ModelConfig{Name: t.ModelRef},
		}
		if err := s.templates.Register(def); err != nil {
			return "", fmt.Errorf("register expert agent %s: %w", t.Name, err)
		}
		return t.Name, nil
	default:
		return "", fmt.Errorf("unsupported expert target %T", target)
	}
}

// Expert returns a registered expert's handoff descriptor.
func (s *Service) Expert(name string) (*handoff.Handoff, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.experts[name]
	return h, ok
}

// ExpertNames returns the registered expert names, sorted.
func (s *Service) ExpertNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.experts))
	for name := range s.experts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateTriageAgent clones the base template with handoffs to the named
// experts. With no instructions it injects a default prompt listing the
// expert tools.
func (s *Service) CreateTriageAgent(ctx context.Context, base string, expertNames []string, instructions string) (*agent.Agent, error) {
	ag, err := s.templates.BuildAgent(ctx, base)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	handoffs := make([]any, 0, len(expertNames))
	var missing []string
	for _, name := range expertNames {
		h, ok := s.experts[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		handoffs = append(handoffs, h)
	}
	s.mu.RUnlock()
	if len(missing) > 0 {
		return nil, fmt.Errorf("experts not registered: %s", strings.Join(missing, ", "))
	}
	if instructions == "" {
		instructions = triageInstructions(handoffs)
	}
	return ag.Clone(
		agent.WithInstructions(instructions),
		agent.WithHandoffs(handoffs),
	), nil
}

// triageInstructions renders the default front-line prompt with the
// available expert tools.
func triageInstructions(handoffs []any) string {
	var b strings.Builder
	b.WriteString("You are a triage agent. Assess the user's request and, when a specialist fits better, delegate with the matching handoff tool:\n")
	for _, entry := range handoffs {
		h, ok := entry.(*handoff.Handoff)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", h.ToolName, h.ToolDescription)
	}
	b.WriteString("Answer directly when no expert is needed.")
	return b.String()
}

// DirectHandoffToExpert bypasses LLM triage: it synthesizes the handoff
// system message for the named expert and runs that expert against the
// user message through the full runtime pipeline.
func (s *Service) DirectHandoffToExpert(ctx context.Context, expertName, userMessage, reason string, opts ...runner.TurnOption) (*runner.TurnResult, error) {
	h, ok := s.Expert(expertName)
	if !ok {
		return nil, fmt.Errorf("expert %s not registered", expertName)
	}
	system := handoff.ExpertSystemMessage(h.TargetAgent, reason)
	opts = append(opts, runner.WithSystemOverride(system))
	return s.runner.RunTurn(ctx, h.TargetAgent, userMessage, opts...), nil
}
