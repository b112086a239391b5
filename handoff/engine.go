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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/template"
)

// DefaultMaxDepth bounds chained delegation within a single turn.
const DefaultMaxDepth = 3

// Arguments is the decoded payload of a handoff tool call.
type Arguments struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// ParseArguments decodes handoff tool-call arguments, tolerating empty
// or malformed payloads.
func ParseArguments(raw json.RawMessage) Arguments {
	var args Arguments
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			log.Debugf("handoff arguments unparseable, proceeding without reason: %v", err)
		}
	}
	if args.Reason == "" {
		args.Reason = "further assistance"
	}
	return args
}

// Engine normalizes heterogeneous handoff lists and matches model tool
// calls to delegation targets.
type Engine struct {
	templates *template.Registry
	maxDepth  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxDepth overrides the delegation depth bound.
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// NewEngine creates a handoff engine bound to a template registry. The
// registry may be nil; raw-agent and canonical handoffs still work.
func NewEngine(reg *template.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		templates: reg,
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDepth returns the delegation depth bound.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// Normalize rewrites an agent's heterogeneous handoff list into
// canonical descriptors. It is idempotent: a fully canonical list passes
// through untouched, and the input agent is cloned only when a rewrite
// is needed.
func (e *Engine) Normalize(ag *agent.Agent) *agent.Agent {
	if ag == nil || len(ag.Handoffs) == 0 {
		return ag
	}
	rewritten := false
	normalized := make([]any, 0, len(ag.Handoffs))
	for _, entry := range ag.Handoffs {
		switch h := entry.(type) {
		case *Handoff:
			if !h.filterSafe {
				h.fillDefaults()
				rewritten = true
			}
			normalized = append(normalized, h)
		case Handoff:
			ptr := &h
			ptr.fillDefaults()
			normalized = append(normalized, ptr)
			rewritten = true
		case template.HandoffConfig:
			if c := e.fromConfig(ag.Name, h); c != nil {
				normalized = append(normalized, c)
			}
			rewritten = true
		case *template.HandoffConfig:
			if h != nil {
				if c := e.fromConfig(ag.Name, *h); c != nil {
					normalized = append(normalized, c)
				}
			}
			rewritten = true
		case *agent.Agent:
			normalized = append(normalized, New(h.Name))
			rewritten = true
		default:
			log.Warnf("agent %s: skipping unrecognized handoff entry %T", ag.Name, entry)
			rewritten = true
		}
	}
	if !rewritten {
		return ag
	}
	return ag.Clone(agent.WithHandoffs(normalized))
}

// fromConfig resolves a declarative config, verifying the target exists
// when a registry is available. Unresolvable targets are skipped so one
// bad entry never sinks the agent.
func (e *Engine) fromConfig(owner string, cfg template.HandoffConfig) *Handoff {
	if e.templates != nil {
		if _, err := e.templates.Get(cfg.AgentName); err != nil {
			log.Warnf("agent %s: skipping handoff to unknown template %s", owner, cfg.AgentName)
			return nil
		}
	}
	return FromConfig(cfg)
}

// Handoffs returns the canonical descriptors on a normalized agent.
func Handoffs(ag *agent.Agent) []*Handoff {
	if ag == nil {
		return nil
	}
	out := make([]*Handoff, 0, len(ag.Handoffs))
	for _, entry := range ag.Handoffs {
		if h, ok := entry.(*Handoff); ok {
			out = append(out, h)
		}
	}
	return out
}

// Match finds the handoff whose tool name matches a model tool call.
// When no descriptor matches but the name carries the handoff prefix,
// the target is inferred from the name so a model hallucinating a
// plausible tool still lands on the right agent.
func (e *Engine) Match(ag *agent.Agent, toolName string) (*Handoff, bool) {
	for _, h := range Handoffs(ag) {
		if h.ToolName == toolName {
			return h, true
		}
	}
	target, ok := e.InferTarget(toolName)
	if !ok {
		return nil, false
	}
	log.Infof("inferred handoff target %s from tool call %s", target, toolName)
	return New(target), true
}

// InferTarget extracts a delegation target from a prefixed tool name.
// The bare suffix is tried first; when the registry doesn't know it,
// the "_expert"/"_agent" naming conventions are tried as fallbacks.
func (e *Engine) InferTarget(toolName string) (string, bool) {
	if !strings.HasPrefix(toolName, ToolNamePrefix) {
		return "", false
	}
	name := strings.TrimPrefix(toolName, ToolNamePrefix)
	if name == "" {
		return "", false
	}
	if e.templates == nil {
		return name, true
	}
	candidates := []string{name}
	if strings.HasSuffix(name, "_expert") {
		candidates = append(candidates, strings.TrimSuffix(name, "_expert")+"_agent")
	} else {
		candidates = append(candidates, name+"_agent")
	}
	for _, c := range candidates {
		if _, err := e.templates.Get(c); err == nil {
			return c, true
		}
	}
	return name, true
}

// ExpertSystemMessage renders the system prompt installed on the
// delegate after a handoff fires.
func ExpertSystemMessage(agentName, reason string) string {
	return fmt.Sprintf("You are %s. The user has been referred to you for %s. Continue the conversation.", agentName, reason)
}

// BuildInputData splits a context snapshot into handoff input form:
// prior history, items the delegating agent produced this turn, and
// nothing new yet.
func BuildInputData(history, turnItems []agent.Message) InputData {
	d := InputData{
		InputHistory:    make([]agent.Message, len(history)),
		PreHandoffItems: make([]agent.Message, len(turnItems)),
	}
	copy(d.InputHistory, history)
	copy(d.PreHandoffItems, turnItems)
	return d
}

// DelegateMessages builds the model messages for a delegate turn from
// filtered input data: the expert system prompt first, then whatever the
// filter let through. Synthetic system items a filter produced (history
// summaries) survive.
func DelegateMessages(h *Handoff, d InputData, reason string) []model.Message {
	filtered := h.Filter(d)
	items := filtered.AllItems()
	out := make([]model.Message, 0, len(items)+1)
	out = append(out, model.NewSystemMessage(ExpertSystemMessage(h.TargetAgent, reason)))
	for _, m := range items {
		out = append(out, m.ToModel())
	}
	return out
}
