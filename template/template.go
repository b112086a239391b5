//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package template provides immutable agent definitions loaded from
// configuration files and the registry that serves them.
package template

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensembleworks/ensemble/tool"
)

// Input filter names accepted in template files.
const (
	FilterRemoveTools = "remove_tools"
	FilterUserOnly    = "user_only"
	FilterSummarize   = "summarize"
	FilterCustom      = "custom"
)

// ModelConfig names the model backing an agent. Template files accept
// either a bare string or the structured form.
type ModelConfig struct {
	// Name is the model name, e.g. "gpt-4o-mini".
	Name string `json:"name" yaml:"name"`
	// Provider identifies the provider, e.g. "openai".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Settings holds provider-specific generation settings.
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// UnmarshalJSON accepts both `"model": "name"` and the structured form.
func (m *ModelConfig) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		m.Name = name
		return nil
	}
	type alias ModelConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = ModelConfig(a)
	return nil
}

// UnmarshalYAML accepts both a scalar and the structured form.
func (m *ModelConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		m.Name = name
		return nil
	}
	type alias ModelConfig
	var a alias
	if err := unmarshal(&a); err != nil {
		return err
	}
	*m = ModelConfig(a)
	return nil
}

// ToolConfig declares a tool reference in a template file.
type ToolConfig struct {
	// Name is the registered tool name.
	Name string `json:"name" yaml:"name"`
	// Description overrides the tool description shown to the model.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Config carries tool parameter schema and required fields.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// HandoffConfig declares a delegation target in a template file.
//
// The handoff engine resolves AgentName against the registry and fills
// the defaults the file leaves out.
type HandoffConfig struct {
	// AgentName is the target agent template name.
	AgentName string `json:"agent_name" yaml:"agent_name"`
	// ToolName overrides the generated tool name.
	ToolName string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	// ToolDescription overrides the generated tool description.
	ToolDescription string `json:"tool_description,omitempty" yaml:"tool_description,omitempty"`
	// InputFilter selects a built-in history filter by name.
	InputFilter string `json:"input_filter,omitempty" yaml:"input_filter,omitempty"`
	// SummarizePrefix configures the "summarize" filter.
	SummarizePrefix string `json:"summarize_prefix,omitempty" yaml:"summarize_prefix,omitempty"`
	// KeepRecentMessages configures the "summarize" filter.
	KeepRecentMessages int `json:"keep_recent_messages,omitempty" yaml:"keep_recent_messages,omitempty"`
	// OnInvoke, when set programmatically, runs when the handoff fires.
	OnInvoke func(ctx context.Context, reason string) error `json:"-" yaml:"-"`
}

// Definition is an immutable agent template. The runtime never mutates
// a definition; it builds a working copy per turn.
type Definition struct {
	// Name is the template name.
	Name string `json:"name" yaml:"name"`
	// Instructions is the system prompt.
	Instructions string `json:"instructions" yaml:"instructions"`
	// Description describes the agent.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Model names the backing model.
	Model ModelConfig `json:"model" yaml:"model"`
	// Tools lists the tools exposed to the model.
	Tools []ToolConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
	// Handoffs lists the delegation targets.
	Handoffs []HandoffConfig `json:"handoffs,omitempty" yaml:"handoffs,omitempty"`
	// InputGuardrails names pre-execution checks.
	InputGuardrails []string `json:"input_guardrails,omitempty" yaml:"input_guardrails,omitempty"`
	// OutputGuardrails names post-execution checks.
	OutputGuardrails []string `json:"output_guardrails,omitempty" yaml:"output_guardrails,omitempty"`
}

// Validate checks the definition for structural problems.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("template missing name")
	}
	if d.Model.Name == "" {
		return fmt.Errorf("template %s missing model", d.Name)
	}
	for _, h := range d.Handoffs {
		if h.AgentName == "" {
			return fmt.Errorf("template %s: handoff missing agent_name", d.Name)
		}
	}
	return nil
}

// resolveTools maps tool configs to registered tools, skipping unknowns.
func resolveTools(reg *tool.Registry, configs []ToolConfig) []tool.Tool {
	if reg == nil {
		return nil
	}
	var tools []tool.Tool
	for _, tc := range configs {
		if t := reg.Get(tc.Name); t != nil {
			tools = append(tools, t)
		}
	}
	return tools
}
