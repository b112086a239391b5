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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/template"
)

func testRegistry(t *testing.T, names ...string) *template.Registry {
	t.Helper()
	reg := template.NewRegistry()
	for _, name := range names {
		require.NoError(t, reg.Register(&template.Definition{
			Name:         name,
			Instructions: "You are " + name + ".",
			Model:        template.ModelConfig{Name: "gpt-4o-mini"},
		}))
	}
	return reg
}

func TestNormalizeHeterogeneousList(t *testing.T) {
	reg := testRegistry(t, "billing_agent", "travel_agent")
	engine := NewEngine(reg)
	ag := &agent.Agent{
		Name: "triage",
		Handoffs: []any{
			New("billing_agent"),
			template.HandoffConfig{AgentName: "travel_agent"},
			&agent.Agent{Name: "support"},
			"not a handoff",
		},
	}
	out := engine.Normalize(ag)
	require.NotSame(t, ag, out)
	hs := Handoffs(out)
	require.Len(t, hs, 3)
	assert.Equal(t, "billing_agent", hs[0].TargetAgent)
	assert.Equal(t, "handoff_to_travel_agent", hs[1].ToolName)
	assert.Equal(t, "support", hs[2].TargetAgent)
	for _, h := range hs {
		assert.NotNil(t, h.InputFilter)
		assert.NotNil(t, h.InputSchema)
		assert.NotEmpty(t, h.ToolDescription)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	reg := testRegistry(t, "billing_agent")
	engine := NewEngine(reg)
	ag := &agent.Agent{
		Name:     "triage",
		Handoffs: []any{template.HandoffConfig{AgentName: "billing_agent"}},
	}
	once := engine.Normalize(ag)
	twice := engine.Normalize(once)
	// A fully canonical list passes through without cloning.
	assert.Same(t, once, twice)
}

func TestNormalizeSkipsUnknownTemplate(t *testing.T) {
	reg := testRegistry(t, "billing_agent")
	engine := NewEngine(reg)
	ag := &agent.Agent{
		Name: "triage",
		Handoffs: []any{
			template.HandoffConfig{AgentName: "billing_agent"},
			template.HandoffConfig{AgentName: "ghost"},
		},
	}
	out := engine.Normalize(ag)
	assert.Len(t, Handoffs(out), 1)
}

func TestConfigDefaults(t *testing.T) {
	h := FromConfig(template.HandoffConfig{AgentName: "billing_agent"})
	assert.Equal(t, "handoff_to_billing_agent", h.ToolName)
	assert.Contains(t, h.ToolDescription, "billing_agent")
	require.NotNil(t, h.InputSchema)
	assert.Contains(t, h.InputSchema.Properties, "reason")
	assert.Equal(t, []string{"reason"}, h.InputSchema.Required)
}

func TestMatchByToolName(t *testing.T) {
	reg := testRegistry(t, "billing_agent")
	engine := NewEngine(reg)
	ag := engine.Normalize(&agent.Agent{
		Name:     "triage",
		Handoffs: []any{template.HandoffConfig{AgentName: "billing_agent"}},
	})

	h, ok := engine.Match(ag, "handoff_to_billing_agent")
	require.True(t, ok)
	assert.Equal(t, "billing_agent", h.TargetAgent)

	_, ok = engine.Match(ag, "get_weather")
	assert.False(t, ok)
}

func TestMatchInfersFromPrefix(t *testing.T) {
	reg := testRegistry(t, "travel_agent")
	engine := NewEngine(reg)
	ag := &agent.Agent{Name: "triage"}

	// The "_expert" naming convention resolves to the registered agent.
	h, ok := engine.Match(ag, "handoff_to_travel_expert")
	require.True(t, ok)
	assert.Equal(t, "travel_agent", h.TargetAgent)

	_, ok = engine.Match(ag, "handoff_to_")
	assert.False(t, ok)
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "full", raw: `{"reason":"billing question","details":"invoice 42"}`, reason: "billing question"},
		{name: "empty payload", raw: ``, reason: "further assistance"},
		{name: "malformed", raw: `{not json`, reason: "further assistance"},
		{name: "missing reason", raw: `{"details":"x"}`, reason: "further assistance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := ParseArguments(json.RawMessage(tt.raw))
			assert.Equal(t, tt.reason, args.Reason)
		})
	}
}

func TestExpertSystemMessage(t *testing.T) {
	msg := ExpertSystemMessage("billing_agent", "a billing question")
	assert.Equal(t, "You are billing_agent. The user has been referred to you for a billing question. Continue the conversation.", msg)
}

func TestDelegateMessages(t *testing.T) {
	h := New("billing_agent", WithInputFilter(Wrap(RemoveAllTools)))
	d := InputData{
		InputHistory: []agent.Message{
			userMsg("I have a billing question"),
			toolMsg("tool noise"),
		},
		PreHandoffItems: []agent.Message{assistantMsg("routing you")},
	}
	msgs := DelegateMessages(h, d, "a billing question")
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Content, "You are billing_agent.")
	assert.Equal(t, "I have a billing question", msgs[1].Content)
	assert.Equal(t, "routing you", msgs[2].Content)
}

func TestDeclarationExposesHandoffAsTool(t *testing.T) {
	h := New("billing_agent")
	decl := h.Declaration()
	require.NotNil(t, decl)
	assert.Equal(t, "handoff_to_billing_agent", decl.Name)
	assert.NotNil(t, decl.InputSchema)
}
