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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/tool"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "triage.json", `{
		"name": "triage_agent",
		"instructions": "You are the front line.",
		"model": "gpt-4o-mini",
		"handoffs": [
			{"agent_name": "billing_agent", "input_filter": "summarize", "keep_recent_messages": 3}
		]
	}`)
	writeTemplate(t, dir, "billing.yaml", `
name: billing_agent
instructions: You handle billing.
model:
  name: gpt-4o-mini
  provider: openai
`)
	writeTemplate(t, dir, "notes.txt", "not a template")
	writeTemplate(t, dir, "broken.json", `{"instructions": "missing name"}`)

	reg := NewRegistry()
	require.NoError(t, reg.Load(dir))
	assert.ElementsMatch(t, []string{"triage_agent", "billing_agent"}, reg.List())

	triage, err := reg.Get("triage_agent")
	require.NoError(t, err)
	// Bare-string model form.
	assert.Equal(t, "gpt-4o-mini", triage.Model.Name)
	require.Len(t, triage.Handoffs, 1)
	assert.Equal(t, "billing_agent", triage.Handoffs[0].AgentName)
	assert.Equal(t, FilterSummarize, triage.Handoffs[0].InputFilter)
	assert.Equal(t, 3, triage.Handoffs[0].KeepRecentMessages)

	billing, err := reg.Get("billing_agent")
	require.NoError(t, err)
	// Structured model form.
	assert.Equal(t, "gpt-4o-mini", billing.Model.Name)
	assert.Equal(t, "openai", billing.Model.Provider)
}

func TestGetNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRegisterValidates(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&Definition{Instructions: "no name", Model: ModelConfig{Name: "m"}}))
	assert.Error(t, reg.Register(&Definition{Name: "a", Instructions: "no model"}))
	assert.Error(t, reg.Register(&Definition{
		Name:     "a",
		Model:    ModelConfig{Name: "m"},
		Handoffs: []HandoffConfig{{}},
	}))
	assert.NoError(t, reg.Register(&Definition{Name: "a", Model: ModelConfig{Name: "m"}}))
}

func TestReloadReplacesDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "one.yaml", "name: one_agent\nmodel: m\n")

	reg := NewRegistry()
	require.NoError(t, reg.Load(dir))
	assert.ElementsMatch(t, []string{"one_agent"}, reg.List())

	require.NoError(t, os.Remove(filepath.Join(dir, "one.yaml")))
	writeTemplate(t, dir, "two.yaml", "name: two_agent\nmodel: m\n")
	require.NoError(t, reg.Reload())
	assert.ElementsMatch(t, []string{"two_agent"}, reg.List())
}

type staticModel struct{ name string }

func (m *staticModel) GenerateContent(context.Context, *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response)
	close(ch)
	return ch, nil
}

func (m *staticModel) Info() model.Info { return model.Info{Name: m.name} }

type declTool struct{ name string }

func (t *declTool) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: t.name, Description: "test tool"}
}

func TestBuildAgent(t *testing.T) {
	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(&declTool{name: "search"}, ""))

	var resolved ModelConfig
	reg := NewRegistry(
		WithModelResolver(func(cfg ModelConfig) (model.Model, error) {
			resolved = cfg
			return &staticModel{name: cfg.Name}, nil
		}),
		WithToolRegistry(tools),
	)
	require.NoError(t, reg.Register(&Definition{
		Name:         "triage_agent",
		Instructions: "You are the front line.",
		Model:        ModelConfig{Name: "gpt-4o-mini"},
		Tools:        []ToolConfig{{Name: "search"}, {Name: "unknown_tool"}},
		Handoffs:     []HandoffConfig{{AgentName: "billing_agent"}},
	}))

	ag, err := reg.BuildAgent(context.Background(), "triage_agent")
	require.NoError(t, err)
	assert.Equal(t, "triage_agent", ag.Name)
	assert.Equal(t, "gpt-4o-mini", resolved.Name)
	assert.Equal(t, "gpt-4o-mini", ag.ModelRef)
	require.NotNil(t, ag.Model)
	// Unknown tool references are skipped, not fatal.
	require.Len(t, ag.Tools, 1)
	assert.Equal(t, "search", ag.Tools[0].Declaration().Name)
	require.Len(t, ag.Handoffs, 1)

	_, err = reg.BuildAgent(context.Background(), "missing_agent")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestBuildAgentIsolatedCopies(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Name:         "assistant_agent",
		Instructions: "base",
		Model:        ModelConfig{Name: "m"},
	}))

	first, err := reg.BuildAgent(context.Background(), "assistant_agent")
	require.NoError(t, err)
	first.Instructions = "mutated"

	second, err := reg.BuildAgent(context.Background(), "assistant_agent")
	require.NoError(t, err)
	assert.Equal(t, "base", second.Instructions)
}
