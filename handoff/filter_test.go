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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/model"
)

func history(msgs ...agent.Message) InputData {
	return InputData{InputHistory: msgs}
}

func userMsg(content string) agent.Message {
	return agent.Message{Role: model.RoleUser, Content: content}
}

func assistantMsg(content string) agent.Message {
	return agent.Message{Role: model.RoleAssistant, Content: content}
}

func toolMsg(content string) agent.Message {
	return agent.Message{Role: model.RoleTool, Content: content, ToolID: "call_1"}
}

func TestRemoveAllTools(t *testing.T) {
	d := InputData{
		InputHistory: []agent.Message{
			userMsg("hi"),
			{Role: model.RoleAssistant, Content: "", ToolCalls: []model.ToolCall{{ID: "call_1"}}},
			toolMsg("result"),
			assistantMsg("done"),
		},
		PreHandoffItems: []agent.Message{toolMsg("pre")},
	}
	out := RemoveAllTools(d)
	require.Len(t, out.InputHistory, 2)
	assert.Equal(t, "hi", out.InputHistory[0].Content)
	assert.Equal(t, "done", out.InputHistory[1].Content)
	assert.Empty(t, out.PreHandoffItems)
}

func TestKeepUserMessagesOnly(t *testing.T) {
	d := InputData{
		InputHistory: []agent.Message{
			userMsg("one"),
			assistantMsg("reply"),
			userMsg("two"),
		},
		PreHandoffItems: []agent.Message{assistantMsg("pre")},
		NewItems:        []agent.Message{assistantMsg("new")},
	}
	out := KeepUserMessagesOnly(d)
	require.Len(t, out.InputHistory, 2)
	assert.Equal(t, "one", out.InputHistory[0].Content)
	assert.Equal(t, "two", out.InputHistory[1].Content)
	assert.Empty(t, out.PreHandoffItems)
	assert.Empty(t, out.NewItems)
}

func TestSummarizeHistoryPassthrough(t *testing.T) {
	f := SummarizeHistory("Summary", 2)
	d := history(userMsg("a"), assistantMsg("b"), userMsg("c"), assistantMsg("d"))
	out := f(d)
	assert.Equal(t, d.InputHistory, out.InputHistory)
}

func TestSummarizeHistoryCollapses(t *testing.T) {
	f := SummarizeHistory("Summary", 1)
	var msgs []agent.Message
	for i := 0; i < 6; i++ {
		msgs = append(msgs, userMsg(fmt.Sprintf("msg %d", i)))
	}
	out := f(history(msgs...))
	require.Len(t, out.InputHistory, 3)
	summary := out.InputHistory[0]
	assert.Equal(t, model.RoleSystem, summary.Role)
	assert.True(t, strings.HasPrefix(summary.Content, "Summary:\n"))
	assert.Contains(t, summary.Content, "user: msg 0")
	assert.Contains(t, summary.Content, "user: msg 3")
	assert.Equal(t, "msg 4", out.InputHistory[1].Content)
	assert.Equal(t, "msg 5", out.InputHistory[2].Content)
}

func TestSummarizeHistoryTruncatesLongItems(t *testing.T) {
	f := SummarizeHistory("S", 1)
	long := strings.Repeat("x", 300)
	out := f(history(userMsg(long), userMsg("a"), userMsg("b"), userMsg("c")))
	summary := out.InputHistory[0].Content
	assert.Contains(t, summary, strings.Repeat("x", 100)+"…")
	assert.NotContains(t, summary, strings.Repeat("x", 101))
}

func TestWrapRecoversPanic(t *testing.T) {
	f := Wrap(func(InputData) InputData {
		panic("boom")
	})
	d := history(userMsg("survives"))
	out := f(d)
	require.Len(t, out.InputHistory, 1)
	assert.Equal(t, "survives", out.InputHistory[0].Content)
}

func TestWrapNilIsIdentity(t *testing.T) {
	f := Wrap(nil)
	d := history(userMsg("a"))
	assert.Equal(t, d, f(d))
}

func TestResolveFilter(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "nil", input: nil},
		{name: "filter", input: Filter(RemoveAllTools)},
		{name: "plain func", input: func(d InputData) InputData { return d }},
		{name: "factory", input: FilterFactory(SummarizeHistory)},
		{name: "builtin name", input: "remove_tools"},
		{name: "unknown name", input: "nope"},
		{name: "unknown shape", input: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ResolveFilter(tt.input)
			require.NotNil(t, f)
			out := f(history(userMsg("x")))
			assert.NotNil(t, out)
		})
	}
}

func TestResolveNamedFilterSummarizeUsesParams(t *testing.T) {
	f := ResolveNamedFilter("summarize", "Earlier", 1)
	var msgs []agent.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, userMsg(fmt.Sprintf("m%d", i)))
	}
	out := f(history(msgs...))
	require.NotEmpty(t, out.InputHistory)
	assert.True(t, strings.HasPrefix(out.InputHistory[0].Content, "Earlier:\n"))
}
