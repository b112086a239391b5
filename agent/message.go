//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the per-turn context record and the agent
// working copy the runtime executes against.
package agent

import (
	"time"

	"github.com/ensembleworks/ensemble/model"
)

// Message is a single conversation entry held by a Context.
type Message struct {
	// Role is the message author role.
	Role model.Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
	// Truncated marks content cut short by the length cap or by a
	// cancelled turn.
	Truncated bool `json:"truncated,omitempty"`
	// ToolID pairs a tool result with its tool call.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the tool that produced a tool result.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls holds tool calls emitted by the assistant.
	ToolCalls []model.ToolCall `json:"tool_calls,omitempty"`
}

// IsToolRelated reports whether the message is a tool call or result.
func (m Message) IsToolRelated() bool {
	return m.Role == model.RoleTool || len(m.ToolCalls) > 0
}

// ToModel converts the message to the model wire form.
func (m Message) ToModel() model.Message {
	return model.Message{
		Role:      m.Role,
		Content:   m.Content,
		ToolID:    m.ToolID,
		ToolName:  m.ToolName,
		ToolCalls: m.ToolCalls,
	}
}
