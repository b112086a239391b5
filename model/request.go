//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package model provides the model abstraction used by the runtime.
package model

import (
	"encoding/json"

	"github.com/ensembleworks/ensemble/tool"
)

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content,omitempty"`
	// ToolID is the ID of the tool call this message responds to.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the name of the tool that produced this message.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls is the optional tool calls emitted by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolMessage creates a new tool response message.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{
		Role:     RoleTool,
		ToolID:   toolID,
		ToolName: toolName,
		Content:  content,
	}
}

// GenerationConfig contains the generation parameters for a model call.
type GenerationConfig struct {
	// Stream indicates whether the response should be streamed.
	Stream bool `json:"stream,omitempty"`
	// Temperature controls randomness in generation.
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP controls nucleus sampling.
	TopP *float64 `json:"top_p,omitempty"`
	// MaxTokens limits the number of completion tokens.
	MaxTokens *int `json:"max_tokens,omitempty"`
	// Stop is the list of stop sequences.
	Stop []string `json:"stop,omitempty"`
	// PresencePenalty penalizes repeated topics.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	// FrequencyPenalty penalizes repeated tokens.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Request is the request to the model.
type Request struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// GenerationConfig contains the generation parameters.
	GenerationConfig `json:",inline"`

	// Tools are not serialized, handled separately.
	Tools map[string]tool.Tool `json:"-"`
}

// ToolCall represents a call to a tool in the model response.
type ToolCall struct {
	// Type of the tool. Currently only `function` is supported.
	Type string `json:"type"`
	// Function holds the invoked function name and arguments.
	Function FunctionCall `json:"function,omitempty"`
	// ID is the tool call id returned by the model.
	ID string `json:"id,omitempty"`
	// Index is the index of the tool call for streaming responses.
	Index *int `json:"index,omitempty"`
}

// FunctionCall holds the function name and raw JSON arguments of a tool call.
type FunctionCall struct {
	// Name is the name of the function to call.
	Name string `json:"name"`
	// Arguments is the raw JSON argument payload produced by the model.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
