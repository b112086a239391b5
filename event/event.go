//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package event provides the streaming event envelope emitted by the runtime.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of a streamed event.
type Type string

// Event type constants.
const (
	// TypeContent carries an incremental assistant text delta.
	TypeContent Type = "content"
	// TypeToolCall signals the model requested a tool invocation.
	TypeToolCall Type = "tool_call"
	// TypeToolResult carries the result of a tool invocation.
	TypeToolResult Type = "tool_result"
	// TypeHandoff signals a delegation to another agent.
	TypeHandoff Type = "handoff"
	// TypeDone marks terminal success.
	TypeDone Type = "done"
	// TypeError marks terminal failure and carries a message.
	TypeError Type = "error"
	// TypeCancelled marks terminal cancellation.
	TypeCancelled Type = "cancelled"
)

// IsTerminal reports whether the type ends a stream.
func (t Type) IsTerminal() bool {
	switch t {
	case TypeDone, TypeError, TypeCancelled:
		return true
	default:
		return false
	}
}

// Event is a single entry in a turn's event stream.
//
// Consumers concatenate TypeContent payloads in arrival order to
// reconstruct the full assistant response.
type Event struct {
	// ID is the unique event id.
	ID string `json:"id"`
	// SessionID is the session the event belongs to.
	SessionID string `json:"session_id"`
	// Author is the agent (or "user") that produced the event.
	Author string `json:"author,omitempty"`
	// Type is the event kind.
	Type Type `json:"type"`
	// Content is the text payload for content and error events.
	Content string `json:"content,omitempty"`
	// Data carries structured payloads (tool call arguments, results,
	// turn results for done events).
	Data map[string]any `json:"data,omitempty"`
	// Done is true on terminal events.
	Done bool `json:"done"`
	// Timestamp is the event creation time in Unix seconds.
	Timestamp float64 `json:"timestamp"`
}

// Option configures an Event.
type Option func(*Event)

// WithContent sets the text payload.
func WithContent(content string) Option {
	return func(e *Event) {
		e.Content = content
	}
}

// WithData sets the structured payload.
func WithData(data map[string]any) Option {
	return func(e *Event) {
		e.Data = data
	}
}

// New creates a new Event with a generated ID and timestamp.
func New(sessionID, author string, typ Type, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Author:    author,
		Type:      typ,
		Done:      typ.IsTerminal(),
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
