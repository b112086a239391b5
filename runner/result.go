//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package runner

import "github.com/ensembleworks/ensemble/agent"

// ItemTypeHandoffResult tags an expert's output attached to a turn.
const ItemTypeHandoffResult = "handoff_result"

// TurnItem is a structured artifact produced during a turn, currently
// the record of a fired handoff.
type TurnItem struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

// HandoffResultItem builds the record of an expert's contribution.
func HandoffResultItem(agentName, body string) TurnItem {
	return TurnItem{
		Type: ItemTypeHandoffResult,
		Content: map[string]any{
			"agent_name": agentName,
			"body":       body,
		},
	}
}

// TurnResult is the sum-typed outcome of a turn. Failures carry an
// ErrorKind and message instead of an output.
type TurnResult struct {
	SessionID string     `json:"session_id"`
	Input     string     `json:"input"`
	Output    string     `json:"output,omitempty"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Items     []TurnItem `json:"items,omitempty"`
}

// failure builds an error result preserving whatever session id the
// pipeline reached.
func failure(sessionID, input string, err error) *TurnResult {
	return &TurnResult{
		SessionID: sessionID,
		Input:     input,
		Success:   false,
		Error:     err.Error(),
		ErrorKind: classify(err),
	}
}

// TurnOptions carries per-turn caller parameters.
type TurnOptions struct {
	// SessionID resumes an existing session; unresolvable or empty ids
	// start a fresh one.
	SessionID string
	// APIKey authenticates via the key path.
	APIKey string
	// JWT authenticates via the token path.
	JWT string
	// UserName labels the caller in the "User info:" block.
	UserName string
	// SystemOverride replaces the template instructions for this turn.
	SystemOverride string
	// Context supplies a caller-built context instead of the session's.
	Context *agent.Context
}

// TurnOption configures a turn.
type TurnOption func(*TurnOptions)

// WithSessionID resumes a session.
func WithSessionID(id string) TurnOption {
	return func(o *TurnOptions) { o.SessionID = id }
}

// WithAPIKey authenticates the turn with an API key.
func WithAPIKey(key string) TurnOption {
	return func(o *TurnOptions) { o.APIKey = key }
}

// WithJWT authenticates the turn with a JWT access token.
func WithJWT(token string) TurnOption {
	return func(o *TurnOptions) { o.JWT = token }
}

// WithUserName labels the caller.
func WithUserName(name string) TurnOption {
	return func(o *TurnOptions) { o.UserName = name }
}

// WithSystemOverride replaces the template instructions for this turn.
func WithSystemOverride(instructions string) TurnOption {
	return func(o *TurnOptions) { o.SystemOverride = instructions }
}

// WithContext supplies a caller-built context.
func WithContext(c *agent.Context) TurnOption {
	return func(o *TurnOptions) { o.Context = c }
}
