//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ensembleworks/ensemble/model"
)

// Default bounds for a Context message buffer.
const (
	DefaultMaxMessages      = 20
	DefaultMaxContentLength = 10000
)

// TruncationSuffix is appended to content cut at MaxContentLength.
const TruncationSuffix = "…(truncated)"

// userInfoMetadataKeys is the whitelist of metadata keys rendered into
// the "User info:" block.
var userInfoMetadataKeys = []string{"preference", "language", "role", "permission_level"}

// Context is the per-session dependency-injection record: user identity,
// message buffer, metadata, and authorization tags.
//
// Invariants maintained by the mutators:
//   - at most one system message, always at index 0
//   - message content is capped at MaxContentLength with TruncationSuffix
//   - len(Messages) ≤ MaxMessages; oldest non-system messages are
//     evicted first
type Context struct {
	mu sync.RWMutex

	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name"`
	SessionID   string         `json:"session_id,omitempty"`
	Messages    []Message      `json:"messages"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	LastActive  int64          `json:"last_active"`

	// MaxMessages bounds the message buffer. Zero means DefaultMaxMessages.
	MaxMessages int `json:"max_messages,omitempty"`
	// MaxContentLength caps message content, in characters. Zero means
	// DefaultMaxContentLength.
	MaxContentLength int `json:"max_content_length,omitempty"`
}

// ContextOption configures a new Context.
type ContextOption func(*Context)

// WithMaxMessages overrides the message buffer bound.
func WithMaxMessages(n int) ContextOption {
	return func(c *Context) {
		c.MaxMessages = n
	}
}

// WithMaxContentLength overrides the content length cap.
func WithMaxContentLength(n int) ContextOption {
	return func(c *Context) {
		c.MaxContentLength = n
	}
}

// WithMetadata sets an initial metadata entry.
func WithMetadata(key string, value any) ContextOption {
	return func(c *Context) {
		c.Metadata[key] = value
	}
}

// NewContext creates a Context for the given user.
func NewContext(userID, userName string, opts ...ContextOption) *Context {
	now := time.Now().Unix()
	c := &Context{
		UserID:     userID,
		UserName:   userName,
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		LastActive: now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) maxMessages() int {
	if c.MaxMessages > 0 {
		return c.MaxMessages
	}
	return DefaultMaxMessages
}

func (c *Context) maxContentLength() int {
	if c.MaxContentLength > 0 {
		return c.MaxContentLength
	}
	return DefaultMaxContentLength
}

// coerceContent stringifies and caps message content. The cap counts
// characters, so the cut always lands on a rune boundary.
func (c *Context) coerceContent(content any) (string, bool) {
	text, ok := content.(string)
	if !ok {
		text = fmt.Sprintf("%v", content)
	}
	limit := c.maxContentLength()
	if len(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]) + TruncationSuffix, true
}

// AddMessage appends a message, enforcing the system-at-zero, truncation
// and buffer-bound invariants.
func (c *Context) AddMessage(role model.Role, content any) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addMessageLocked(role, content)
}

func (c *Context) addMessageLocked(role model.Role, content any) Message {
	text, truncated := c.coerceContent(content)
	msg := Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now(),
		Truncated: truncated,
	}
	if role == model.RoleSystem {
		c.setSystemLocked(msg)
		c.touchLocked()
		return msg
	}
	c.Messages = append(c.Messages, msg)
	c.evictLocked()
	c.touchLocked()
	return msg
}

// AppendRaw appends a fully-formed message (tool calls, truncation flags)
// subject to the same invariants.
func (c *Context) AppendRaw(msg Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, truncated := c.coerceContent(msg.Content)
	msg.Content = text
	msg.Truncated = msg.Truncated || truncated
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Role == model.RoleSystem {
		c.setSystemLocked(msg)
	} else {
		c.Messages = append(c.Messages, msg)
		c.evictLocked()
	}
	c.touchLocked()
	return msg
}

// setSystemLocked installs or replaces the system message at index 0.
func (c *Context) setSystemLocked(msg Message) {
	if len(c.Messages) > 0 && c.Messages[0].Role == model.RoleSystem {
		c.Messages[0] = msg
		return
	}
	c.Messages = append([]Message{msg}, c.Messages...)
	c.evictLocked()
}

// evictLocked drops the oldest non-system messages above the bound.
func (c *Context) evictLocked() {
	limit := c.maxMessages()
	for len(c.Messages) > limit {
		idx := 0
		if c.Messages[0].Role == model.RoleSystem {
			idx = 1
		}
		if idx >= len(c.Messages) {
			return
		}
		c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	}
}

// SetSystemMessage replaces the system message.
func (c *Context) SetSystemMessage(content string) {
	c.AddMessage(model.RoleSystem, content)
}

// SystemMessage returns the system message content, if present.
func (c *Context) SystemMessage() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Messages) > 0 && c.Messages[0].Role == model.RoleSystem {
		return c.Messages[0].Content, true
	}
	return "", false
}

// MessagesSnapshot returns a copy of the message buffer.
func (c *Context) MessagesSnapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// ReplaceMessages atomically swaps the message buffer, re-applying the
// buffer invariants.
func (c *Context) ReplaceMessages(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = nil
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			c.setSystemLocked(m)
			continue
		}
		c.Messages = append(c.Messages, m)
	}
	c.evictLocked()
	c.touchLocked()
}

// ClearMessages drops all messages.
func (c *Context) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = nil
	c.touchLocked()
}

// ModelMessages returns the non-system messages in model wire form.
func (c *Context) ModelMessages() []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == model.RoleSystem {
			continue
		}
		out = append(out, m.ToModel())
	}
	return out
}

// SetMetadata stores a metadata entry.
func (c *Context) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	c.touchLocked()
}

// GetMetadata looks up a metadata entry.
func (c *Context) GetMetadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.Metadata[key]
	return v, ok
}

// HasPermission reports whether the context carries the permission tag.
func (c *Context) HasPermission(permission string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasRole reports whether the context carries the role tag.
func (c *Context) HasRole(role string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Touch refreshes the last-active timestamp.
func (c *Context) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
}

func (c *Context) touchLocked() {
	c.LastActive = time.Now().Unix()
}

// UserInfoBlock renders the fixed-format "User info:" block appended to
// agent instructions: identity plus whitelisted metadata keys.
func (c *Context) UserInfoBlock() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var b strings.Builder
	b.WriteString("User info:\n")
	b.WriteString("- user_id: " + c.UserID + "\n")
	b.WriteString("- user_name: " + c.UserName)
	for _, key := range userInfoMetadataKeys {
		if v, ok := c.Metadata[key]; ok {
			b.WriteString(fmt.Sprintf("\n- %s: %v", key, v))
		}
	}
	return b.String()
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Context{
		UserID:           c.UserID,
		UserName:         c.UserName,
		SessionID:        c.SessionID,
		Messages:         make([]Message, len(c.Messages)),
		Metadata:         make(map[string]any, len(c.Metadata)),
		Permissions:      append([]string(nil), c.Permissions...),
		Roles:            append([]string(nil), c.Roles...),
		CreatedAt:        c.CreatedAt,
		LastActive:       c.LastActive,
		MaxMessages:      c.MaxMessages,
		MaxContentLength: c.MaxContentLength,
	}
	copy(clone.Messages, c.Messages)
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
