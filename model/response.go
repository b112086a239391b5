//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package model

import "time"

// Object type constants for responses.
const (
	// ObjectTypeChatCompletion is the object type for chat completion responses.
	ObjectTypeChatCompletion = "chat.completion"
	// ObjectTypeChatCompletionChunk is the object type for streamed chunks.
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	// ObjectTypeError is the object type for error responses.
	ObjectTypeError = "error"
)

// ErrorTypeAPIError is the error type for API-level errors.
const ErrorTypeAPIError = "api_error"

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice.
	Index int `json:"index"`
	// Message is the complete message content.
	Message Message `json:"message,omitempty"`
	// Delta is the incremental message content for streaming.
	Delta Message `json:"delta,omitempty"`
	// FinishReason is the reason generation stopped ("stop", "length",
	// "tool_calls", "content_filter").
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// ResponseError represents an API-level error from the model service.
type ResponseError struct {
	// Message is a human-readable error description.
	Message string `json:"message"`
	// Type categorizes the error.
	Type string `json:"type,omitempty"`
}

// Response is the response from the model.
//
// The Error field represents API-level errors that occur after successful
// communication with the model service. Function-level errors returned by
// GenerateContent indicate failures that prevent communication entirely.
type Response struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`
	// Object describes the type of object returned.
	Object string `json:"object"`
	// Created is the Unix timestamp when the response was created.
	Created int64 `json:"created"`
	// Model is the model used to generate the response.
	Model string `json:"model"`
	// Choices contains the completion choices.
	Choices []Choice `json:"choices"`
	// Usage contains token usage information (may be nil for streaming chunks).
	Usage *Usage `json:"usage,omitempty"`
	// Error contains API-level error information if the request failed.
	Error *ResponseError `json:"error,omitempty"`
	// Timestamp is when this response chunk was received.
	Timestamp time.Time `json:"timestamp"`
	// Done indicates the final response of a stream.
	Done bool `json:"done"`
	// IsPartial indicates this is a partial (delta) response.
	IsPartial bool `json:"is_partial"`
}

// Clone creates a deep copy of the response.
func (rsp *Response) Clone() *Response {
	if rsp == nil {
		return nil
	}
	clone := *rsp
	clone.Choices = make([]Choice, len(rsp.Choices))
	copy(clone.Choices, rsp.Choices)
	if rsp.Usage != nil {
		usage := *rsp.Usage
		clone.Usage = &usage
	}
	if rsp.Error != nil {
		respErr := *rsp.Error
		clone.Error = &respErr
	}
	return &clone
}
