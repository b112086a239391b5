//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package model

import "context"

// Info describes a model implementation.
type Info struct {
	// Name is the model name, e.g. "gpt-4o-mini".
	Name string
	// Provider identifies the backing provider, e.g. "openai".
	Provider string
}

// Model is the interface implemented by all model providers.
//
// GenerateContent returns a channel of responses. For non-streaming
// requests the channel carries a single final response. For streaming
// requests it carries partial responses followed by a final one with
// Done set. The channel is closed when generation finishes, fails, or
// the context is cancelled.
type Model interface {
	// GenerateContent generates content from the model.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}
