//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	openaiopt "github.com/openai/openai-go/option"
)

// defaultChannelBufferSize is the default buffer size for response channels.
const defaultChannelBufferSize = 256

// Option configures the OpenAI model.
type Option func(*options)

type options struct {
	APIKey            string
	BaseURL           string
	ChannelBufferSize int
	OpenAIOptions     []openaiopt.RequestOption
}

var defaultOptions = options{
	ChannelBufferSize: defaultChannelBufferSize,
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible endpoints.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithChannelBufferSize sets the buffer size of the response channel.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.ChannelBufferSize = size
		}
	}
}

// WithOpenAIOptions appends extra request options passed through to the
// underlying OpenAI client.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.OpenAIOptions = append(o.OpenAIOptions, opts...)
	}
}
