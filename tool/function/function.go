//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/tool"
)

// Tool adapts a typed function to the tool.CallableTool contract: the
// model's JSON arguments unmarshal into I, the O result marshals back
// into the tool response.
type Tool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(context.Context, I) (O, error)
}

// Option configures a function tool.
type Option func(*options)

type options struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
}

// WithName sets the tool name exposed to the model. Stick to
// [a-zA-Z0-9_-] for provider compatibility.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDescription sets the tool description.
func WithDescription(description string) Option {
	return func(o *options) { o.description = description }
}

// WithInputSchema sets the argument schema shown to the model.
func WithInputSchema(schema *tool.Schema) Option {
	return func(o *options) { o.inputSchema = schema }
}

// WithOutputSchema sets the result schema.
func WithOutputSchema(schema *tool.Schema) Option {
	return func(o *options) { o.outputSchema = schema }
}

// New wraps fn as a callable tool.
func New[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *Tool[I, O] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		log.Warnf("function tool created without a name")
	}
	if o.inputSchema == nil {
		o.inputSchema = &tool.Schema{Type: "object"}
	}
	return &Tool[I, O]{
		name:         o.name,
		description:  o.description,
		inputSchema:  o.inputSchema,
		outputSchema: o.outputSchema,
		fn:           fn,
	}
}

// Declaration implements tool.Tool.
func (t *Tool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         t.name,
		Description:  t.description,
		InputSchema:  t.inputSchema,
		OutputSchema: t.outputSchema,
	}
}

// Call implements tool.CallableTool. Empty argument payloads run the
// function on I's zero value.
func (t *Tool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("tool %s: unmarshal arguments: %w", t.name, err)
		}
	}
	output, err := t.fn(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", t.name, err)
	}
	return output, nil
}
