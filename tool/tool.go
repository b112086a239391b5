//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool registration and dispatch contract.
package tool

import "context"

// Schema is a minimal JSON schema describing tool input or output.
type Schema struct {
	// Type is the JSON type, e.g. "object", "string", "number".
	Type string `json:"type,omitempty"`
	// Description describes the value.
	Description string `json:"description,omitempty"`
	// Properties holds the schemas of object properties.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists the required object properties.
	Required []string `json:"required,omitempty"`
	// Items is the schema of array items.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to a fixed set.
	Enum []string `json:"enum,omitempty"`
}

// Declaration describes a tool to the model.
type Declaration struct {
	// Name is the tool name exposed to the model.
	Name string `json:"name"`
	// Description tells the model what the tool does.
	Description string `json:"description"`
	// InputSchema describes the tool call arguments.
	InputSchema *Schema `json:"input_schema,omitempty"`
	// OutputSchema describes the tool result.
	OutputSchema *Schema `json:"output_schema,omitempty"`
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Declaration returns the tool declaration.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the raw JSON arguments produced by the
	// model and returns the result.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}
