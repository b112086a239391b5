//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package handoff provides typed delegation between agents: canonical
// descriptors, history input filters with a safety layer, and the
// engine that normalizes heterogeneous handoff lists.
package handoff

import "github.com/ensembleworks/ensemble/agent"

// InputData is the conversation state passed to a delegated agent.
//
// Filters receive this value and must return a value of the same shape;
// the safety layer enforces the contract.
type InputData struct {
	// InputHistory is the conversation before the current turn.
	InputHistory []agent.Message
	// PreHandoffItems are items the delegating agent produced before
	// the handoff fired.
	PreHandoffItems []agent.Message
	// NewItems are items produced after the handoff fired.
	NewItems []agent.Message
}

// Clone returns a deep copy of the input data.
func (d InputData) Clone() InputData {
	out := InputData{
		InputHistory:    make([]agent.Message, len(d.InputHistory)),
		PreHandoffItems: make([]agent.Message, len(d.PreHandoffItems)),
		NewItems:        make([]agent.Message, len(d.NewItems)),
	}
	copy(out.InputHistory, d.InputHistory)
	copy(out.PreHandoffItems, d.PreHandoffItems)
	copy(out.NewItems, d.NewItems)
	return out
}

// AllItems returns the concatenation of the three sequences in order.
func (d InputData) AllItems() []agent.Message {
	out := make([]agent.Message, 0, len(d.InputHistory)+len(d.PreHandoffItems)+len(d.NewItems))
	out = append(out, d.InputHistory...)
	out = append(out, d.PreHandoffItems...)
	out = append(out, d.NewItems...)
	return out
}
