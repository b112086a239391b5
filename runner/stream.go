//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"context"
	"encoding/json"

	"github.com/ensembleworks/ensemble/event"
	"github.com/ensembleworks/ensemble/telemetry"
)

// defaultStreamBuffer sizes the event channel handed to consumers.
const defaultStreamBuffer = 64

// streamEmitter forwards turn progress as events. A nil emitter (the
// sync path) swallows everything.
type streamEmitter struct {
	ctx       context.Context
	out       chan<- *event.Event
	sessionID string
}

func (e *streamEmitter) send(ev *event.Event) error {
	if e == nil {
		return nil
	}
	select {
	case e.out <- ev:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// Content emits one assistant text delta.
func (e *streamEmitter) Content(author, delta string) error {
	if e == nil {
		return nil
	}
	return e.send(event.New(e.sessionID, author, event.TypeContent, event.WithContent(delta)))
}

// Handoff emits a delegation notice.
func (e *streamEmitter) Handoff(author, target, reason string) error {
	if e == nil {
		return nil
	}
	return e.send(event.New(e.sessionID, author, event.TypeHandoff, event.WithData(map[string]any{
		"target": target,
		"reason": reason,
	})))
}

// ToolCall emits a tool invocation notice.
func (e *streamEmitter) ToolCall(author, name string, args json.RawMessage) error {
	if e == nil {
		return nil
	}
	return e.send(event.New(e.sessionID, author, event.TypeToolCall, event.WithData(map[string]any{
		"tool":      name,
		"arguments": string(args),
	})))
}

// ToolResult emits a tool outcome notice.
func (e *streamEmitter) ToolResult(author, name, result string) error {
	if e == nil {
		return nil
	}
	return e.send(event.New(e.sessionID, author, event.TypeToolResult, event.WithData(map[string]any{
		"tool":   name,
		"result": result,
	})))
}

// StreamTurn executes one turn, delivering progress as an event stream.
// The channel always ends with a terminal event: done on success, error
// on failure, cancelled on caller cancellation. Consumers concatenate
// content payloads in arrival order to reconstruct the full response.
func (r *Runner) StreamTurn(ctx context.Context, agentName, input string, opts ...TurnOption) <-chan *event.Event {
	o := &TurnOptions{}
	for _, opt := range opts {
		opt(o)
	}
	out := make(chan *event.Event, defaultStreamBuffer)
	go func() {
		defer close(out)
		tctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
		defer cancel()

		state, err := r.prepareTurn(tctx, agentName, input, o)
		if err != nil {
			sessionID := o.SessionID
			if state != nil && state.sess != nil {
				sessionID = state.sess.ID
				r.persistFailure(tctx, state, err)
			}
			emitTerminalError(ctx, out, sessionID, agentName, err)
			telemetry.CountTurn(tctx, string(classify(err)))
			return
		}
		em := &streamEmitter{ctx: ctx, out: out, sessionID: state.sess.ID}

		output, items, err := r.invokeWithHandoffs(tctx, state, em)
		if err != nil {
			// Partial output survives a cancelled or timed-out turn,
			// flagged truncated.
			r.persistAssistant(tctx, state, output, true)
			kind := classify(err)
			if kind == KindCancelled {
				ev := event.New(state.sess.ID, agentName, event.TypeCancelled,
					event.WithData(map[string]any{"output": output}))
				deliverTerminal(out, ev)
			} else {
				emitTerminalError(ctx, out, state.sess.ID, agentName, err)
			}
			telemetry.CountTurn(tctx, string(kind))
			return
		}

		r.persistAssistant(tctx, state, output, false)
		r.consumeQuota(state)
		done := event.New(state.sess.ID, agentName, event.TypeDone, event.WithData(map[string]any{
			"session_id": state.sess.ID,
			"input":      state.input,
			"output":     output,
			"success":    true,
			"items":      items,
		}))
		deliverTerminal(out, done)
		telemetry.CountTurn(tctx, "success")
	}()
	return out
}

// emitTerminalError sends a terminal error event carrying the failure
// kind and message.
func emitTerminalError(ctx context.Context, out chan<- *event.Event, sessionID, author string, err error) {
	ev := event.New(sessionID, author, event.TypeError, event.WithData(map[string]any{
		"error":      err.Error(),
		"error_kind": string(classify(err)),
	}))
	select {
	case out <- ev:
	case <-ctx.Done():
		// The consumer is gone; the buffered channel may still take it.
		deliverTerminal(out, ev)
	}
}

// deliverTerminal best-effort delivers a terminal event without
// blocking a departed consumer.
func deliverTerminal(out chan<- *event.Event, ev *event.Event) {
	select {
	case out <- ev:
	default:
	}
}
