//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package telemetry wires the runtime to OpenTelemetry: one tracer and
// meter from the global providers plus the counters the runtime bumps.
// With no SDK installed everything is a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ensembleworks/ensemble/log"
)

const instrumentationName = "github.com/ensembleworks/ensemble"

// Tracer is the runtime's tracer.
var Tracer trace.Tracer

// Meter is the runtime's meter.
var Meter metric.Meter

var (
	turnCounter     metric.Int64Counter
	handoffCounter  metric.Int64Counter
	authDenyCounter metric.Int64Counter
	tokenCounter    metric.Int64Counter
)

func init() {
	Tracer = otel.Tracer(instrumentationName)
	Meter = otel.Meter(instrumentationName)

	var err error
	if turnCounter, err = Meter.Int64Counter("agent.turns",
		metric.WithDescription("Completed turns by outcome")); err != nil {
		log.Warnf("telemetry: create turn counter: %v", err)
	}
	if handoffCounter, err = Meter.Int64Counter("agent.handoffs",
		metric.WithDescription("Handoffs fired by target agent")); err != nil {
		log.Warnf("telemetry: create handoff counter: %v", err)
	}
	if authDenyCounter, err = Meter.Int64Counter("agent.auth_denials",
		metric.WithDescription("Security gate denials by reason")); err != nil {
		log.Warnf("telemetry: create auth denial counter: %v", err)
	}
	if tokenCounter, err = Meter.Int64Counter("agent.model_tokens",
		metric.WithDescription("Model tokens consumed")); err != nil {
		log.Warnf("telemetry: create token counter: %v", err)
	}
}

// CountTurn records a completed turn with its outcome kind.
func CountTurn(ctx context.Context, outcome string) {
	if turnCounter == nil {
		return
	}
	turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CountHandoff records a fired handoff.
func CountHandoff(ctx context.Context, target string) {
	if handoffCounter == nil {
		return
	}
	handoffCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}

// CountAuthDenial records a security-gate denial.
func CountAuthDenial(ctx context.Context, reason string) {
	if authDenyCounter == nil {
		return
	}
	authDenyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// CountTokens records model token usage.
func CountTokens(ctx context.Context, modelName string, tokens int64) {
	if tokenCounter == nil || tokens <= 0 {
		return
	}
	tokenCounter.Add(ctx, tokens, metric.WithAttributes(attribute.String("model", modelName)))
}
