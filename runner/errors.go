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
	"errors"

	"github.com/ensembleworks/ensemble/auth"
	"github.com/ensembleworks/ensemble/session"
	"github.com/ensembleworks/ensemble/template"
)

// ErrorKind is the typed failure category carried on a TurnResult. The
// public boundary never surfaces raw errors; every failure maps to one
// of these.
type ErrorKind string

// Turn failure categories.
const (
	KindAuthFailed       ErrorKind = "AuthFailed"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindRateLimited      ErrorKind = "RateLimited"
	KindQuotaExceeded    ErrorKind = "QuotaExceeded"
	KindContentBlocked   ErrorKind = "ContentBlocked"
	KindSessionNotFound  ErrorKind = "SessionNotFound"
	KindTemplateNotFound ErrorKind = "TemplateNotFound"
	KindHandoffLoop      ErrorKind = "HandoffLoop"
	KindTimeout          ErrorKind = "Timeout"
	KindCancelled        ErrorKind = "Cancelled"
	KindAsyncReentry     ErrorKind = "AsyncReentry"
	KindInternal         ErrorKind = "Internal"
)

// Sentinel errors originating in the runner itself.
var (
	ErrHandoffLoop  = errors.New("handoff depth limit exceeded")
	ErrAsyncReentry = errors.New("sync turn called from async executor")
)

// classify maps an error onto its turn failure category.
func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, auth.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, auth.ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, auth.ErrContentBlocked):
		return KindContentBlocked
	case errors.Is(err, auth.ErrNoCredentials),
		errors.Is(err, auth.ErrMalformedKey),
		errors.Is(err, auth.ErrUnknownKey),
		errors.Is(err, auth.ErrKeyRevoked),
		errors.Is(err, auth.ErrKeyExpired),
		errors.Is(err, auth.ErrKeyInvalid),
		errors.Is(err, auth.ErrAccountDisabled),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return KindAuthFailed
	case errors.Is(err, session.ErrAccessDenied):
		return KindPermissionDenied
	case errors.Is(err, session.ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, template.ErrTemplateNotFound):
		return KindTemplateNotFound
	case errors.Is(err, ErrHandoffLoop):
		return KindHandoffLoop
	case errors.Is(err, ErrAsyncReentry):
		return KindAsyncReentry
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}
