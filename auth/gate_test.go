//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateAnonymous(t *testing.T) {
	g, err := NewGate()
	require.NoError(t, err)

	result, err := g.Authenticate(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, AnonymousUserID, result.UserID)
	assert.Equal(t, []string{"guest"}, result.Roles)
	assert.Equal(t, "anonymous", result.Method)
}

func TestAuthenticateAnonymousDisallowed(t *testing.T) {
	g, err := NewGate(WithAllowAnonymous(false))
	require.NoError(t, err)

	_, err = g.Authenticate(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthenticateAPIKeyWinsOverJWT(t *testing.T) {
	jwtMgr, err := NewJWTManager("secret", "ensemble-test")
	require.NoError(t, err)
	g, err := NewGate(WithJWTManager(jwtMgr))
	require.NoError(t, err)

	account := g.KeyStore().CreateAccount("ci-bot", "key-user", []string{"user"}, nil)
	plaintext, _, err := g.KeyStore().GenerateKey(account.ID, nil, 0, false)
	require.NoError(t, err)
	token, err := jwtMgr.IssueAccessToken("jwt-user", nil, nil, nil)
	require.NoError(t, err)

	result, err := g.Authenticate(context.Background(), plaintext, token)
	require.NoError(t, err)
	assert.Equal(t, "key-user", result.UserID)
	assert.Equal(t, "api_key", result.Method)
}

func TestAuthenticateJWTUnconfigured(t *testing.T) {
	g, err := NewGate()
	require.NoError(t, err)

	_, err = g.Authenticate(context.Background(), "", "some.jwt.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGatePermissionCheck(t *testing.T) {
	g, err := NewGate()
	require.NoError(t, err)

	anon := &AuthResult{UserID: AnonymousUserID, Roles: []string{"guest"}}
	assert.NoError(t, g.RequirePermission(anon, "model:read"))
	assert.ErrorIs(t, g.RequirePermission(anon, "admin:manage"), ErrPermissionDenied)
}

func TestGateCheckContent(t *testing.T) {
	g, err := NewGate()
	require.NoError(t, err)

	out, err := g.CheckContent("plain question")
	require.NoError(t, err)
	assert.Equal(t, "plain question", out)

	out, err = g.CheckContent("reach me at jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "reach me at [EMAIL]", out)

	_, err = g.CheckContent("card 4111 1111 1111 1111")
	assert.ErrorIs(t, err, ErrContentBlocked)
}
