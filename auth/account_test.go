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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithAccount(t *testing.T) (*KeyStore, *ServiceAccount) {
	t.Helper()
	store := NewKeyStore()
	account := store.CreateAccount("ci-bot", "alice", []string{"user"}, []string{"model:invoke", "session:write"})
	return store, account
}

func TestGenerateAndVerifyKey(t *testing.T) {
	store, account := storeWithAccount(t)
	plaintext, key, err := store.GenerateKey(account.ID, []string{"model:invoke"}, 30, true)
	require.NoError(t, err)

	prefix, secret, ok := strings.Cut(plaintext, ".")
	require.True(t, ok)
	assert.Len(t, prefix, 8)
	assert.Len(t, secret, 32)
	assert.Equal(t, KeyStatusActive, key.Status)
	// Only the hash is persisted.
	assert.NotContains(t, string(key.SecretHash), secret)

	result, err := store.Verify(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, "alice", result.UserID)
	// Roles come from the account, permissions from the key.
	assert.Equal(t, []string{"user"}, result.Roles)
	assert.Equal(t, []string{"model:invoke"}, result.Permissions)
	assert.False(t, key.LastUsedAt.IsZero())
}

func TestVerifyFailures(t *testing.T) {
	store, account := storeWithAccount(t)
	plaintext, key, err := store.GenerateKey(account.ID, nil, 0, false)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "malformed no dot", key: "nodothere", want: ErrMalformedKey},
		{name: "malformed empty secret", key: "prefix.", want: ErrMalformedKey},
		{name: "unknown prefix", key: "deadbeef.0123456789abcdef0123456789abcdef", want: ErrUnknownKey},
		{name: "wrong secret", key: key.Prefix + ".0123456789abcdef0123456789abcdef", want: ErrKeyInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Verify(ctx, tt.key)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Correct key still verifies.
	_, err = store.Verify(ctx, plaintext)
	assert.NoError(t, err)
}

func TestExpiredKeyTransitionsOnVerify(t *testing.T) {
	store, account := storeWithAccount(t)
	// expires_in_days = 0: born expired.
	plaintext, key, err := store.GenerateKey(account.ID, nil, 0, true)
	require.NoError(t, err)

	_, err = store.Verify(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrKeyExpired)
	assert.Equal(t, KeyStatusExpired, key.Status)

	// Subsequent attempts keep failing on the stored status.
	_, err = store.Verify(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrKeyExpired)
}

func TestRevokedKey(t *testing.T) {
	store, account := storeWithAccount(t)
	plaintext, key, err := store.GenerateKey(account.ID, nil, 0, false)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(key.ID))
	_, err = store.Verify(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrKeyRevoked)
}

func TestDisabledAccount(t *testing.T) {
	store, account := storeWithAccount(t)
	plaintext, _, err := store.GenerateKey(account.ID, nil, 0, false)
	require.NoError(t, err)

	require.NoError(t, store.SetAccountActive(account.ID, false))
	_, err = store.Verify(context.Background(), plaintext)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRotateKey(t *testing.T) {
	store, account := storeWithAccount(t)
	oldPlain, oldKey, err := store.GenerateKey(account.ID, []string{"model:invoke"}, 0, false)
	require.NoError(t, err)

	newPlain, newKey, err := store.Rotate(oldKey.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldPlain, newPlain)
	assert.Equal(t, oldKey.Permissions, newKey.Permissions)
	assert.Equal(t, account.ID, newKey.ServiceAccountID)

	_, err = store.Verify(context.Background(), oldPlain)
	assert.ErrorIs(t, err, ErrKeyRevoked)
	_, err = store.Verify(context.Background(), newPlain)
	assert.NoError(t, err)
}

func TestListKeys(t *testing.T) {
	store, account := storeWithAccount(t)
	_, _, err := store.GenerateKey(account.ID, nil, 0, false)
	require.NoError(t, err)
	expiredPlain, _, err := store.GenerateKey(account.ID, nil, 0, true)
	require.NoError(t, err)
	// Trip the lazy expiry transition.
	_, err = store.Verify(context.Background(), expiredPlain)
	require.ErrorIs(t, err, ErrKeyExpired)

	assert.Len(t, store.List(account.ID, false), 1)
	assert.Len(t, store.List(account.ID, true), 2)
	assert.Empty(t, store.List("other-account", true))
}
