//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedTool struct{ name string }

func (t *namedTool) Declaration() *Declaration {
	return &Declaration{Name: t.name, Description: "test tool"}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&namedTool{name: "search"}, ""))
	require.NoError(t, reg.Register(&namedTool{name: "drop_tables"}, "tool:admin"))

	assert.NotNil(t, reg.Get("search"))
	assert.Nil(t, reg.Get("missing"))
	assert.ElementsMatch(t, []string{"search", "drop_tables"}, reg.Names())

	assert.Empty(t, reg.RequiredPermission("search"))
	assert.Equal(t, "tool:admin", reg.RequiredPermission("drop_tables"))
	assert.Empty(t, reg.RequiredPermission("missing"))
}

func TestRegisterRejectsBadTools(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(nil, ""))
	assert.Error(t, reg.Register(&namedTool{name: ""}, ""))

	require.NoError(t, reg.Register(&namedTool{name: "search"}, ""))
	assert.Error(t, reg.Register(&namedTool{name: "search"}, ""), "duplicate names are rejected")
}
