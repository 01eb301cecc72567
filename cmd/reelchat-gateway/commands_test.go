// ABOUTME: Tests for gateway command argument parsing
// ABOUTME: Covers flag forms, repeated flags and log level names

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"--user", "alice", "--role=admin", "--role", "owner"}, "user", "role")
	require.NoError(t, err)
	assert.Equal(t, "alice", first(flags, "user"))
	assert.Equal(t, []string{"admin", "owner"}, flags["role"])
	assert.Empty(t, first(flags, "ttl"))
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope", "x"}},
		{"missing value", []string{"--user"}},
		{"positional", []string{"alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, "user")
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
}
