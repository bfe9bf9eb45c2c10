package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer

	opts, err := parseArgs([]string{"--org", "7", "--batch", "100"}, &stderr)
	require.NoError(t, err)
	require.NotNil(t, opts.orgID)
	assert.Equal(t, int64(7), *opts.orgID)
	assert.Equal(t, 100, opts.batch)
	assert.False(t, opts.all)

	opts, err = parseArgs([]string{"--all"}, &stderr)
	require.NoError(t, err)
	assert.Nil(t, opts.orgID)
	assert.True(t, opts.all)
	assert.Equal(t, "internal/config/config.yaml", opts.config)
}

func TestParseArgs_Usage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"--org", "7", "--all"},
		{"--org", "x"},
		{"--batch", "10"},
		{"--all", "extra"},
	} {
		var stderr bytes.Buffer
		_, err := parseArgs(args, &stderr)
		assert.ErrorIs(t, err, errUsage, "%v", args)
		assert.Contains(t, stderr.String(), "usage: rebuild", "%v", args)
	}
}
