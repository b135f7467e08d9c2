package graphmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "migrate", "status"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestMigrateImportAlias(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"import", "dump.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, "migrate", cmd.Name())
}
