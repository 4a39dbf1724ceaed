package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/cli"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := cli.NewRootCommand(version)

	for _, name := range []string{"init", "ingest", "sweep", "reembed", "delete", "status", "install-hook", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
