package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildIngestHookBlock(t *testing.T) {
	block := BuildIngestHookBlock("/repo/path")

	assert.True(t, strings.HasPrefix(block, HookStart))
	assert.True(t, strings.HasSuffix(block, HookEnd))
	assert.Contains(t, block, `repo_root="/repo/path"`)
	assert.Contains(t, block, "command -v graphloom")
	assert.Contains(t, block, `(cd "$repo_root" && graphloom ingest) || exit 1`)
}

func TestUpsertIngestHookCreatesScript(t *testing.T) {
	updated := UpsertIngestHook("", "/repo/path")

	assert.True(t, strings.HasPrefix(updated, "#!/bin/sh\n"))
	assert.Equal(t, 1, strings.Count(updated, HookStart))
	assert.True(t, strings.HasSuffix(updated, "\n"))
}

func TestUpsertIngestHookReplacesExistingBlock(t *testing.T) {
	existing := "#!/bin/sh\n\necho before\n" + HookStart + "\nold block\n" + HookEnd + "\n\necho after\n"
	updated := UpsertIngestHook(existing, "/repo/path")

	assert.NotContains(t, updated, "old block")
	assert.Equal(t, 1, strings.Count(updated, HookStart))
	assert.Equal(t, 1, strings.Count(updated, HookEnd))
	assert.Contains(t, updated, "echo before")
	assert.Contains(t, updated, "echo after")
}

func TestUpsertIngestHookAppendsToForeignScript(t *testing.T) {
	updated := UpsertIngestHook("echo lint", "/repo/path")

	assert.True(t, strings.HasPrefix(updated, "#!/bin/sh\necho lint\n"))
	assert.Contains(t, updated, HookStart)
}
