package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/config"
	"github.com/skelly-dev/graphloom/internal/ignore"
	"github.com/skelly-dev/graphloom/internal/ingest"
)

const (
	aTS = "import { helper } from './b'\n\nexport function run() {\n  return helper()\n}\n"
	bTS = "export function helper() {\n  return 1\n}\n"
)

// execute runs the root command and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	mustWriteFile(t, filepath.Join(root, "src", "a.ts"), aTS)
	mustWriteFile(t, filepath.Join(root, "src", "b.ts"), bTS)
	return root
}

func TestInitIngestStatusFlow(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, config.FileName)
	assertExists(t, filepath.Join(root, config.FileName))
	assertExists(t, filepath.Join(root, ignore.IgnoreFile))

	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), cfg.Project)

	out, err = execute(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Already initialized")

	out, err = execute(t, "ingest", root, "--json")
	require.NoError(t, err)
	var res ingest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, filepath.Base(root), res.Project)
	assert.ElementsMatch(t, []string{ignore.IgnoreFile, config.FileName, "src/a.ts", "src/b.ts"}, res.ChangedFiles)
	assert.Greater(t, res.Merge.NodesCreated, 0)
	assertExists(t, filepath.Join(root, config.DataDir, "graph.db"))
	assertExists(t, filepath.Join(root, config.DataDir, "state.json"))

	out, err = execute(t, "status", root, "--json")
	require.NoError(t, err)
	var status ingest.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Empty(t, status.ChangedFiles)
	assert.Empty(t, status.DeletedFiles)
	assert.Equal(t, 4, status.Tracked)
	assert.Greater(t, status.Relationships, 0)

	mustWriteFile(t, filepath.Join(root, "src", "b.ts"), bTS+"\nexport const two = 2\n")
	out, err = execute(t, "status", root)
	require.NoError(t, err)
	assert.Contains(t, out, "changed files (1): src/b.ts")
	assert.Contains(t, out, "graphloom ingest")

	out, err = execute(t, "ingest", root)
	require.NoError(t, err)
	assert.Contains(t, out, "ingest complete")
	assert.Contains(t, out, "changed=1")
}

func TestIngestWithoutConfigUsesDirectoryName(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, "ingest", root, "--json")
	require.NoError(t, err)
	var res ingest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, filepath.Base(root), res.Project)
	assert.Equal(t, 2, res.Changed)
}

func TestSweepCommand(t *testing.T) {
	root := newProject(t)
	_, err := execute(t, "ingest", root)
	require.NoError(t, err)

	out, err := execute(t, "sweep", root, "--json")
	require.NoError(t, err)
	var report ingest.SweepReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, filepath.Base(root), report.Project)

	out, err = execute(t, "sweep", root, "--mentions-only")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: resolved=0 remaining=0 dropped=0")

	_, err = execute(t, "sweep", root, "--min-similarity", "1.5")
	assert.ErrorContains(t, err, "--min-similarity")
}

func TestDeleteAndReembedResolveAgainstWorkingDirectory(t *testing.T) {
	root := newProject(t)
	_, err := execute(t, "ingest", root)
	require.NoError(t, err)

	withWorkingDir(t, root, func() {
		out, err := execute(t, "reembed", "src/a.ts")
		require.NoError(t, err)
		assert.Contains(t, out, "Marked")

		out, err = execute(t, "delete", "src/b.ts")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted")

		_, err = execute(t, "delete", filepath.Join(filepath.Dir(root), "elsewhere.ts"))
		assert.Error(t, err)
	})

	out, err := execute(t, "status", root, "--json")
	require.NoError(t, err)
	var status ingest.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	// src/a.ts imported the deleted file and is queued for a rebuild.
	assert.Equal(t, 0, status.Tracked)
	assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, status.ChangedFiles)
	assert.Equal(t, 1, status.Pending)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	root := newProject(t)

	_, err := execute(t, "status", root, "--config", filepath.Join(root, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(root, "custom.yaml")
	mustWriteFile(t, path, "project: custom\nstore:\n  path: "+filepath.Join(root, config.DataDir, "custom.db")+"\n")
	out, err := execute(t, "ingest", root, "--config", path, "--json")
	require.NoError(t, err)
	var res ingest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "custom", res.Project)
	assertExists(t, filepath.Join(root, config.DataDir, "custom.db"))
}

func TestInvalidConfigIsRejected(t *testing.T) {
	root := newProject(t)
	mustWriteFile(t, filepath.Join(root, config.FileName), "store:\n  backend: cassandra\n")

	_, err := execute(t, "ingest", root)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "graphloom test\n", out)
}

func TestSummarizePaths(t *testing.T) {
	assert.Equal(t, "a, b", SummarizePaths([]string{"a", "b"}, 2))
	assert.Equal(t, "a, b ... (+1 more)", SummarizePaths([]string{"a", "b", "c"}, 2))
}

func withWorkingDir(t *testing.T, dir string, fn func()) {
	t.Helper()

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() {
		_ = os.Chdir(originalWD)
	}()

	fn()
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected %s to exist", path)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
