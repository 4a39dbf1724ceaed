package pending

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/identity"
	"github.com/skelly-dev/graphloom/internal/merge"
	"github.com/skelly-dev/graphloom/internal/parser"
	"github.com/skelly-dev/graphloom/internal/store"
	"github.com/skelly-dev/graphloom/internal/store/sqlite"
)

type env struct {
	root    string
	project build.Project
	store   *sqlite.Store
	ident   *identity.Assigner
	builder *build.Builder
	engine  *merge.Engine
	ledger  *Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ident := identity.New(0)
	engine := merge.New(s, merge.Config{Now: now})
	ledger, err := New(Config{Store: s, Merger: engine})
	require.NoError(t, err)
	return &env{
		root:    root,
		project: build.Project{ID: "p1", Name: "demo", Root: root},
		store:   s,
		ident:   ident,
		builder: build.New(build.Config{Identity: ident, Reader: s, Now: now}),
		engine:  engine,
		ledger:  ledger,
	}
}

// ingest writes files to disk, builds and merges them, and records what
// stayed unresolved.
func (e *env) ingest(t *testing.T, files ...build.FileInput) *build.Result {
	t.Helper()
	ctx := context.Background()
	for _, f := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(f.Path), 0o755))
		require.NoError(t, os.WriteFile(f.Path, f.Content, 0o644))
	}
	res, err := e.builder.Build(ctx, e.project, files)
	require.NoError(t, err)
	_, err = e.engine.Merge(ctx, res.Batch, merge.Options{})
	require.NoError(t, err)
	require.NoError(t, e.ledger.ClearSources(ctx, res.Sources))
	require.NoError(t, e.ledger.RecordUnresolved(ctx, res.Pending))
	require.NoError(t, e.ledger.RecordMentions(ctx, res.Mentions))
	return res
}

func (e *env) input(rel, content string, scopes ...parser.Scope) build.FileInput {
	in := build.FileInput{Path: filepath.Join(e.root, filepath.FromSlash(rel)), Content: []byte(content)}
	if len(scopes) > 0 {
		in.Record = &parser.FileRecord{Language: "typescript", Scopes: scopes}
	}
	return in
}

var (
	runScope = parser.Scope{Name: "run", Kind: parser.ScopeFunction, StartLine: 3, EndLine: 5,
		Signature: "function run()", Content: "export function run() {\n  return helper()\n}"}
	helperScope = parser.Scope{Name: "helper", Kind: parser.ScopeFunction, StartLine: 1, EndLine: 3,
		Signature: "function helper()", Content: "export function helper() {\n  return 1\n}"}
)

const (
	aTS = "import { helper } from './b'\n\nexport function run() {\n  return helper()\n}\n"
	bTS = "export function helper() {\n  return 1\n}\n"
)

func TestSweepPendingConverges(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a := e.input("a.ts", aTS, runScope)
	first := e.ingest(t, a)
	require.Len(t, first.Pending, 1)

	counts, err := e.store.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)

	res, err := e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Remaining: 1}, res)

	b := e.input("b.ts", bTS, helperScope)
	e.ingest(t, b)

	res, err = e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1, res.Merge.RelationshipsCreated)

	runID := e.ident.ScopeID(a.Path, runScope)
	rels, err := e.store.Relationships(ctx, store.RelationshipFilter{Type: graph.RelConsumes, FromID: runID})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, e.ident.ScopeID(b.Path, helperScope), rels[0].ToID)
	assert.Equal(t, "helper", rels[0].Properties["symbol"])

	counts, err = e.store.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Pending)

	res, err = e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	rels, err = e.store.Relationships(ctx, store.RelationshipFilter{Type: graph.RelConsumes, FromID: runID})
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestSweepPendingFollowsReexports(t *testing.T) {
	ctx := context.Background()
	const (
		importer = "import { helper } from './lib'\n\nexport function run() {\n  return helper()\n}\n"
		barrel   = "export { helper } from './impl'\n"
	)
	consumes := func(e *env, from string) []string {
		rels, err := e.store.Relationships(ctx, store.RelationshipFilter{Type: graph.RelConsumes, FromID: from})
		require.NoError(t, err)
		var out []string
		for _, rel := range rels {
			out = append(out, rel.ToID)
		}
		return out
	}

	together := newEnv(t)
	a := together.input("a.ts", importer, runScope)
	together.ingest(t, a,
		together.input("lib/index.ts", barrel),
		together.input("lib/impl.ts", bTS, helperScope))
	helperID := together.ident.ScopeID(filepath.Join(together.root, "lib", "impl.ts"), helperScope)
	require.Equal(t, []string{helperID}, consumes(together, together.ident.ScopeID(a.Path, runScope)))

	e := newEnv(t)
	a = e.input("a.ts", importer, runScope)
	first := e.ingest(t, a)
	require.Len(t, first.Pending, 1)

	impl := e.input("lib/impl.ts", bTS, helperScope)
	require.NoError(t, os.MkdirAll(filepath.Dir(impl.Path), 0o755))
	require.NoError(t, os.WriteFile(impl.Path, impl.Content, 0o644))
	e.ingest(t, e.input("lib/index.ts", barrel))
	res, err := e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Zero(t, res.Resolved, "defining file not ingested yet")
	assert.Empty(t, consumes(e, e.ident.ScopeID(a.Path, runScope)))

	e.ingest(t, impl)
	res, err = e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Positive(t, res.Resolved)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, []string{e.ident.ScopeID(impl.Path, helperScope)}, consumes(e, e.ident.ScopeID(a.Path, runScope)))
}

func TestSweepPendingLinksDocuments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	readme := e.input("README.md", "See [setup](docs/setup.md).\n")
	first := e.ingest(t, readme)
	require.Len(t, first.Pending, 1)
	assert.Equal(t, graph.RelReferencesDoc, first.Pending[0].RelationType)

	setup := e.input("docs/setup.md", "# Setup\n")
	e.ingest(t, setup)

	res, err := e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)

	rels, err := e.store.Relationships(ctx, store.RelationshipFilter{
		Type: graph.RelReferencesDoc, FromID: e.ident.FileID(readme.Path), ToID: e.ident.FileID(setup.Path),
	})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "docs/setup.md", rels[0].Properties["target"])
}

func TestSweepPendingDropsOrphans(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.ledger.RecordUnresolved(ctx, []store.PendingRecord{{
		SourceID: "scope:gone", ProjectID: "p1", SourceFile: filepath.Join(e.root, "gone.ts"),
		TargetPath: "./b", AbsolutePath: filepath.Join(e.root, "b"), RelationType: graph.RelConsumes,
	}}))

	res, err := e.ledger.SweepPending(ctx, e.project)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Dropped: 1}, res)

	records, err := e.store.Pending(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSweepMentionsResolvesLateFiles(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	notes := e.input("notes.md", "Check utils.py for helpers.\n")
	first := e.ingest(t, notes)
	require.Len(t, first.Mentions, 1)
	assert.Equal(t, "utils.py", first.Mentions[0].Text)

	res, err := e.ledger.SweepMentions(ctx, e.project, 0)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Remaining: 1}, res)

	utils := e.input("src/utils.py", "def helper():\n    pass\n")
	e.ingest(t, utils)

	res, err = e.ledger.SweepMentions(ctx, e.project, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 0, res.Remaining)

	rels, err := e.store.Relationships(ctx, store.RelationshipFilter{
		Type: graph.RelMentionsFile, FromID: e.ident.FileID(notes.Path), ToID: e.ident.FileID(utils.Path),
	})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	props := rels[0].Properties
	assert.Equal(t, true, props["resolved"])
	assert.Equal(t, "filename", props["matchType"])
	assert.Equal(t, build.ResolvedFromDeferred, props["resolvedFrom"])
	assert.InDelta(t, 0.95, props["matchScore"], 1e-9)
	assert.InDelta(t, 0.57, props["confidence"], 1e-9)

	mentions, err := e.store.Mentions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, mentions)
}

func TestSweepMentionsUsesScoringPolicy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ledger, err := New(Config{Store: e.store, Merger: e.engine, Scoring: func(extraction, match float64) float64 { return match }})
	require.NoError(t, err)
	e.ledger = ledger

	notes := e.input("notes.md", "Check utils.py for helpers.\n")
	e.ingest(t, notes)
	utils := e.input("src/utils.py", "x = 1\n")
	e.ingest(t, utils)

	_, err = e.ledger.SweepMentions(ctx, e.project, 0)
	require.NoError(t, err)
	rels, err := e.store.Relationships(ctx, store.RelationshipFilter{Type: graph.RelMentionsFile, ToID: e.ident.FileID(utils.Path)})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.95, rels[0].Properties["confidence"], 1e-9)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
