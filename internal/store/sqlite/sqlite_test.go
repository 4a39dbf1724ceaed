package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("/tmp/x.db").Validate())

	cfg := DefaultConfig("")
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("/tmp/x.db")
	cfg.MaxOpenConns = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("/tmp/x.db")
	cfg.MaxIdleConns = cfg.MaxOpenConns + 1
	assert.Error(t, cfg.Validate())
}

func TestOpenCreatesDirectory(t *testing.T) {
	s := openTestStore(t)
	assert.FileExists(t, s.Path())
}

func mergeScopes(t *testing.T, s *Store, now time.Time, scopes ...graph.ScopeProps) {
	t.Helper()
	nodes := make([]graph.Node, len(scopes))
	for i, sc := range scopes {
		props := sc.Properties()
		props[graph.PropID] = "scope:" + sc.Name
		nodes[i] = graph.Node{Labels: []string{graph.LabelScope}, ID: "scope:" + sc.Name, Properties: props}
	}
	_, err := s.MergeNodes(context.Background(), store.NodeChunk{
		Labels: []string{graph.LabelScope}, Key: graph.PropID, Nodes: nodes, ContentBearing: true, Now: now,
	})
	require.NoError(t, err)
}

func TestScopesInFileOrdersByLine(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	mergeScopes(t, s, now,
		graph.ScopeProps{Name: "later", Kind: "function", FilePath: "/r/a.ts", ProjectID: "p", StartLine: 20},
		graph.ScopeProps{Name: "first", Kind: "class", FilePath: "/r/a.ts", ProjectID: "p", StartLine: 3},
		graph.ScopeProps{Name: "elsewhere", Kind: "function", FilePath: "/r/b.ts", ProjectID: "p", StartLine: 1},
	)

	scopes, err := s.ScopesInFile(context.Background(), "/r/a.ts")
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, "first", scopes[0].Name)
	assert.Equal(t, "class", scopes[0].Kind)
	assert.Equal(t, 3, scopes[0].StartLine)
	assert.Equal(t, "later", scopes[1].Name)
}

func TestScopesInFileFlagsStaleDefinitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()
	file := graph.Node{
		Labels: []string{graph.LabelFile},
		ID:     "file:a",
		Properties: graph.Properties{
			graph.PropPath: "/r/a.ts", graph.PropProjectID: "p", graph.PropID: "file:a", graph.PropContentHash: "h2",
		},
	}
	_, err := s.MergeNodes(ctx, store.NodeChunk{Labels: file.Labels, Key: graph.PropPath, Nodes: []graph.Node{file}, Now: now})
	require.NoError(t, err)
	mergeScopes(t, s, now,
		graph.ScopeProps{Name: "renamed", FilePath: "/r/a.ts", ProjectID: "p", StartLine: 1},
		graph.ScopeProps{Name: "current", FilePath: "/r/a.ts", ProjectID: "p", StartLine: 2},
		graph.ScopeProps{Name: "legacy", FilePath: "/r/a.ts", ProjectID: "p", StartLine: 3},
	)
	_, err = s.MergeRelationships(ctx, store.RelationshipChunk{
		Type: graph.RelDefinedIn,
		Now:  now,
		Relationships: []graph.Relationship{
			{Type: graph.RelDefinedIn, FromID: "scope:renamed", ToID: "file:a", Properties: graph.Properties{graph.PropFileHash: "h1"}},
			{Type: graph.RelDefinedIn, FromID: "scope:current", ToID: "file:a", Properties: graph.Properties{graph.PropFileHash: "h2"}},
			{Type: graph.RelDefinedIn, FromID: "scope:legacy", ToID: "file:a", Properties: graph.Properties{}},
		},
	})
	require.NoError(t, err)

	scopes, err := s.ScopesInFile(ctx, "/r/a.ts")
	require.NoError(t, err)
	require.Len(t, scopes, 3)
	stale := map[string]bool{}
	for _, sc := range scopes {
		stale[sc.Name] = sc.Stale
	}
	assert.Equal(t, map[string]bool{"renamed": true, "current": false, "legacy": false}, stale)
}

func TestMergeNodesReportsOutcomes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	node := graph.Node{
		Labels:     []string{graph.LabelFile},
		ID:         "file:1",
		Properties: graph.Properties{graph.PropPath: "/r/a.ts", graph.PropProjectID: "p", graph.PropID: "file:1"},
	}
	chunk := store.NodeChunk{Labels: node.Labels, Key: graph.PropPath, Nodes: []graph.Node{node}, Now: time.Now()}

	out, err := s.MergeNodes(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, []store.RowOutcome{{ID: "file:1", Outcome: store.OutcomeCreated}}, out)

	out, err = s.MergeNodes(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeUnchanged, out[0].Outcome)

	node.Properties["language"] = "typescript"
	out, err = s.MergeNodes(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeUpdated, out[0].Outcome)

	f, err := s.FileByPath(ctx, "p", "/r/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "file:1", f.ID)

	_, err = s.FileByPath(ctx, "p", "/r/missing.ts")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiscriminatedRelationshipsCoexist(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()
	mergeScopes(t, s, now,
		graph.ScopeProps{Name: "a", FilePath: "/r/a.ts", ProjectID: "p"},
		graph.ScopeProps{Name: "b", FilePath: "/r/b.ts", ProjectID: "p"},
	)

	res, err := s.MergeRelationships(ctx, store.RelationshipChunk{
		Type:          graph.RelConsumes,
		Discriminator: "symbol",
		Now:           now,
		Relationships: []graph.Relationship{
			{Type: graph.RelConsumes, FromID: "scope:a", ToID: "scope:b", Properties: graph.Properties{"symbol": "x"}},
			{Type: graph.RelConsumes, FromID: "scope:a", ToID: "scope:b", Properties: graph.Properties{"symbol": "y"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	rels, err := s.Relationships(ctx, store.RelationshipFilter{Type: graph.RelConsumes, FromID: "scope:a"})
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	pending := []store.PendingRecord{{
		SourceID: "scope:a", ProjectID: "p", SourceFile: "/r/a.ts", TargetPath: "./b",
		Symbols: []string{"x", "y"}, RelationType: graph.RelConsumes, AbsolutePath: "/r/b", Line: 2, CreatedAt: created,
	}}
	require.NoError(t, s.PutPending(ctx, pending))
	require.NoError(t, s.PutPending(ctx, pending))

	got, err := s.Pending(ctx, "p")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending[0], got[0])

	mentions := []store.MentionRecord{{
		SourceID: "file:readme", ProjectID: "p", SourceFile: "/r/README.md", Text: "utils.py",
		RefType: "code", Line: 7, Context: "see utils.py", Confidence: 0.6, CreatedAt: created,
	}}
	require.NoError(t, s.PutMentions(ctx, mentions))
	gotMentions, err := s.Mentions(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, mentions, gotMentions)

	counts, err := s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Mentions)

	require.NoError(t, s.DeletePending(ctx, got))
	require.NoError(t, s.ClearSources(ctx, []string{"file:readme"}))

	counts, err = s.Counts(ctx, "p")
	require.NoError(t, err)
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.Mentions)
}

func TestDeleteForFilesClearsLedger(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	mergeScopes(t, s, time.Now(), graph.ScopeProps{Name: "a", FilePath: "/r/a.ts", ProjectID: "p"})
	require.NoError(t, s.PutPending(ctx, []store.PendingRecord{{
		SourceID: "scope:a", ProjectID: "p", SourceFile: "/r/a.ts", TargetPath: "./b",
		RelationType: graph.RelConsumes, AbsolutePath: "/r/b",
	}}))

	n, err := s.DeleteForFiles(ctx, "p", []string{"/r/a.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.Pending(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
