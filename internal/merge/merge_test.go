package merge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
	"github.com/skelly-dev/graphloom/internal/store/sqlite"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance() { c.t = c.t.Add(time.Minute) }

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(t *testing.T, w store.Writer, batchSize int) (*Engine, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(w, Config{BatchSize: batchSize, Now: c.now}), c
}

func sampleBatch(hash string) *graph.Batch {
	b := graph.NewBatch()
	b.AddNode(graph.Node{
		Labels:     []string{graph.LabelProject},
		ID:         "project:p1",
		Properties: graph.ProjectProps{ProjectID: "p1", Name: "demo", Root: "/repo"}.Properties(),
	})
	b.AddNode(graph.Node{
		Labels: []string{graph.LabelFile},
		ID:     "file:readme",
		Properties: graph.FileProps{
			Path: "/repo/README.md", RelativePath: "README.md", Name: "README.md",
			Extension: ".md", Format: "markdown", ProjectID: "p1", ContentHash: hash,
		}.Properties(),
	})
	b.AddNode(graph.Node{
		Labels: []string{graph.LabelMarkdownSection},
		ID:     "section:intro",
		Properties: graph.SectionProps{
			Title: "Intro", Level: 1, Ordinal: 0, FilePath: "/repo/README.md", ProjectID: "p1",
			StartLine: 1, EndLine: 4, Content: "hello " + hash, ContentHash: hash,
		}.Properties(),
	})
	b.AddRelationship(graph.Relationship{Type: graph.RelBelongsTo, FromID: "file:readme", ToID: "project:p1"})
	b.AddRelationship(graph.Relationship{Type: graph.RelHasSection, FromID: "file:readme", ToID: "section:intro"})
	return b
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, clk := newEngine(t, s, 0)

	first, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.NodesCreated)
	assert.Equal(t, 2, first.RelationshipsCreated)

	before, err := s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)

	clk.advance()
	second, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NodesCreated)
	assert.Equal(t, 0, second.NodesUpdated)
	assert.Equal(t, 3, second.NodesUnchanged)
	assert.Equal(t, 2, second.RelationshipsUnchanged)

	after, err := s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, before.Properties[graph.PropUpdatedAt], after.Properties[graph.PropUpdatedAt])
	assert.Equal(t, before.Properties[graph.PropCreatedAt], after.Properties[graph.PropCreatedAt])

	counts, err := s.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Nodes)
	assert.Equal(t, 2, counts.Relationships)
}

func TestMergePreservesPropertiesMissingFromPayload(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, clk := newEngine(t, s, 0)

	_, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)

	enrich := graph.NewBatch()
	enrich.AddNode(graph.Node{
		Labels:     []string{graph.LabelMarkdownSection},
		ID:         "section:intro",
		Properties: graph.Properties{"embedding": []float64{0.25, 0.5}, "summary": "greeting"},
	})
	_, err = engine.Merge(ctx, enrich, Options{})
	require.NoError(t, err)

	clk.advance()
	stats, err := engine.Merge(ctx, sampleBatch("h2"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodesUpdated)
	assert.Equal(t, 1, stats.NodesUnchanged)

	node, err := s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, []any{0.25, 0.5}, node.Properties["embedding"])
	assert.Equal(t, "greeting", node.Properties["summary"])
	assert.Equal(t, "h2", node.Properties[graph.PropContentHash])
	assert.Equal(t, "hello h2", node.Properties["content"])
}

func TestMergeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, clk := newEngine(t, s, 0)

	b := graph.NewBatch()
	b.AddNode(graph.Node{
		Labels:     []string{graph.LabelMarkdownSection},
		ID:         "section:lonely",
		Properties: graph.SectionProps{Title: "Lonely", FilePath: "/repo/a.md", ProjectID: "p1", ContentHash: "x"}.Properties(),
	})
	_, err := engine.Merge(ctx, b, Options{})
	require.NoError(t, err)
	node, err := s.NodeByID(ctx, "section:lonely")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateParsed), node.Properties[graph.PropState])

	_, err = engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)
	node, err = s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateLinked), node.Properties[graph.PropState])

	// Unchanged content never re-enters the embedding queue.
	clk.advance()
	_, err = engine.Merge(ctx, sampleBatch("h1"), Options{MarkForReembed: true})
	require.NoError(t, err)
	node, err = s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateLinked), node.Properties[graph.PropState])

	clk.advance()
	_, err = engine.Merge(ctx, sampleBatch("h2"), Options{MarkForReembed: true})
	require.NoError(t, err)
	node, err = s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateEmbeddingPending), node.Properties[graph.PropState])

	// Linking again does not move a node backwards.
	clk.advance()
	_, err = engine.Merge(ctx, sampleBatch("h2"), Options{})
	require.NoError(t, err)
	node, err = s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateEmbeddingPending), node.Properties[graph.PropState])

	// Files carry no lifecycle.
	file, err := s.NodeByID(ctx, "file:readme")
	require.NoError(t, err)
	assert.NotContains(t, file.Properties, graph.PropState)
}

func TestMergeStampsSchemaVersionOnContentNodes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, _ := newEngine(t, s, 0)

	_, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)

	section, err := s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Contains(t, section.Properties.String(graph.PropSchemaVersion), graph.LabelMarkdownSection+":")

	file, err := s.NodeByID(ctx, "file:readme")
	require.NoError(t, err)
	assert.NotContains(t, file.Properties, graph.PropSchemaVersion)
}

func TestMergeChunksAndCountsMissingEndpoints(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, _ := newEngine(t, s, 2)

	b := graph.NewBatch()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		b.AddNode(graph.Node{
			Labels:     []string{graph.LabelScope},
			ID:         "scope:" + id,
			Properties: graph.ScopeProps{Name: id, Kind: "function", FilePath: "/repo/x.ts", ProjectID: "p1"}.Properties(),
		})
	}
	b.AddRelationship(graph.Relationship{Type: graph.RelConsumes, FromID: "scope:a", ToID: "scope:b"})
	b.AddRelationship(graph.Relationship{Type: graph.RelConsumes, FromID: "scope:a", ToID: "scope:ghost"})

	stats, err := engine.Merge(ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.NodesCreated)
	assert.Equal(t, 1, stats.RelationshipsCreated)
	assert.Equal(t, 1, stats.RelationshipsMissing)
	assert.Equal(t, 4, stats.Batches)
}

type failingWriter struct {
	store.Writer
	calls  int
	failAt int
}

func (f *failingWriter) MergeNodes(ctx context.Context, chunk store.NodeChunk) ([]store.RowOutcome, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("connection reset")
	}
	out := make([]store.RowOutcome, len(chunk.Nodes))
	for i, n := range chunk.Nodes {
		out[i] = store.RowOutcome{ID: n.ID, Outcome: store.OutcomeCreated}
	}
	return out, nil
}

func TestMergeReportsFailingChunk(t *testing.T) {
	w := &failingWriter{failAt: 2}
	engine, _ := newEngine(t, w, 2)

	b := graph.NewBatch()
	for _, id := range []string{"a", "b", "c"} {
		b.AddNode(graph.Node{Labels: []string{graph.LabelScope}, ID: id, Properties: graph.Properties{}})
	}

	stats, err := engine.Merge(context.Background(), b, Options{})
	require.Error(t, err)
	assert.True(t, IsBatchError(err))

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "nodes", be.Kind)
	assert.Equal(t, graph.LabelScope, be.Group)
	assert.Equal(t, 2, be.Offset)
	assert.EqualError(t, errors.Unwrap(err), "connection reset")
	assert.Equal(t, 2, stats.NodesCreated)
}

func TestMergeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine, _ := newEngine(t, &failingWriter{}, 0)

	_, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeleteForFilesAndMarkForReembed(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	engine, _ := newEngine(t, s, 0)

	_, err := engine.Merge(ctx, sampleBatch("h1"), Options{})
	require.NoError(t, err)

	marked, err := engine.MarkForReembed(ctx, "p1", []string{"/repo/README.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	node, err := s.NodeByID(ctx, "section:intro")
	require.NoError(t, err)
	assert.Equal(t, string(graph.StateEmbeddingPending), node.Properties[graph.PropState])

	deleted, err := engine.DeleteForFiles(ctx, "p1", []string{"/repo/README.md"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = s.NodeByID(ctx, "section:intro")
	assert.ErrorIs(t, err, store.ErrNotFound)
	counts, err := s.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes)
	assert.Equal(t, 0, counts.Relationships)
}
