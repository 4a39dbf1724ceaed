package neo4j

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	args := m.Called(ctx, query, params)
	rows, _ := args.Get(0).([]map[string]any)
	return rows, args.Error(1)
}

func (m *mockRunner) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func queryContaining(fragments ...string) any {
	return mock.MatchedBy(func(q string) bool {
		for _, f := range fragments {
			if !strings.Contains(q, f) {
				return false
			}
		}
		return true
	})
}

func TestMergeNodesBuildsLabelledMerge(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	runner.On("Run", mock.Anything,
		queryContaining("MERGE (n:`File`:`DocumentFile` {id: row.key})", "SET n:Entity", "n.state = $parsed"),
		mock.MatchedBy(func(p map[string]any) bool {
			rows := p["rows"].([]map[string]any)
			return len(rows) == 1 && rows[0]["key"] == "doc:1" &&
				p["now"] == "2024-01-01T00:00:00Z" && p["markForReembed"] == true
		}),
	).Return([]map[string]any{{"id": "doc:1", "outcome": "updated"}}, nil).Once()

	out, err := s.MergeNodes(context.Background(), store.NodeChunk{
		Labels:         []string{graph.LabelFile, graph.LabelDocumentFile},
		Key:            graph.PropID,
		Nodes:          []graph.Node{{Labels: []string{graph.LabelFile, graph.LabelDocumentFile}, ID: "doc:1", Properties: graph.Properties{}}},
		ContentBearing: true,
		MarkForReembed: true,
		Now:            now,
	})
	require.NoError(t, err)
	assert.Equal(t, []store.RowOutcome{{ID: "doc:1", Outcome: store.OutcomeUpdated}}, out)
	runner.AssertExpectations(t)
}

func TestMergeNodesRejectsUnsafeLabels(t *testing.T) {
	s := New(&mockRunner{}, nil)
	_, err := s.MergeNodes(context.Background(), store.NodeChunk{Labels: []string{"File`) DETACH DELETE n //"}, Key: "id"})
	assert.Error(t, err)
}

func TestMergeRelationshipsCountsMissingEndpoints(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)

	runner.On("Run", mock.Anything,
		queryContaining(
			"MATCH (a:Entity {id: row.from})", "MATCH (b:Entity {id: row.to})",
			"MERGE (a)-[r:`USES_LIBRARY` {`symbol`: row.disc}]->(b)", "x.state = $linked"),
		mock.Anything,
	).Return([]map[string]any{{"outcome": "created"}, {"outcome": "unchanged"}}, nil).Once()

	res, err := s.MergeRelationships(context.Background(), store.RelationshipChunk{
		Type:          graph.RelUsesLibrary,
		Discriminator: "symbol",
		Relationships: []graph.Relationship{
			{Type: graph.RelUsesLibrary, FromID: "f", ToID: "lib", Properties: graph.Properties{"symbol": "a"}},
			{Type: graph.RelUsesLibrary, FromID: "f", ToID: "lib", Properties: graph.Properties{"symbol": "b"}},
			{Type: graph.RelUsesLibrary, FromID: "f", ToID: "gone", Properties: graph.Properties{"symbol": "c"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, store.RelationshipResult{Created: 1, Unchanged: 1, Missing: 1}, res)
	runner.AssertExpectations(t)
}

func TestReaderMapsRecords(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)
	ctx := context.Background()

	runner.On("Run", mock.Anything, queryContaining("MATCH (n:Scope {filePath: $path})"), mock.Anything).
		Return([]map[string]any{
			{"id": "s1", "name": "helper", "kind": "function", "filePath": "/r/a.ts", "startLine": int64(4)},
		}, nil).Once()
	runner.On("Run", mock.Anything, queryContaining("MATCH (n:Entity {id: $id})"), map[string]any{"id": "missing"}).
		Return([]map[string]any{}, nil).Once()
	runner.On("Run", mock.Anything, queryContaining("MATCH (n:Entity {id: $id})", "l <> 'Entity'"), map[string]any{"id": "s1"}).
		Return([]map[string]any{{"labels": []any{"Scope"}, "props": map[string]any{"name": "helper"}}}, nil).Once()

	scopes, err := s.ScopesInFile(ctx, "/r/a.ts")
	require.NoError(t, err)
	assert.Equal(t, []store.ScopeEntry{{ID: "s1", Name: "helper", Kind: "function", FilePath: "/r/a.ts", StartLine: 4}}, scopes)

	_, err = s.NodeByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	node, err := s.NodeByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Scope"}, node.Labels)
	assert.Equal(t, "helper", node.Properties.String(graph.PropName))
	runner.AssertExpectations(t)
}

func TestEnsureSchemaConstrainsEveryNodeID(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)

	var statements []string
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { statements = append(statements, args.String(1)) }).
		Return(nil, nil)

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Contains(t, statements, "CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE")
	for _, stmt := range statements {
		assert.NotContains(t, stmt, "FOR (n:Scope) REQUIRE n.id", "scope ids are covered by the entity constraint")
	}
}

func TestPendingRoundTripThroughRecords(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)
	ctx := context.Background()

	runner.On("Run", mock.Anything, queryContaining("MATCH (p:PendingReference {projectId: $projectId})"), mock.Anything).
		Return([]map[string]any{{"p": map[string]any{
			"sourceId": "s1", "projectId": "p", "sourceFile": "/r/a.ts", "targetPath": "./b",
			"symbols": []any{"x"}, "relationType": "CONSUMES", "absolutePath": "/r/b",
			"line": int64(3), "createdAt": "2024-01-01T00:00:00Z",
		}}}, nil).Once()
	runner.On("Run", mock.Anything, queryContaining("MATCH (p:`PendingReference`) WHERE p.key IN $keys"),
		map[string]any{"keys": []string{"s1|/r/b|CONSUMES"}}).Return(nil, nil).Once()

	records, err := s.Pending(ctx, "p")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"x"}, records[0].Symbols)
	assert.Equal(t, 3, records[0].Line)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), records[0].CreatedAt)

	require.NoError(t, s.DeletePending(ctx, records))
	runner.AssertExpectations(t)
}

func TestRunnerErrorsAreWrapped(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, nil)
	boom := errors.New("service unavailable")
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	_, err := s.Counts(context.Background(), "p")
	assert.ErrorIs(t, err, boom)

	_, err = s.DeleteForFiles(context.Background(), "p", []string{"/r/a.ts"})
	assert.ErrorIs(t, err, boom)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{URI: "neo4j://localhost:7687"}.Validate())
}
