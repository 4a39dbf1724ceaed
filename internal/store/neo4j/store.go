package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

var _ store.Store = (*Store)(nil)

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// entityLabel is carried by every graph node so id lookups hit one
// uniqueness constraint whatever the node's own labels are. It is never
// reported back as a node label.
const entityLabel = "Entity"

// labelsReturn strips entityLabel from labels(n).
const labelsReturn = "[l IN labels(n) WHERE l <> '" + entityLabel + "']"

// Store is a store.Store backed by Neo4j.
type Store struct {
	runner Runner
	logger *slog.Logger
}

// New wraps a runner. Tests pass a mock; production code uses Open.
func New(runner Runner, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{runner: runner, logger: logger}
}

// Open connects with cfg and ensures the uniqueness constraints exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	runner, err := NewDriverRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(runner, cfg.Logger)
	if err := s.EnsureSchema(ctx); err != nil {
		runner.Close(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the constraints the MERGE keys rely on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:" + entityLabel + ") REQUIRE n.id IS UNIQUE",
		"CREATE INDEX entity_file_path IF NOT EXISTS FOR (n:" + entityLabel + ") ON (n.filePath)",
		"CREATE CONSTRAINT project_id IF NOT EXISTS FOR (n:Project) REQUIRE n.projectId IS UNIQUE",
		"CREATE CONSTRAINT file_path IF NOT EXISTS FOR (n:File) REQUIRE n.path IS UNIQUE",
		"CREATE CONSTRAINT directory_path IF NOT EXISTS FOR (n:Directory) REQUIRE n.path IS UNIQUE",
		"CREATE CONSTRAINT pending_key IF NOT EXISTS FOR (n:PendingReference) REQUIRE n.key IS UNIQUE",
		"CREATE CONSTRAINT mention_key IF NOT EXISTS FOR (n:PendingMention) REQUIRE n.key IS UNIQUE",
		"CREATE INDEX node_file_path IF NOT EXISTS FOR (n:Scope) ON (n.filePath)",
	}
	for _, stmt := range statements {
		if _, err := s.runner.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Debug("neo4j schema ensured", "statements", len(statements))
	return nil
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.runner.Close(context.Background())
}

func labelExpr(labels []string) (string, error) {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		if !identRe.MatchString(l) {
			return "", fmt.Errorf("invalid label %q", l)
		}
		quoted[i] = "`" + l + "`"
	}
	return ":" + strings.Join(quoted, ":"), nil
}

// MergeNodes merges one chunk and reads back a per-row outcome marker.
func (s *Store) MergeNodes(ctx context.Context, chunk store.NodeChunk) ([]store.RowOutcome, error) {
	labels, err := labelExpr(chunk.Labels)
	if err != nil {
		return nil, err
	}
	if !identRe.MatchString(chunk.Key) {
		return nil, fmt.Errorf("invalid merge key %q", chunk.Key)
	}

	rows := make([]map[string]any, len(chunk.Nodes))
	for i, n := range chunk.Nodes {
		props := map[string]any(n.Properties.Clone())
		props[graph.PropID] = n.ID
		rows[i] = map[string]any{"key": n.KeyValue(), "props": props}
	}

	onCreate := "n.createdAt = $now, n.updatedAt = $now"
	if chunk.ContentBearing {
		onCreate += ", n.state = $parsed, n.stateChangedAt = $now"
	}
	query := fmt.Sprintf(`
UNWIND $rows AS row
OPTIONAL MATCH (existing%[1]s {%[2]s: row.key})
WITH row, existing IS NULL AS isNew, existing.contentHash AS oldHash,
     existing IS NOT NULL AND coalesce(all(k IN keys(row.props) WHERE existing[k] = row.props[k]), false) AS same
MERGE (n%[1]s {%[2]s: row.key})
ON CREATE SET n += row.props, %[3]s
ON MATCH SET n += row.props
SET n:%[4]s
FOREACH (_ IN CASE WHEN NOT isNew AND NOT same THEN [1] ELSE [] END | SET n.updatedAt = $now)
FOREACH (_ IN CASE WHEN $markForReembed AND $contentBearing AND NOT isNew
                        AND row.props.contentHash IS NOT NULL AND row.props.contentHash <> coalesce(oldHash, '')
                   THEN [1] ELSE [] END |
         SET n.state = $pending, n.stateChangedAt = $now)
RETURN n.id AS id, CASE WHEN isNew THEN 'created' WHEN same THEN 'unchanged' ELSE 'updated' END AS outcome
`, labels, chunk.Key, onCreate, entityLabel)

	records, err := s.runner.Run(ctx, query, map[string]any{
		"rows":           rows,
		"now":            formatTime(chunk.Now),
		"parsed":         string(graph.StateParsed),
		"pending":        string(graph.StateEmbeddingPending),
		"markForReembed": chunk.MarkForReembed,
		"contentBearing": chunk.ContentBearing,
	})
	if err != nil {
		return nil, fmt.Errorf("merge nodes %s: %w", strings.Join(chunk.Labels, ":"), err)
	}

	outcomes := make([]store.RowOutcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, store.RowOutcome{
			ID:      stringValue(rec["id"]),
			Outcome: store.Outcome(stringValue(rec["outcome"])),
		})
	}
	return outcomes, nil
}

// MergeRelationships merges one chunk of a single type. Rows whose
// endpoints are missing drop out of the MATCH and are counted as missing.
func (s *Store) MergeRelationships(ctx context.Context, chunk store.RelationshipChunk) (store.RelationshipResult, error) {
	var result store.RelationshipResult
	if !identRe.MatchString(chunk.Type) {
		return result, fmt.Errorf("invalid relationship type %q", chunk.Type)
	}
	pattern := "[r:`" + chunk.Type + "`]"
	existingPattern := "[existing:`" + chunk.Type + "`]"
	if chunk.Discriminator != "" {
		if !identRe.MatchString(chunk.Discriminator) {
			return result, fmt.Errorf("invalid discriminator %q", chunk.Discriminator)
		}
		pattern = "[r:`" + chunk.Type + "` {`" + chunk.Discriminator + "`: row.disc}]"
		existingPattern = "[existing:`" + chunk.Type + "` {`" + chunk.Discriminator + "`: row.disc}]"
	}

	rows := make([]map[string]any, len(chunk.Relationships))
	for i, rel := range chunk.Relationships {
		rel.Discriminator = chunk.Discriminator
		rows[i] = map[string]any{
			"from":  rel.FromID,
			"to":    rel.ToID,
			"disc":  rel.DiscriminatorValue(),
			"props": map[string]any(rel.Properties.Clone()),
		}
	}

	query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:%[3]s {id: row.from})
MATCH (b:%[3]s {id: row.to})
OPTIONAL MATCH (a)-%[2]s->(b)
WITH a, b, row, existing IS NULL AS isNew,
     existing IS NOT NULL AND coalesce(all(k IN keys(row.props) WHERE existing[k] = row.props[k]), false) AS same
MERGE (a)-%[1]s->(b)
ON CREATE SET r += row.props, r.createdAt = $now, r.updatedAt = $now
ON MATCH SET r += row.props
FOREACH (_ IN CASE WHEN NOT isNew AND NOT same THEN [1] ELSE [] END | SET r.updatedAt = $now)
FOREACH (x IN [n IN [a, b] WHERE n.state = $parsed] | SET x.state = $linked, x.stateChangedAt = $now)
RETURN CASE WHEN isNew THEN 'created' WHEN same THEN 'unchanged' ELSE 'updated' END AS outcome
`, pattern, existingPattern, entityLabel)

	records, err := s.runner.Run(ctx, query, map[string]any{
		"rows":   rows,
		"now":    formatTime(chunk.Now),
		"parsed": string(graph.StateParsed),
		"linked": string(graph.StateLinked),
	})
	if err != nil {
		return result, fmt.Errorf("merge relationships %s: %w", chunk.Type, err)
	}

	for _, rec := range records {
		switch store.Outcome(stringValue(rec["outcome"])) {
		case store.OutcomeCreated:
			result.Created++
		case store.OutcomeUpdated:
			result.Matched++
		default:
			result.Unchanged++
		}
	}
	result.Missing = len(rows) - len(records)
	if result.Missing < 0 {
		result.Missing = 0
	}
	return result, nil
}

// DeleteForFiles detach-deletes the nodes owned by the given files along
// with the ledger records they sourced.
func (s *Store) DeleteForFiles(ctx context.Context, projectID string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	params := map[string]any{"projectId": projectID, "paths": paths}
	records, err := s.runner.Run(ctx, `
MATCH (n:`+entityLabel+` {projectId: $projectId})
WHERE n.filePath IN $paths
DETACH DELETE n
RETURN count(*) AS deleted
`, params)
	if err != nil {
		return 0, fmt.Errorf("delete nodes: %w", err)
	}
	if _, err := s.runner.Run(ctx, `
MATCH (p {projectId: $projectId})
WHERE (p:PendingReference OR p:PendingMention) AND p.sourceFile IN $paths
DELETE p
`, params); err != nil {
		return 0, fmt.Errorf("delete ledger records: %w", err)
	}
	return firstInt(records, "deleted"), nil
}

// MarkForReembed flips content-bearing nodes of the given files to
// embedding-pending.
func (s *Store) MarkForReembed(ctx context.Context, projectID string, paths []string, now time.Time) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	records, err := s.runner.Run(ctx, `
MATCH (n:`+entityLabel+` {projectId: $projectId})
WHERE n.filePath IN $paths AND any(l IN labels(n) WHERE l IN $contentLabels)
SET n.state = $pending, n.stateChangedAt = $now
RETURN count(n) AS marked
`, map[string]any{
		"projectId":     projectID,
		"paths":         paths,
		"contentLabels": graph.ContentLabels(),
		"pending":       string(graph.StateEmbeddingPending),
		"now":           formatTime(now),
	})
	if err != nil {
		return 0, fmt.Errorf("mark for reembed: %w", err)
	}
	return firstInt(records, "marked"), nil
}

// NodeByID returns the node with id, or store.ErrNotFound.
func (s *Store) NodeByID(ctx context.Context, id string) (graph.Node, error) {
	records, err := s.runner.Run(ctx,
		"MATCH (n:"+entityLabel+" {id: $id}) RETURN "+labelsReturn+" AS labels, properties(n) AS props LIMIT 1",
		map[string]any{"id": id})
	if err != nil {
		return graph.Node{}, fmt.Errorf("load node %s: %w", id, err)
	}
	if len(records) == 0 {
		return graph.Node{}, store.ErrNotFound
	}
	props, _ := records[0]["props"].(map[string]any)
	return graph.Node{
		Labels:     stringList(records[0]["labels"]),
		ID:         id,
		Properties: graph.Properties(props),
	}, nil
}

const fileReturn = `RETURN n.id AS id, n.path AS path, n.relativePath AS relativePath, n.name AS name, ` + labelsReturn + ` AS labels`

// FileByPath returns the File node at path within a project.
func (s *Store) FileByPath(ctx context.Context, projectID, path string) (store.FileEntry, error) {
	records, err := s.runner.Run(ctx,
		"MATCH (n:File {projectId: $projectId, path: $path}) "+fileReturn+" LIMIT 1",
		map[string]any{"projectId": projectID, "path": path})
	if err != nil {
		return store.FileEntry{}, fmt.Errorf("load file %s: %w", path, err)
	}
	if len(records) == 0 {
		return store.FileEntry{}, store.ErrNotFound
	}
	return fileEntry(records[0]), nil
}

// Files returns every File node of a project, sorted by path.
func (s *Store) Files(ctx context.Context, projectID string) ([]store.FileEntry, error) {
	records, err := s.runner.Run(ctx,
		"MATCH (n:File {projectId: $projectId}) "+fileReturn+" ORDER BY n.path",
		map[string]any{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	files := make([]store.FileEntry, len(records))
	for i, rec := range records {
		files[i] = fileEntry(rec)
	}
	return files, nil
}

// ScopesInFile returns the Scope nodes defined in a file, by start line.
func (s *Store) ScopesInFile(ctx context.Context, path string) ([]store.ScopeEntry, error) {
	records, err := s.runner.Run(ctx, `
MATCH (n:Scope {filePath: $path})
OPTIONAL MATCH (n)-[d:DEFINED_IN]->(f)
RETURN n.id AS id, n.name AS name, n.kind AS kind, n.filePath AS filePath, n.startLine AS startLine,
       d.fileHash AS fileHash, f.contentHash AS currentHash
ORDER BY n.startLine, n.id
`, map[string]any{"path": path})
	if err != nil {
		return nil, fmt.Errorf("query scopes in %s: %w", path, err)
	}
	scopes := make([]store.ScopeEntry, len(records))
	for i, rec := range records {
		scopes[i] = store.ScopeEntry{
			ID:        stringValue(rec["id"]),
			Name:      stringValue(rec["name"]),
			Kind:      stringValue(rec["kind"]),
			FilePath:  stringValue(rec["filePath"]),
			StartLine: intValue(rec["startLine"]),
			Stale:     store.StaleDefinition(stringValue(rec["fileHash"]), stringValue(rec["currentHash"])),
		}
	}
	return scopes, nil
}

// Relationships returns the relationships matching filter.
func (s *Store) Relationships(ctx context.Context, filter store.RelationshipFilter) ([]graph.Relationship, error) {
	pattern := "[r]"
	if filter.Type != "" {
		if !identRe.MatchString(filter.Type) {
			return nil, fmt.Errorf("invalid relationship type %q", filter.Type)
		}
		pattern = "[r:`" + filter.Type + "`]"
	}
	records, err := s.runner.Run(ctx, `
MATCH (a:`+entityLabel+`)-`+pattern+`->(b:`+entityLabel+`)
WHERE ($from = '' OR a.id = $from) AND ($to = '' OR b.id = $to)
RETURN type(r) AS type, a.id AS from, b.id AS to, properties(r) AS props
ORDER BY type, from, to
`, map[string]any{"from": filter.FromID, "to": filter.ToID})
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	rels := make([]graph.Relationship, len(records))
	for i, rec := range records {
		props, _ := rec["props"].(map[string]any)
		rels[i] = graph.Relationship{
			Type:       stringValue(rec["type"]),
			FromID:     stringValue(rec["from"]),
			ToID:       stringValue(rec["to"]),
			Properties: graph.Properties(props),
		}
	}
	return rels, nil
}

// Counts summarises a project.
func (s *Store) Counts(ctx context.Context, projectID string) (store.Counts, error) {
	records, err := s.runner.Run(ctx, `
CALL { MATCH (n:`+entityLabel+` {projectId: $projectId}) RETURN count(n) AS nodes }
CALL { MATCH (n:`+entityLabel+` {projectId: $projectId})-[r]->() RETURN count(r) AS relationships }
CALL { MATCH (p:PendingReference {projectId: $projectId}) RETURN count(p) AS pending }
CALL { MATCH (m:PendingMention {projectId: $projectId}) RETURN count(m) AS mentions }
RETURN nodes, relationships, pending, mentions
`, map[string]any{"projectId": projectID})
	if err != nil {
		return store.Counts{}, fmt.Errorf("count: %w", err)
	}
	return store.Counts{
		Nodes:         firstInt(records, "nodes"),
		Relationships: firstInt(records, "relationships"),
		Pending:       firstInt(records, "pending"),
		Mentions:      firstInt(records, "mentions"),
	}, nil
}

func fileEntry(rec map[string]any) store.FileEntry {
	return store.FileEntry{
		ID:           stringValue(rec["id"]),
		Path:         stringValue(rec["path"]),
		RelativePath: stringValue(rec["relativePath"]),
		Name:         stringValue(rec["name"]),
		Labels:       stringList(rec["labels"]),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v any) time.Time {
	t, err := time.Parse(time.RFC3339Nano, stringValue(v))
	if err != nil {
		return time.Time{}
	}
	return t
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, stringValue(item))
		}
		return out
	default:
		return nil
	}
}

func firstInt(records []map[string]any, key string) int {
	if len(records) == 0 {
		return 0
	}
	return intValue(records[0][key])
}
