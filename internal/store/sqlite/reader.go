package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

var _ store.Store = (*Store)(nil)

// NodeByID returns the node with id, or store.ErrNotFound.
func (s *Store) NodeByID(ctx context.Context, id string) (graph.Node, error) {
	var labels, raw string
	err := s.db.QueryRowContext(ctx, "SELECT labels, properties FROM nodes WHERE id = ?", id).Scan(&labels, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Node{}, store.ErrNotFound
	}
	if err != nil {
		return graph.Node{}, fmt.Errorf("load node %s: %w", id, err)
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return graph.Node{}, fmt.Errorf("decode node %s: %w", id, err)
	}
	return graph.Node{Labels: strings.Split(labels, ":"), ID: id, Properties: props}, nil
}

// FileByPath returns the File node at path within a project.
func (s *Store) FileByPath(ctx context.Context, projectID, path string) (store.FileEntry, error) {
	files, err := s.queryFiles(ctx, "AND path = ?", projectID, path)
	if err != nil {
		return store.FileEntry{}, err
	}
	if len(files) == 0 {
		return store.FileEntry{}, store.ErrNotFound
	}
	return files[0], nil
}

// Files returns every File node of a project, sorted by path.
func (s *Store) Files(ctx context.Context, projectID string) ([]store.FileEntry, error) {
	return s.queryFiles(ctx, "", projectID)
}

func (s *Store) queryFiles(ctx context.Context, filter string, args ...any) ([]store.FileEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, labels, properties FROM nodes WHERE project_id = ? AND primary_label = ? "+filter+" ORDER BY path",
		append([]any{args[0], graph.LabelFile}, args[1:]...)...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := make([]store.FileEntry, 0)
	for rows.Next() {
		var id, labels, raw string
		if err := rows.Scan(&id, &labels, &raw); err != nil {
			return nil, err
		}
		props, err := decodeProperties(raw)
		if err != nil {
			return nil, fmt.Errorf("decode file %s: %w", id, err)
		}
		files = append(files, store.FileEntry{
			ID:           id,
			Path:         props.String(graph.PropPath),
			RelativePath: props.String(graph.PropRelativePath),
			Name:         props.String(graph.PropName),
			Labels:       strings.Split(labels, ":"),
		})
	}
	return files, rows.Err()
}

// ScopesInFile returns the Scope nodes defined in a file, by start line.
func (s *Store) ScopesInFile(ctx context.Context, path string) ([]store.ScopeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT n.id, n.properties, COALESCE(d.properties, '{}'), COALESCE(f.properties, '{}')
FROM nodes n
LEFT JOIN relationships d ON d.from_id = n.id AND d.rel_type = ?
LEFT JOIN nodes f ON f.id = d.to_id
WHERE n.primary_label = ? AND n.file_path = ?`, graph.RelDefinedIn, graph.LabelScope, path)
	if err != nil {
		return nil, fmt.Errorf("query scopes in %s: %w", path, err)
	}
	defer rows.Close()

	scopes := make([]store.ScopeEntry, 0)
	for rows.Next() {
		var id, raw, rawEdge, rawFile string
		if err := rows.Scan(&id, &raw, &rawEdge, &rawFile); err != nil {
			return nil, err
		}
		props, err := decodeProperties(raw)
		if err != nil {
			return nil, fmt.Errorf("decode scope %s: %w", id, err)
		}
		edge, err := decodeProperties(rawEdge)
		if err != nil {
			return nil, fmt.Errorf("decode definition of %s: %w", id, err)
		}
		file, err := decodeProperties(rawFile)
		if err != nil {
			return nil, fmt.Errorf("decode file of %s: %w", id, err)
		}
		scopes = append(scopes, store.ScopeEntry{
			ID:        id,
			Name:      props.String(graph.PropName),
			Kind:      props.String("kind"),
			FilePath:  props.String(graph.PropFilePath),
			StartLine: intValue(props["startLine"]),
			Stale:     store.StaleDefinition(edge.String(graph.PropFileHash), file.String(graph.PropContentHash)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(scopes, func(i, j int) bool {
		if scopes[i].StartLine != scopes[j].StartLine {
			return scopes[i].StartLine < scopes[j].StartLine
		}
		return scopes[i].ID < scopes[j].ID
	})
	return scopes, nil
}

// Relationships returns the relationships matching filter.
func (s *Store) Relationships(ctx context.Context, filter store.RelationshipFilter) ([]graph.Relationship, error) {
	query := "SELECT rel_type, from_id, to_id, properties FROM relationships WHERE 1 = 1"
	args := make([]any, 0, 3)
	if filter.Type != "" {
		query += " AND rel_type = ?"
		args = append(args, filter.Type)
	}
	if filter.FromID != "" {
		query += " AND from_id = ?"
		args = append(args, filter.FromID)
	}
	if filter.ToID != "" {
		query += " AND to_id = ?"
		args = append(args, filter.ToID)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY rel_key", args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]graph.Relationship, 0)
	for rows.Next() {
		var rel graph.Relationship
		var raw string
		if err := rows.Scan(&rel.Type, &rel.FromID, &rel.ToID, &raw); err != nil {
			return nil, err
		}
		if rel.Properties, err = decodeProperties(raw); err != nil {
			return nil, fmt.Errorf("decode relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// Counts summarises a project.
func (s *Store) Counts(ctx context.Context, projectID string) (store.Counts, error) {
	var c store.Counts
	queries := []struct {
		dst   *int
		query string
	}{
		{&c.Nodes, "SELECT COUNT(*) FROM nodes WHERE project_id = ?"},
		{&c.Relationships, "SELECT COUNT(*) FROM relationships WHERE from_id IN (SELECT id FROM nodes WHERE project_id = ?)"},
		{&c.Pending, "SELECT COUNT(*) FROM pending_references WHERE project_id = ?"},
		{&c.Mentions, "SELECT COUNT(*) FROM pending_mentions WHERE project_id = ?"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, projectID).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count: %w", err)
		}
	}
	return c, nil
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
