package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

// MergeNodes creates or overlays every node of the chunk in one transaction.
func (s *Store) MergeNodes(ctx context.Context, chunk store.NodeChunk) ([]store.RowOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	labels := strings.Join(chunk.Labels, ":")
	now := formatTime(chunk.Now)
	outcomes := make([]store.RowOutcome, 0, len(chunk.Nodes))

	for _, node := range chunk.Nodes {
		key := labels + "|" + node.KeyValue()
		existing, found, err := loadProperties(ctx, tx, "SELECT properties FROM nodes WHERE merge_key = ?", key)
		if err != nil {
			return nil, fmt.Errorf("load node %s: %w", node.ID, err)
		}

		outcome := store.OutcomeUnchanged
		dirty := false
		var props graph.Properties
		if !found {
			outcome = store.OutcomeCreated
			props = node.Properties.Clone()
			props[graph.PropID] = node.ID
			props[graph.PropCreatedAt] = now
			props[graph.PropUpdatedAt] = now
			if chunk.ContentBearing {
				props[graph.PropState] = string(graph.StateParsed)
				props[graph.PropStateChangedAt] = now
			}
			dirty = true
		} else {
			props = existing
			oldHash := existing.String(graph.PropContentHash)
			if overlay(props, node.Properties) {
				outcome = store.OutcomeUpdated
				props[graph.PropUpdatedAt] = now
				dirty = true
			}
			newHash := props.String(graph.PropContentHash)
			if chunk.MarkForReembed && chunk.ContentBearing && newHash != "" && newHash != oldHash {
				props[graph.PropState] = string(graph.StateEmbeddingPending)
				props[graph.PropStateChangedAt] = now
				dirty = true
			}
		}

		if dirty {
			if err := upsertNode(ctx, tx, node, key, labels, props); err != nil {
				return nil, err
			}
		}
		outcomes = append(outcomes, store.RowOutcome{ID: props.String(graph.PropID), Outcome: outcome})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit nodes %s: %w", labels, err)
	}
	return outcomes, nil
}

func upsertNode(ctx context.Context, tx *sql.Tx, node graph.Node, key, labels string, props graph.Properties) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", node.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, merge_key, labels, primary_label, project_id, path, file_path, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(merge_key) DO UPDATE SET
			project_id = excluded.project_id,
			path = excluded.path,
			file_path = excluded.file_path,
			properties = excluded.properties
	`, props.String(graph.PropID), key, labels, node.PrimaryLabel(), props.String(graph.PropProjectID),
		nullString(props.String(graph.PropPath)), nullString(props.String(graph.PropFilePath)), string(data))
	if err != nil {
		return fmt.Errorf("merge node %s (%s): %w", node.ID, labels, err)
	}
	return nil
}

// MergeRelationships creates or overlays relationships whose endpoints both
// exist, then advances parsed endpoints to linked.
func (s *Store) MergeRelationships(ctx context.Context, chunk store.RelationshipChunk) (store.RelationshipResult, error) {
	var result store.RelationshipResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(chunk.Now)
	for _, rel := range chunk.Relationships {
		rel.Discriminator = chunk.Discriminator
		fromOK, err := nodeExists(ctx, tx, rel.FromID)
		if err != nil {
			return result, err
		}
		toOK, err := nodeExists(ctx, tx, rel.ToID)
		if err != nil {
			return result, err
		}
		if !fromOK || !toOK {
			result.Missing++
			continue
		}

		key := rel.Identity()
		existing, found, err := loadProperties(ctx, tx, "SELECT properties FROM relationships WHERE rel_key = ?", key)
		if err != nil {
			return result, fmt.Errorf("load relationship %s: %w", key, err)
		}
		var props graph.Properties
		switch {
		case !found:
			result.Created++
			props = rel.Properties.Clone()
			props[graph.PropCreatedAt] = now
			props[graph.PropUpdatedAt] = now
		case overlay(existing, rel.Properties):
			result.Matched++
			props = existing
			props[graph.PropUpdatedAt] = now
		default:
			result.Unchanged++
		}

		if props != nil {
			data, err := json.Marshal(props)
			if err != nil {
				return result, fmt.Errorf("encode relationship %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relationships (rel_key, rel_type, from_id, to_id, properties)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(rel_key) DO UPDATE SET properties = excluded.properties
			`, key, rel.Type, rel.FromID, rel.ToID, string(data)); err != nil {
				return result, fmt.Errorf("merge relationship %s: %w", key, err)
			}
		}

		for _, id := range []string{rel.FromID, rel.ToID} {
			if err := linkNode(ctx, tx, id, now); err != nil {
				return result, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit relationships %s: %w", chunk.Type, err)
	}
	return result, nil
}

// linkNode moves a content-bearing node from parsed to linked.
func linkNode(ctx context.Context, tx *sql.Tx, id, now string) error {
	var labels, raw string
	err := tx.QueryRowContext(ctx, "SELECT labels, properties FROM nodes WHERE id = ?", id).Scan(&labels, &raw)
	if err != nil {
		return fmt.Errorf("load node %s: %w", id, err)
	}
	if !graph.IsContentBearing(strings.Split(labels, ":")) {
		return nil
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return fmt.Errorf("decode node %s: %w", id, err)
	}
	if graph.LifecycleState(props.String(graph.PropState)) != graph.StateParsed {
		return nil
	}
	props[graph.PropState] = string(graph.StateLinked)
	props[graph.PropStateChangedAt] = now
	return updateProperties(ctx, tx, id, props)
}

// DeleteForFiles detach-deletes every node owned by the given files, along
// with ledger records they sourced.
func (s *Store) DeleteForFiles(ctx context.Context, projectID string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	in := placeholders(len(paths))
	args := append([]any{projectID}, stringArgs(paths)...)
	owned := "SELECT id FROM nodes WHERE project_id = ? AND file_path IN (" + in + ")"

	if _, err := tx.ExecContext(ctx, "DELETE FROM relationships WHERE from_id IN ("+owned+")", args...); err != nil {
		return 0, fmt.Errorf("delete outgoing relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM relationships WHERE to_id IN ("+owned+")", args...); err != nil {
		return 0, fmt.Errorf("delete incoming relationships: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE project_id = ? AND file_path IN ("+in+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete nodes: %w", err)
	}
	deleted, _ := res.RowsAffected()

	for _, table := range []string{"pending_references", "pending_mentions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE project_id = ? AND source_file IN ("+in+")", args...); err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return int(deleted), nil
}

// MarkForReembed flips content-bearing nodes of the given files to
// embedding-pending.
func (s *Store) MarkForReembed(ctx context.Context, projectID string, paths []string, now time.Time) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	args := append([]any{projectID}, stringArgs(paths)...)
	rows, err := tx.QueryContext(ctx,
		"SELECT id, labels, properties FROM nodes WHERE project_id = ? AND file_path IN ("+placeholders(len(paths))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("query nodes: %w", err)
	}
	type row struct {
		id    string
		props graph.Properties
	}
	var marked []row
	for rows.Next() {
		var id, labels, raw string
		if err := rows.Scan(&id, &labels, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		if !graph.IsContentBearing(strings.Split(labels, ":")) {
			continue
		}
		props, err := decodeProperties(raw)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode node %s: %w", id, err)
		}
		marked = append(marked, row{id: id, props: props})
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	stamp := formatTime(now)
	for _, r := range marked {
		r.props[graph.PropState] = string(graph.StateEmbeddingPending)
		r.props[graph.PropStateChangedAt] = stamp
		if err := updateProperties(ctx, tx, r.id, r.props); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reembed: %w", err)
	}
	return len(marked), nil
}

// overlay copies src onto dst and reports whether any value changed.
func overlay(dst, src graph.Properties) bool {
	changed := false
	for k, v := range src {
		if old, ok := dst[k]; ok && sameValue(old, v) {
			continue
		}
		dst[k] = v
		changed = true
	}
	return changed
}

// sameValue compares values by their JSON encoding, so an int payload
// equals the float64 it decodes back as.
func sameValue(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadProperties(ctx context.Context, q querier, query string, args ...any) (graph.Properties, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return nil, false, err
	}
	return props, true, nil
}

func nodeExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check node %s: %w", id, err)
	}
	return true, nil
}

func updateProperties(ctx context.Context, tx *sql.Tx, id string, props graph.Properties) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE nodes SET properties = ? WHERE id = ?", string(data), id); err != nil {
		return fmt.Errorf("update node %s: %w", id, err)
	}
	return nil
}

func decodeProperties(raw string) (graph.Properties, error) {
	props := graph.Properties{}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, err
	}
	return props, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
