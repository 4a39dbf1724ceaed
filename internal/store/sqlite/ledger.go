package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skelly-dev/graphloom/internal/store"
)

// PutPending upserts pending references by (source, absolute path, relation).
func (s *Store) PutPending(ctx context.Context, records []store.PendingRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		symbols, err := json.Marshal(r.Symbols)
		if err != nil {
			return fmt.Errorf("encode symbols: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_references (source_id, absolute_path, relation_type, project_id, source_file, target_path, symbols, line, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, absolute_path, relation_type) DO UPDATE SET
				target_path = excluded.target_path,
				symbols = excluded.symbols,
				line = excluded.line
		`, r.SourceID, r.AbsolutePath, r.RelationType, r.ProjectID, r.SourceFile, r.TargetPath,
			string(symbols), r.Line, formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("put pending %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

// Pending returns a project's pending references in a stable order.
func (s *Store) Pending(ctx context.Context, projectID string) ([]store.PendingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, absolute_path, relation_type, project_id, source_file, target_path, symbols, line, created_at
		FROM pending_references WHERE project_id = ?
		ORDER BY source_file, source_id, absolute_path, relation_type
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	records := make([]store.PendingRecord, 0)
	for rows.Next() {
		var r store.PendingRecord
		var symbols, created string
		if err := rows.Scan(&r.SourceID, &r.AbsolutePath, &r.RelationType, &r.ProjectID, &r.SourceFile,
			&r.TargetPath, &symbols, &r.Line, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(symbols), &r.Symbols); err != nil {
			return nil, fmt.Errorf("decode symbols of %s: %w", r.Key(), err)
		}
		r.CreatedAt = parseTime(created)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeletePending removes the given pending references.
func (s *Store) DeletePending(ctx context.Context, records []store.PendingRecord) error {
	return s.deleteEach(ctx, len(records), func(i int) (string, []any) {
		r := records[i]
		return "DELETE FROM pending_references WHERE source_id = ? AND absolute_path = ? AND relation_type = ?",
			[]any{r.SourceID, r.AbsolutePath, r.RelationType}
	})
}

// PutMentions upserts unresolved mentions by (source, text).
func (s *Store) PutMentions(ctx context.Context, records []store.MentionRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_mentions (source_id, text, project_id, source_file, ref_type, line, context, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, text) DO UPDATE SET
				ref_type = excluded.ref_type,
				line = excluded.line,
				context = excluded.context,
				confidence = excluded.confidence
		`, r.SourceID, r.Text, r.ProjectID, r.SourceFile, r.RefType, r.Line, r.Context, r.Confidence,
			formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("put mention %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

// Mentions returns a project's unresolved mentions in a stable order.
func (s *Store) Mentions(ctx context.Context, projectID string) ([]store.MentionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, text, project_id, source_file, ref_type, line, context, confidence, created_at
		FROM pending_mentions WHERE project_id = ?
		ORDER BY source_file, source_id, text
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	records := make([]store.MentionRecord, 0)
	for rows.Next() {
		var r store.MentionRecord
		var created string
		if err := rows.Scan(&r.SourceID, &r.Text, &r.ProjectID, &r.SourceFile, &r.RefType, &r.Line,
			&r.Context, &r.Confidence, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteMentions removes the given mentions.
func (s *Store) DeleteMentions(ctx context.Context, records []store.MentionRecord) error {
	return s.deleteEach(ctx, len(records), func(i int) (string, []any) {
		return "DELETE FROM pending_mentions WHERE source_id = ? AND text = ?",
			[]any{records[i].SourceID, records[i].Text}
	})
}

// ClearSources drops every ledger record of the given sources.
func (s *Store) ClearSources(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	in := placeholders(len(sourceIDs))
	args := stringArgs(sourceIDs)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pending_references", "pending_mentions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE source_id IN ("+in+")", args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *Store) deleteEach(ctx context.Context, n int, stmt func(i int) (string, []any)) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		query, args := stmt(i)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete ledger record: %w", err)
		}
	}
	return tx.Commit()
}
