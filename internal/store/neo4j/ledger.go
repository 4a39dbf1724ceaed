package neo4j

import (
	"context"
	"fmt"

	"github.com/skelly-dev/graphloom/internal/store"
)

// PutPending upserts pending references as PendingReference nodes.
func (s *Store) PutPending(ctx context.Context, records []store.PendingRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		symbols := r.Symbols
		if symbols == nil {
			symbols = []string{}
		}
		rows[i] = map[string]any{
			"key":          r.Key(),
			"sourceId":     r.SourceID,
			"projectId":    r.ProjectID,
			"sourceFile":   r.SourceFile,
			"targetPath":   r.TargetPath,
			"symbols":      symbols,
			"relationType": r.RelationType,
			"absolutePath": r.AbsolutePath,
			"line":         r.Line,
			"createdAt":    formatTime(r.CreatedAt),
		}
	}
	_, err := s.runner.Run(ctx, `
UNWIND $rows AS row
MERGE (p:PendingReference {key: row.key})
ON CREATE SET p = row
ON MATCH SET p.targetPath = row.targetPath, p.symbols = row.symbols, p.line = row.line
`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("put pending: %w", err)
	}
	return nil
}

// Pending returns a project's pending references in a stable order.
func (s *Store) Pending(ctx context.Context, projectID string) ([]store.PendingRecord, error) {
	records, err := s.runner.Run(ctx, `
MATCH (p:PendingReference {projectId: $projectId})
RETURN properties(p) AS p
ORDER BY p.sourceFile, p.sourceId, p.absolutePath, p.relationType
`, map[string]any{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	out := make([]store.PendingRecord, len(records))
	for i, rec := range records {
		p, _ := rec["p"].(map[string]any)
		out[i] = store.PendingRecord{
			SourceID:     stringValue(p["sourceId"]),
			ProjectID:    stringValue(p["projectId"]),
			SourceFile:   stringValue(p["sourceFile"]),
			TargetPath:   stringValue(p["targetPath"]),
			Symbols:      stringList(p["symbols"]),
			RelationType: stringValue(p["relationType"]),
			AbsolutePath: stringValue(p["absolutePath"]),
			Line:         intValue(p["line"]),
			CreatedAt:    parseTime(p["createdAt"]),
		}
	}
	return out, nil
}

// DeletePending removes the given pending references.
func (s *Store) DeletePending(ctx context.Context, records []store.PendingRecord) error {
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key()
	}
	return s.deleteKeys(ctx, "PendingReference", keys)
}

// PutMentions upserts unresolved mentions as PendingMention nodes.
func (s *Store) PutMentions(ctx context.Context, records []store.MentionRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = map[string]any{
			"key":        r.Key(),
			"sourceId":   r.SourceID,
			"projectId":  r.ProjectID,
			"sourceFile": r.SourceFile,
			"text":       r.Text,
			"refType":    r.RefType,
			"line":       r.Line,
			"context":    r.Context,
			"confidence": r.Confidence,
			"createdAt":  formatTime(r.CreatedAt),
		}
	}
	_, err := s.runner.Run(ctx, `
UNWIND $rows AS row
MERGE (m:PendingMention {key: row.key})
ON CREATE SET m = row
ON MATCH SET m.refType = row.refType, m.line = row.line, m.context = row.context, m.confidence = row.confidence
`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("put mentions: %w", err)
	}
	return nil
}

// Mentions returns a project's unresolved mentions in a stable order.
func (s *Store) Mentions(ctx context.Context, projectID string) ([]store.MentionRecord, error) {
	records, err := s.runner.Run(ctx, `
MATCH (m:PendingMention {projectId: $projectId})
RETURN properties(m) AS m
ORDER BY m.sourceFile, m.sourceId, m.text
`, map[string]any{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	out := make([]store.MentionRecord, len(records))
	for i, rec := range records {
		m, _ := rec["m"].(map[string]any)
		out[i] = store.MentionRecord{
			SourceID:   stringValue(m["sourceId"]),
			ProjectID:  stringValue(m["projectId"]),
			SourceFile: stringValue(m["sourceFile"]),
			Text:       stringValue(m["text"]),
			RefType:    stringValue(m["refType"]),
			Line:       intValue(m["line"]),
			Context:    stringValue(m["context"]),
			Confidence: floatValue(m["confidence"]),
			CreatedAt:  parseTime(m["createdAt"]),
		}
	}
	return out, nil
}

// DeleteMentions removes the given mentions.
func (s *Store) DeleteMentions(ctx context.Context, records []store.MentionRecord) error {
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key()
	}
	return s.deleteKeys(ctx, "PendingMention", keys)
}

// ClearSources drops every ledger record of the given sources.
func (s *Store) ClearSources(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	_, err := s.runner.Run(ctx, `
MATCH (p)
WHERE (p:PendingReference OR p:PendingMention) AND p.sourceId IN $sourceIds
DELETE p
`, map[string]any{"sourceIds": sourceIDs})
	if err != nil {
		return fmt.Errorf("clear sources: %w", err)
	}
	return nil
}

func (s *Store) deleteKeys(ctx context.Context, label string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.runner.Run(ctx, "MATCH (p:`"+label+"`) WHERE p.key IN $keys DELETE p",
		map[string]any{"keys": keys})
	if err != nil {
		return fmt.Errorf("delete %s records: %w", label, err)
	}
	return nil
}
