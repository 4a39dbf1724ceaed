package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/fileutil"
	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/store"
)

// inboundEdge is a relationship from another file into a file about to be
// deleted.
type inboundEdge struct {
	rel        graph.Relationship
	sourceFile string // absolute
	sourceRel  string // relative to the root
	targetFile string // absolute
}

// inbound returns the relationships that reach the nodes of the given
// files, relative to the root, from files outside that set.
func (p *Pipeline) inbound(ctx context.Context, project build.Project, rels []string) ([]inboundEdge, error) {
	gone := fileutil.SliceToSet(rels)
	var out []inboundEdge
	for _, rel := range rels {
		path := joinRel(project.Root, rel)
		entry, err := p.store.FileByPath(ctx, project.ID, path)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("look up %s: %w", rel, err)
		}
		ids := []string{entry.ID}
		scopes, err := p.store.ScopesInFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("look up scopes in %s: %w", rel, err)
		}
		for _, scope := range scopes {
			ids = append(ids, scope.ID)
		}

		for _, id := range ids {
			incoming, err := p.store.Relationships(ctx, store.RelationshipFilter{ToID: id})
			if err != nil {
				return nil, fmt.Errorf("incoming relationships of %s: %w", id, err)
			}
			for _, r := range incoming {
				node, err := p.store.NodeByID(ctx, r.FromID)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("look up %s: %w", r.FromID, err)
				}
				from := node.Properties.String(graph.PropFilePath)
				if from == "" {
					continue
				}
				dep := relPath(project.Root, from)
				if gone[dep] {
					continue
				}
				out = append(out, inboundEdge{rel: r, sourceFile: from, sourceRel: dep, targetFile: path})
			}
		}
	}
	return out, nil
}

// dependents returns the current files, relative to the root, that hold
// relationships into the nodes of the given files.
func (p *Pipeline) dependents(ctx context.Context, project build.Project, rels []string, current map[string]string) ([]string, error) {
	if len(rels) == 0 {
		return nil, nil
	}
	edges, err := p.inbound(ctx, project, rels)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool)
	for _, e := range edges {
		if _, ok := current[e.sourceRel]; ok {
			found[e.sourceRel] = true
		}
	}
	return fileutil.MapKeysSorted(found), nil
}

// pendingFor turns edges into the ledger records their sources would have
// recorded had the target never been ingested. Structural edges the ledger
// cannot replay are left to a rebuild of the source file.
func pendingFor(projectID string, edges []inboundEdge) []store.PendingRecord {
	byKey := make(map[string]*store.PendingRecord)
	var keys []string
	for _, e := range edges {
		target := e.rel.Properties.String("target")
		switch e.rel.Type {
		case graph.RelConsumes:
			target = e.rel.Properties.String("source")
		case graph.RelReferencesAsset, graph.RelReferencesDoc, graph.RelReferencesStyle, graph.RelReferencesData:
		default:
			continue
		}
		if target == "" {
			continue
		}
		rec := store.PendingRecord{
			SourceID:     e.rel.FromID,
			ProjectID:    projectID,
			SourceFile:   e.sourceFile,
			TargetPath:   target,
			RelationType: e.rel.Type,
			AbsolutePath: filepath.Clean(e.targetFile),
			Line:         e.rel.Properties.Int("line"),
		}
		existing, ok := byKey[rec.Key()]
		if !ok {
			existing = &rec
			byKey[rec.Key()] = existing
			keys = append(keys, rec.Key())
		}
		if symbol := e.rel.Properties.String("symbol"); symbol != "" && !contains(existing.Symbols, symbol) {
			existing.Symbols = append(existing.Symbols, symbol)
		}
	}

	sort.Strings(keys)
	out := make([]store.PendingRecord, 0, len(keys))
	for _, key := range keys {
		rec := byKey[key]
		sort.Strings(rec.Symbols)
		out = append(out, *rec)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
