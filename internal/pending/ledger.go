// Package pending records references whose targets did not exist when their
// source was ingested and retries them once the graph has grown.
package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/merge"
	"github.com/skelly-dev/graphloom/internal/resolve"
	"github.com/skelly-dev/graphloom/internal/store"
)

// Store is what the ledger needs from a backend.
type Store interface {
	store.Reader
	store.Ledger
}

// Merger commits the edges a sweep resolves.
type Merger interface {
	Merge(ctx context.Context, batch *graph.Batch, opts merge.Options) (merge.Stats, error)
}

// Config configures a Ledger.
type Config struct {
	Store         Store
	Merger        Merger
	MinSimilarity float64               // Optional, uses resolve.DefaultMinSimilarity if 0
	Scoring       resolve.ScoringPolicy // Optional, uses resolve.ProductScoring if nil
	Logger        *slog.Logger          // Optional, uses slog.Default() if nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = resolve.DefaultMinSimilarity
	}
	if cfg.Scoring == nil {
		cfg.Scoring = resolve.ProductScoring
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Resolved  int `json:"resolved"`
	Remaining int `json:"remaining"`
	// Dropped counts records whose source node no longer exists or that
	// resolved to their own file.
	Dropped int         `json:"dropped"`
	Merge   merge.Stats `json:"merge"`
}

// Ledger records unresolved references and sweeps them.
type Ledger struct {
	config Config
	store  Store
	merger Merger
	logger *slog.Logger
}

// New creates a ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("pending: store is required")
	}
	if cfg.Merger == nil {
		return nil, errors.New("pending: merger is required")
	}
	cfg = applyConfigDefaults(cfg)
	return &Ledger{config: cfg, store: cfg.Store, merger: cfg.Merger, logger: cfg.Logger}, nil
}

// RecordUnresolved stores pending structural references. Records with the
// same source, target and relation replace each other.
func (l *Ledger) RecordUnresolved(ctx context.Context, records []store.PendingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := l.store.PutPending(ctx, records); err != nil {
		return fmt.Errorf("record pending references: %w", err)
	}
	return nil
}

// RecordMentions stores loose mentions that matched no file.
func (l *Ledger) RecordMentions(ctx context.Context, records []store.MentionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := l.store.PutMentions(ctx, records); err != nil {
		return fmt.Errorf("record mentions: %w", err)
	}
	return nil
}

// ClearSources drops every record of the given source nodes. Call it
// before re-recording a re-ingested file.
func (l *Ledger) ClearSources(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	if err := l.store.ClearSources(ctx, sourceIDs); err != nil {
		return fmt.Errorf("clear ledger sources: %w", err)
	}
	return nil
}

// SweepPending retries every pending reference of project against the
// files now in the graph. Resolved records become edges and are deleted;
// the rest stay for the next sweep.
func (l *Ledger) SweepPending(ctx context.Context, project build.Project) (SweepResult, error) {
	var result SweepResult
	records, err := l.store.Pending(ctx, project.ID)
	if err != nil {
		return result, fmt.Errorf("load pending references: %w", err)
	}
	if len(records) == 0 {
		return result, nil
	}

	prober, err := resolve.NewGraphProber(ctx, l.store, project.ID)
	if err != nil {
		return result, err
	}
	resolver := resolve.New(prober)
	binder := newEdgeBinder(l.store, prober, project.Root)
	sources := newSourceCheck(l.store)

	batch := graph.NewBatch()
	var done []store.PendingRecord
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		exists, err := sources.exists(ctx, rec.SourceID)
		if err != nil {
			return result, err
		}
		if !exists {
			done = append(done, rec)
			result.Dropped++
			continue
		}

		path, ok := resolvePending(resolver, prober, rec, project.Root)
		if !ok {
			result.Remaining++
			continue
		}
		entry, _ := prober.File(path)
		if entry.ID == rec.SourceID {
			done = append(done, rec)
			result.Dropped++
			continue
		}

		edges, ready, err := binder.edges(ctx, rec, entry)
		if err != nil {
			return result, err
		}
		if !ready {
			result.Remaining++
			continue
		}
		for _, rel := range edges {
			batch.AddRelationship(rel)
		}
		done = append(done, rec)
		result.Resolved++
	}

	if len(batch.Relationships) > 0 {
		stats, err := l.merger.Merge(ctx, batch, merge.Options{})
		result.Merge = stats
		if err != nil {
			return result, fmt.Errorf("merge swept references: %w", err)
		}
	}
	if err := l.store.DeletePending(ctx, done); err != nil {
		return result, fmt.Errorf("delete swept references: %w", err)
	}

	l.logger.Info("swept pending references",
		"project", project.ID,
		"resolved", result.Resolved,
		"remaining", result.Remaining,
		"dropped", result.Dropped)
	return result, nil
}

// SweepMentions retries stored mentions through the fuzzy cascade. A
// non-positive minSimilarity uses the configured threshold.
func (l *Ledger) SweepMentions(ctx context.Context, project build.Project, minSimilarity float64) (SweepResult, error) {
	var result SweepResult
	mentions, err := l.store.Mentions(ctx, project.ID)
	if err != nil {
		return result, fmt.Errorf("load mentions: %w", err)
	}
	if len(mentions) == 0 {
		return result, nil
	}

	prober, err := resolve.NewGraphProber(ctx, l.store, project.ID)
	if err != nil {
		return result, err
	}
	candidates := prober.Candidates()
	if minSimilarity <= 0 {
		minSimilarity = l.config.MinSimilarity
	}
	fuzzy := resolve.NewFuzzy(minSimilarity)
	sources := newSourceCheck(l.store)

	batch := graph.NewBatch()
	var done []store.MentionRecord
	for _, m := range mentions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		exists, err := sources.exists(ctx, m.SourceID)
		if err != nil {
			return result, err
		}
		if !exists {
			done = append(done, m)
			result.Dropped++
			continue
		}

		match, ok := fuzzy.Match(m.Text, candidates)
		if !ok {
			result.Remaining++
			continue
		}
		done = append(done, m)
		if match.ID == m.SourceID || match.Path == m.SourceFile {
			result.Dropped++
			continue
		}
		batch.AddRelationship(graph.Relationship{
			Type:       graph.RelMentionsFile,
			FromID:     m.SourceID,
			ToID:       match.ID,
			Properties: build.MentionProps(m.Text, m.Line, m.Confidence, match, l.config.Scoring, build.ResolvedFromDeferred),
		})
		result.Resolved++
	}

	if len(batch.Relationships) > 0 {
		stats, err := l.merger.Merge(ctx, batch, merge.Options{})
		result.Merge = stats
		if err != nil {
			return result, fmt.Errorf("merge swept mentions: %w", err)
		}
	}
	if err := l.store.DeleteMentions(ctx, done); err != nil {
		return result, fmt.Errorf("delete swept mentions: %w", err)
	}

	l.logger.Info("swept mentions",
		"project", project.ID,
		"resolved", result.Resolved,
		"remaining", result.Remaining,
		"dropped", result.Dropped)
	return result, nil
}
