// Package merge commits node/relationship batches into a store with
// update-in-place semantics: properties missing from a payload are left
// untouched, so derived data such as embeddings survives re-ingestion.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/identity"
	"github.com/skelly-dev/graphloom/internal/store"
)

// DefaultBatchSize bounds the rows of one write.
const DefaultBatchSize = 500

// Config configures an Engine.
type Config struct {
	BatchSize int              // Optional, uses DefaultBatchSize if 0
	Logger    *slog.Logger     // Optional, uses slog.Default() if nil
	Now       func() time.Time // Optional, uses time.Now if nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// Options tune a single Merge call.
type Options struct {
	// MarkForReembed advances content-bearing nodes whose content hash
	// changed to embedding-pending.
	MarkForReembed bool
}

// Stats aggregates what a merge did.
type Stats struct {
	NodesCreated           int `json:"nodes_created"`
	NodesUpdated           int `json:"nodes_updated"`
	NodesUnchanged         int `json:"nodes_unchanged"`
	RelationshipsCreated   int `json:"relationships_created"`
	RelationshipsUpdated   int `json:"relationships_updated"`
	RelationshipsUnchanged int `json:"relationships_unchanged"`
	RelationshipsMissing   int `json:"relationships_missing"`
	Batches                int `json:"batches"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.NodesCreated += other.NodesCreated
	s.NodesUpdated += other.NodesUpdated
	s.NodesUnchanged += other.NodesUnchanged
	s.RelationshipsCreated += other.RelationshipsCreated
	s.RelationshipsUpdated += other.RelationshipsUpdated
	s.RelationshipsUnchanged += other.RelationshipsUnchanged
	s.RelationshipsMissing += other.RelationshipsMissing
	s.Batches += other.Batches
}

// BatchError reports the chunk a merge stopped at. Chunks before it are
// committed; retrying the whole merge is safe.
type BatchError struct {
	Kind   string // "nodes" or "relationships"
	Group  string // label set or relationship type
	Offset int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("merge %s %s at offset %d: %v", e.Kind, e.Group, e.Offset, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Engine merges batches into a store.Writer.
type Engine struct {
	writer store.Writer
	config Config
	logger *slog.Logger
}

// New creates an engine writing through w.
func New(w store.Writer, cfg Config) *Engine {
	cfg = applyConfigDefaults(cfg)
	return &Engine{writer: w, config: cfg, logger: cfg.Logger}
}

// Merge writes nodes grouped by label set, then relationships grouped by
// type, each in chunks committed independently. On failure it returns the
// stats gathered so far with a *BatchError.
func (e *Engine) Merge(ctx context.Context, batch *graph.Batch, opts Options) (Stats, error) {
	var stats Stats
	if batch == nil {
		return stats, nil
	}
	now := e.config.Now()

	for _, group := range batch.GroupNodes() {
		contentBearing := graph.IsContentBearing(group.Labels)
		label := strings.Join(group.Labels, ":")
		for offset := 0; offset < len(group.Nodes); offset += e.config.BatchSize {
			if err := ctx.Err(); err != nil {
				return stats, &BatchError{Kind: "nodes", Group: label, Offset: offset, Err: err}
			}
			nodes := chunkOf(group.Nodes, offset, e.config.BatchSize)
			if contentBearing {
				nodes = stampSchemaVersion(group.Labels, nodes)
			}
			outcomes, err := e.writer.MergeNodes(ctx, store.NodeChunk{
				Labels:         group.Labels,
				Key:            group.Key,
				Nodes:          nodes,
				ContentBearing: contentBearing,
				MarkForReembed: opts.MarkForReembed,
				Now:            now,
			})
			if err != nil {
				e.logger.Error("node batch failed", "labels", label, "offset", offset, "error", err)
				return stats, &BatchError{Kind: "nodes", Group: label, Offset: offset, Err: err}
			}
			stats.Batches++
			for _, o := range outcomes {
				switch o.Outcome {
				case store.OutcomeCreated:
					stats.NodesCreated++
				case store.OutcomeUpdated:
					stats.NodesUpdated++
				default:
					stats.NodesUnchanged++
				}
			}
			e.logger.Debug("merged nodes", "labels", label, "offset", offset, "rows", len(nodes))
		}
	}

	for _, group := range batch.GroupRelationships() {
		for offset := 0; offset < len(group.Relationships); offset += e.config.BatchSize {
			if err := ctx.Err(); err != nil {
				return stats, &BatchError{Kind: "relationships", Group: group.Type, Offset: offset, Err: err}
			}
			rels := chunkOf(group.Relationships, offset, e.config.BatchSize)
			res, err := e.writer.MergeRelationships(ctx, store.RelationshipChunk{
				Type:          group.Type,
				Discriminator: group.Discriminator,
				Relationships: rels,
				Now:           now,
			})
			if err != nil {
				e.logger.Error("relationship batch failed", "type", group.Type, "offset", offset, "error", err)
				return stats, &BatchError{Kind: "relationships", Group: group.Type, Offset: offset, Err: err}
			}
			stats.Batches++
			stats.RelationshipsCreated += res.Created
			stats.RelationshipsUpdated += res.Matched
			stats.RelationshipsUnchanged += res.Unchanged
			stats.RelationshipsMissing += res.Missing
			e.logger.Debug("merged relationships", "type", group.Type, "offset", offset, "rows", len(rels))
		}
	}
	return stats, nil
}

// DeleteForFiles hard-deletes every node owned by the given files. It is
// only meant for deleted files and format changes.
func (e *Engine) DeleteForFiles(ctx context.Context, projectID string, paths []string) (int, error) {
	deleted, err := e.writer.DeleteForFiles(ctx, projectID, paths)
	if err != nil {
		return 0, fmt.Errorf("delete nodes for %d files: %w", len(paths), err)
	}
	e.logger.Info("deleted file nodes", "project", projectID, "files", len(paths), "nodes", deleted)
	return deleted, nil
}

// MarkForReembed flags content-bearing nodes of the given files for
// re-embedding without touching their content.
func (e *Engine) MarkForReembed(ctx context.Context, projectID string, paths []string) (int, error) {
	marked, err := e.writer.MarkForReembed(ctx, projectID, paths, e.config.Now())
	if err != nil {
		return 0, fmt.Errorf("mark %d files for reembed: %w", len(paths), err)
	}
	e.logger.Info("marked nodes for reembed", "project", projectID, "files", len(paths), "nodes", marked)
	return marked, nil
}

// IsBatchError reports whether err carries a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

func chunkOf[T any](items []T, offset, size int) []T {
	end := offset + size
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// stampSchemaVersion sets schemaVersion to the most specific content label
// plus a hash of the payload's property names.
func stampSchemaVersion(labels []string, nodes []graph.Node) []graph.Node {
	label := graph.ContentLabel(labels)
	out := make([]graph.Node, len(nodes))
	for i, n := range nodes {
		props := n.Properties.Clone()
		delete(props, graph.PropSchemaVersion)
		props[graph.PropSchemaVersion] = label + ":" + identity.ContentHash(strings.Join(props.Keys(), ","))
		n.Properties = props
		out[i] = n
	}
	return out
}
