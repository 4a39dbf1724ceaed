// Package store defines the persistence contract the ingestion core writes
// through. Backends live in the sqlite and neo4j subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/skelly-dev/graphloom/internal/graph"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Outcome marks what a MERGE did to one row.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// NodeChunk is one bounded write of nodes sharing a label set.
type NodeChunk struct {
	Labels []string
	Key    string
	Nodes  []graph.Node
	// ContentBearing nodes get an initial lifecycle state on create.
	ContentBearing bool
	// MarkForReembed advances content-bearing nodes whose content hash
	// changed to embedding-pending.
	MarkForReembed bool
	Now            time.Time
}

// RowOutcome reports the per-row marker returned by a node MERGE.
type RowOutcome struct {
	ID      string
	Outcome Outcome
}

// RelationshipChunk is one bounded write of relationships of a single type.
type RelationshipChunk struct {
	Type          string
	Discriminator string
	Relationships []graph.Relationship
	Now           time.Time
}

// RelationshipResult counts what a relationship MERGE did.
type RelationshipResult struct {
	Created   int
	Matched   int
	Unchanged int
	// Missing counts rows whose endpoints were not found.
	Missing int
}

// FileEntry is the lookup view of a File node.
type FileEntry struct {
	ID           string
	Path         string
	RelativePath string
	Name         string
	Labels       []string
}

// ScopeEntry is the lookup view of a Scope node.
type ScopeEntry struct {
	ID        string
	Name      string
	Kind      string
	FilePath  string
	StartLine int
	// Stale scopes were not produced by the latest build of their file.
	// Nodes are only removed with their file, so they linger until then.
	Stale bool
}

// StaleDefinition reports whether a scope whose DEFINED_IN edge carries
// builtHash is out of date with a file now hashing to currentHash. Edges
// without a hash are never stale.
func StaleDefinition(builtHash, currentHash string) bool {
	return builtHash != "" && currentHash != "" && builtHash != currentHash
}

// RelationshipFilter selects relationships; empty fields match anything.
type RelationshipFilter struct {
	Type   string
	FromID string
	ToID   string
}

// Counts summarises a project's graph and ledger.
type Counts struct {
	Nodes         int
	Relationships int
	Pending       int
	Mentions      int
}

// PendingRecord is a structural reference whose target did not exist yet.
type PendingRecord struct {
	SourceID     string
	ProjectID    string
	SourceFile   string
	TargetPath   string
	Symbols      []string
	RelationType string
	AbsolutePath string
	Line         int
	CreatedAt    time.Time
}

// Key identifies the record within the ledger.
func (r PendingRecord) Key() string {
	return r.SourceID + "|" + r.AbsolutePath + "|" + r.RelationType
}

// MentionRecord is a loose prose reference that did not match any file yet.
type MentionRecord struct {
	SourceID   string
	ProjectID  string
	SourceFile string
	Text       string
	RefType    string
	Line       int
	Context    string
	Confidence float64
	CreatedAt  time.Time
}

// Key identifies the record within the ledger.
func (r MentionRecord) Key() string {
	return r.SourceID + "|" + r.Text
}

// Writer applies graph mutations.
type Writer interface {
	MergeNodes(ctx context.Context, chunk NodeChunk) ([]RowOutcome, error)
	MergeRelationships(ctx context.Context, chunk RelationshipChunk) (RelationshipResult, error)
	// DeleteForFiles detach-deletes every node owned by the given files.
	DeleteForFiles(ctx context.Context, projectID string, paths []string) (int, error)
	// MarkForReembed flips content-bearing nodes of the given files to
	// embedding-pending without touching content.
	MarkForReembed(ctx context.Context, projectID string, paths []string, now time.Time) (int, error)
}

// Reader answers the lookups resolution needs. Reads never mutate.
type Reader interface {
	NodeByID(ctx context.Context, id string) (graph.Node, error)
	FileByPath(ctx context.Context, projectID, path string) (FileEntry, error)
	Files(ctx context.Context, projectID string) ([]FileEntry, error)
	ScopesInFile(ctx context.Context, path string) ([]ScopeEntry, error)
	Relationships(ctx context.Context, filter RelationshipFilter) ([]graph.Relationship, error)
	Counts(ctx context.Context, projectID string) (Counts, error)
}

// Ledger is the side table of deferred references, keyed by source id.
type Ledger interface {
	PutPending(ctx context.Context, records []PendingRecord) error
	Pending(ctx context.Context, projectID string) ([]PendingRecord, error)
	DeletePending(ctx context.Context, records []PendingRecord) error
	PutMentions(ctx context.Context, records []MentionRecord) error
	Mentions(ctx context.Context, projectID string) ([]MentionRecord, error)
	DeleteMentions(ctx context.Context, records []MentionRecord) error
	// ClearSources drops every pending and mention record of the given sources.
	ClearSources(ctx context.Context, sourceIDs []string) error
}

// Store is the full backend contract.
type Store interface {
	Writer
	Reader
	Ledger
	Close() error
}
