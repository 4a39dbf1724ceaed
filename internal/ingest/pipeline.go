// Package ingest runs the ingestion pipeline for a project directory:
// scan, parse, build, merge, record what stayed unresolved and sweep.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/fileutil"
	"github.com/skelly-dev/graphloom/internal/identity"
	"github.com/skelly-dev/graphloom/internal/ignore"
	"github.com/skelly-dev/graphloom/internal/languages"
	"github.com/skelly-dev/graphloom/internal/merge"
	"github.com/skelly-dev/graphloom/internal/parser"
	"github.com/skelly-dev/graphloom/internal/pending"
	"github.com/skelly-dev/graphloom/internal/refs"
	"github.com/skelly-dev/graphloom/internal/resolve"
	"github.com/skelly-dev/graphloom/internal/state"
	"github.com/skelly-dev/graphloom/internal/store"
)

// Config configures a Pipeline.
type Config struct {
	Store         store.Store
	Registry      *parser.Registry      // Optional, uses languages.NewDefaultRegistry() if nil
	Identity      *identity.Assigner    // Optional, a fresh assigner if nil
	Locks         *ProjectLocks         // Optional, a private lock set if nil
	Workers       int                   // Optional, uses runtime.NumCPU() if 0
	BatchSize     int                   // Optional, uses merge.DefaultBatchSize if 0
	MinSimilarity float64               // Optional, uses resolve.DefaultMinSimilarity if 0
	Scoring       resolve.ScoringPolicy // Optional, uses resolve.ProductScoring if nil
	MaxFileBytes  int64                 // Optional, no limit if 0
	Logger        *slog.Logger          // Optional, uses slog.Default() if nil
	Now           func() time.Time      // Optional, uses time.Now if nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Registry == nil {
		cfg.Registry = languages.NewDefaultRegistry()
	}
	if cfg.Identity == nil {
		cfg.Identity = identity.New(0)
	}
	if cfg.Locks == nil {
		cfg.Locks = &ProjectLocks{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = resolve.DefaultMinSimilarity
	}
	if cfg.Scoring == nil {
		cfg.Scoring = resolve.ProductScoring
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// Request selects what one ingestion run covers.
type Request struct {
	Project build.Project
	// StateDir holds the incremental state file. Defaults to
	// <root>/.graphloom.
	StateDir string
	// Ignore rules apply on top of .gitignore and .graphloomignore.
	Ignore []string
	// Reembed marks content-bearing nodes whose content changed for
	// re-embedding.
	Reembed bool
	// Full rebuilds every file regardless of the state file.
	Full bool
	// Progress, if set, is called from worker goroutines after each file
	// is read and parsed.
	Progress func(file string, done, total int)
}

// Result summarises one ingestion run.
type Result struct {
	RunID        string              `json:"run_id"`
	Project      string              `json:"project"`
	Root         string              `json:"root"`
	Scanned      int                 `json:"scanned"`
	Changed      int                 `json:"changed"`
	Unchanged    int                 `json:"unchanged"`
	Deleted      int                 `json:"deleted"`
	Impacted     int                 `json:"impacted"`
	ChangedFiles []string            `json:"changed_files,omitempty"`
	DeletedFiles []string            `json:"deleted_files,omitempty"`
	Issues       []parser.ParseIssue `json:"issues,omitempty"`
	Merge        merge.Stats         `json:"merge"`
	Pending      pending.SweepResult `json:"pending"`
	Mentions     pending.SweepResult `json:"mentions"`
	DurationMS   int64               `json:"duration_ms"`
}

// Pipeline ingests projects into a store. It is safe for concurrent use;
// runs for the same project are serialised.
type Pipeline struct {
	config  Config
	store   store.Store
	engine  *merge.Engine
	builder *build.Builder
	ledger  *pending.Ledger
	logger  *slog.Logger
}

// New creates a pipeline over cfg.Store.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	cfg = applyConfigDefaults(cfg)

	engine := merge.New(cfg.Store, merge.Config{BatchSize: cfg.BatchSize, Logger: cfg.Logger, Now: cfg.Now})
	ledger, err := pending.New(pending.Config{
		Store:         cfg.Store,
		Merger:        engine,
		MinSimilarity: cfg.MinSimilarity,
		Scoring:       cfg.Scoring,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	builder := build.New(build.Config{
		Identity:      cfg.Identity,
		Reader:        cfg.Store,
		MinSimilarity: cfg.MinSimilarity,
		Scoring:       cfg.Scoring,
		Logger:        cfg.Logger,
		Now:           cfg.Now,
	})
	return &Pipeline{
		config:  cfg,
		store:   cfg.Store,
		engine:  engine,
		builder: builder,
		ledger:  ledger,
		logger:  cfg.Logger,
	}, nil
}

// Ingest brings the graph of req.Project in line with its directory.
// Only files whose hash changed since the last run are rebuilt; deleted
// files are removed. On a merge failure the state file is left untouched
// so the next run retries the same files.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	project, stateDir, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	release, err := p.config.Locks.Acquire(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &Result{RunID: uuid.NewString(), Project: project.ID, Root: project.Root}
	logger := p.logger.With("run", result.RunID, "project", project.ID)

	hashes, err := p.scan(project.Root, req.Ignore)
	if err != nil {
		return nil, err
	}
	st, err := state.Load(stateDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st.ProjectID != "" && st.ProjectID != project.ID {
		logger.Warn("state file belongs to another project; rebuilding", "previous", st.ProjectID)
		req.Full = true
	}

	changed := st.ChangedFiles(hashes)
	if req.Full {
		changed = fileutil.MapKeysSorted(hashes)
	}
	deleted := st.DeletedFiles(fileutil.ToSet(hashes))

	// Files whose classification changed lose their old nodes first so no
	// node of the previous shape survives.
	var stale []string
	for _, rel := range fileutil.MapKeysSorted(hashes) {
		if st.FormatChanged(rel, refs.Classify(rel).String()) {
			stale = append(stale, rel)
		}
	}
	changed = union(changed, stale)

	// Files pointing into deleted ones are rebuilt so their references go
	// back to the ledger instead of vanishing with the target.
	impacted, err := p.dependents(ctx, project, deleted, hashes)
	if err != nil {
		return nil, err
	}
	changed = union(changed, impacted)

	result.Scanned = len(hashes)
	result.Changed = len(changed)
	result.Unchanged = len(hashes) - len(changed)
	result.Deleted = len(deleted)
	result.Impacted = len(impacted)
	result.ChangedFiles = changed
	result.DeletedFiles = deleted

	if len(changed) == 0 && len(deleted) == 0 {
		logger.Info("nothing to ingest", "scanned", result.Scanned)
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	if removed := union(deleted, stale); len(removed) > 0 {
		if _, err := p.deleteFiles(ctx, project, removed); err != nil {
			return result, err
		}
	}

	inputs, issues, err := p.readAndParse(ctx, project.Root, changed, req.Progress)
	if err != nil {
		return result, err
	}
	result.Issues = issues
	for _, issue := range issues {
		logger.Warn("parse failed; ingesting without scopes", "file", issue.File, "error", issue.Message)
	}

	built, err := p.builder.Build(ctx, project, inputs)
	if err != nil {
		return result, fmt.Errorf("build: %w", err)
	}
	stats, err := p.engine.Merge(ctx, built.Batch, merge.Options{MarkForReembed: req.Reembed})
	result.Merge = stats
	if err != nil {
		return result, err
	}

	if err := p.ledger.ClearSources(ctx, built.Sources); err != nil {
		return result, err
	}
	if err := p.ledger.RecordUnresolved(ctx, built.Pending); err != nil {
		return result, err
	}
	if err := p.ledger.RecordMentions(ctx, built.Mentions); err != nil {
		return result, err
	}

	st.ProjectID = project.ID
	for _, rel := range deleted {
		st.RemoveFile(rel)
	}
	for _, in := range inputs {
		rel := relPath(project.Root, in.Path)
		fs := state.FileState{Hash: hashes[rel], Format: refs.Classify(rel).String(), UpdatedAt: p.config.Now()}
		if in.Record != nil {
			fs.Language = in.Record.Language
		}
		st.SetFile(rel, fs)
	}
	if err := st.Save(stateDir); err != nil {
		return result, fmt.Errorf("save state: %w", err)
	}

	if result.Pending, err = p.ledger.SweepPending(ctx, project); err != nil {
		return result, err
	}
	if result.Mentions, err = p.ledger.SweepMentions(ctx, project, 0); err != nil {
		return result, err
	}

	result.DurationMS = time.Since(start).Milliseconds()
	logger.Info("ingested",
		"scanned", result.Scanned,
		"changed", result.Changed,
		"deleted", result.Deleted,
		"nodes_created", stats.NodesCreated,
		"nodes_updated", stats.NodesUpdated,
		"relationships_created", stats.RelationshipsCreated,
		"pending_recorded", len(built.Pending),
		"mentions_recorded", len(built.Mentions),
		"duration_ms", result.DurationMS)
	return result, nil
}

func (p *Pipeline) scan(root string, extra []string) (map[string]string, error) {
	rules, err := ignore.LoadRules(root)
	if err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}
	rules = append(rules, extra...)
	hashes, err := fileutil.ScanFileHashes(root, rules, p.config.MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return hashes, nil
}

// readAndParse loads and parses files on the worker pool. Parse failures
// become issues and the file is built without a structural record.
func (p *Pipeline) readAndParse(ctx context.Context, root string, rels []string, progress func(string, int, int)) ([]build.FileInput, []parser.ParseIssue, error) {
	inputs := make([]build.FileInput, len(rels))
	issues := make([]*parser.ParseIssue, len(rels))
	var done atomic.Int64
	report := func(rel string) {
		if progress != nil {
			progress(rel, int(done.Add(1)), len(rels))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, rel := range rels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := joinRel(root, rel)
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			inputs[i] = build.FileInput{Path: path, Content: content}
			defer report(rel)
			if refs.Classify(path) == refs.FormatBinary {
				return nil
			}
			record, err := p.config.Registry.Parse(path, content)
			if err != nil {
				lang := ""
				if lp, ok := p.config.Registry.GetParserForFile(path); ok {
					lang = lp.Language()
				}
				issues[i] = &parser.ParseIssue{File: rel, Language: lang, Severity: "error", Message: err.Error()}
				return nil
			}
			inputs[i].Record = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []parser.ParseIssue
	for _, issue := range issues {
		if issue != nil {
			out = append(out, *issue)
		}
	}
	return inputs, out, nil
}

// deleteFiles removes the nodes of files given relative to the root.
func (p *Pipeline) deleteFiles(ctx context.Context, project build.Project, rels []string) (int, error) {
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = joinRel(project.Root, rel)
	}
	deleted, err := p.engine.DeleteForFiles(ctx, project.ID, paths)
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		p.config.Identity.Forget(path)
	}
	return deleted, nil
}

func normalizeRequest(req Request) (build.Project, string, error) {
	project := req.Project
	if project.Root == "" {
		return project, "", errors.New("ingest: project root is required")
	}
	root, err := filepath.Abs(project.Root)
	if err != nil {
		return project, "", fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return project, "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return project, "", fmt.Errorf("project root %s is not a directory", root)
	}
	project.Root = root
	if project.Name == "" {
		project.Name = filepath.Base(root)
	}
	if project.ID == "" {
		project.ID = project.Name
	}

	stateDir := req.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(root, ".graphloom")
	}
	return project, stateDir, nil
}

func joinRel(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// relPath returns path relative to root with forward slashes.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// union merges two sorted lists without duplicates.
func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	return fileutil.MapKeysSorted(set)
}

// toRelative converts user-supplied paths, absolute or relative to the
// root, into state keys.
func toRelative(root string, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		rel := relPath(root, filepath.Clean(path))
		if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
			return nil, fmt.Errorf("%s is outside project root %s", path, root)
		}
		out = append(out, rel)
	}
	return out, nil
}
