package ingest

import (
	"context"
	"fmt"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/fileutil"
	"github.com/skelly-dev/graphloom/internal/pending"
	"github.com/skelly-dev/graphloom/internal/state"
	"github.com/skelly-dev/graphloom/internal/store"
)

// SweepOptions tune a standalone sweep.
type SweepOptions struct {
	MentionsOnly  bool
	MinSimilarity float64 // Optional, uses the pipeline threshold if 0
}

// SweepReport is the outcome of Sweep.
type SweepReport struct {
	Project  string              `json:"project"`
	Pending  pending.SweepResult `json:"pending"`
	Mentions pending.SweepResult `json:"mentions"`
}

// Sweep retries the ledger of a project without scanning its directory.
func (p *Pipeline) Sweep(ctx context.Context, project build.Project, opts SweepOptions) (*SweepReport, error) {
	project, _, err := normalizeRequest(Request{Project: project})
	if err != nil {
		return nil, err
	}
	release, err := p.config.Locks.Acquire(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &SweepReport{Project: project.ID}
	if !opts.MentionsOnly {
		if report.Pending, err = p.ledger.SweepPending(ctx, project); err != nil {
			return report, err
		}
	}
	if report.Mentions, err = p.ledger.SweepMentions(ctx, project, opts.MinSimilarity); err != nil {
		return report, err
	}
	return report, nil
}

// Delete removes the nodes of the given files, absolute or relative to the
// project root, and forgets them in the state file. References other files
// held into them go back to the ledger, and those files are forgotten too
// so the next ingest rebuilds them.
func (p *Pipeline) Delete(ctx context.Context, req Request, paths []string) (int, error) {
	project, stateDir, err := normalizeRequest(req)
	if err != nil {
		return 0, err
	}
	rels, err := toRelative(project.Root, paths)
	if err != nil {
		return 0, err
	}
	release, err := p.config.Locks.Acquire(ctx, project.ID)
	if err != nil {
		return 0, err
	}
	defer release()

	st, err := state.Load(stateDir)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	edges, err := p.inbound(ctx, project, rels)
	if err != nil {
		return 0, err
	}

	deleted, err := p.deleteFiles(ctx, project, rels)
	if err != nil {
		return 0, err
	}
	if err := p.ledger.RecordUnresolved(ctx, pendingFor(project.ID, edges)); err != nil {
		return deleted, err
	}

	for _, rel := range rels {
		st.RemoveFile(rel)
	}
	for _, e := range edges {
		st.RemoveFile(e.sourceRel)
	}
	if err := st.Save(stateDir); err != nil {
		return deleted, fmt.Errorf("save state: %w", err)
	}
	p.logger.Info("deleted files",
		"project", project.ID,
		"files", len(rels),
		"nodes", deleted,
		"detached", len(edges))
	return deleted, nil
}

// Reembed flags the content-bearing nodes of the given files for
// re-embedding.
func (p *Pipeline) Reembed(ctx context.Context, project build.Project, paths []string) (int, error) {
	project, _, err := normalizeRequest(Request{Project: project})
	if err != nil {
		return 0, err
	}
	rels, err := toRelative(project.Root, paths)
	if err != nil {
		return 0, err
	}
	release, err := p.config.Locks.Acquire(ctx, project.ID)
	if err != nil {
		return 0, err
	}
	defer release()

	abs := make([]string, len(rels))
	for i, rel := range rels {
		abs[i] = joinRel(project.Root, rel)
	}
	return p.engine.MarkForReembed(ctx, project.ID, abs)
}

// Status compares a project directory with its state file and reports
// what the graph holds.
type Status struct {
	Project       string   `json:"project"`
	Root          string   `json:"root"`
	Tracked       int      `json:"tracked"`
	Scanned       int      `json:"scanned"`
	ChangedFiles  []string `json:"changed_files"`
	DeletedFiles  []string `json:"deleted_files"`
	Nodes         int      `json:"nodes"`
	Relationships int      `json:"relationships"`
	Pending       int      `json:"pending"`
	Mentions      int      `json:"mentions"`
}

// Status reports pending changes without touching the graph.
func (p *Pipeline) Status(ctx context.Context, req Request) (*Status, error) {
	project, stateDir, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	hashes, err := p.scan(project.Root, req.Ignore)
	if err != nil {
		return nil, err
	}
	st, err := state.Load(stateDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	counts, err := p.store.Counts(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("count graph: %w", err)
	}
	return statusOf(project, st, hashes, counts), nil
}

func statusOf(project build.Project, st *state.State, hashes map[string]string, counts store.Counts) *Status {
	return &Status{
		Project:       project.ID,
		Root:          project.Root,
		Tracked:       len(st.Files),
		Scanned:       len(hashes),
		ChangedFiles:  st.ChangedFiles(hashes),
		DeletedFiles:  st.DeletedFiles(fileutil.ToSet(hashes)),
		Nodes:         counts.Nodes,
		Relationships: counts.Relationships,
		Pending:       counts.Pending,
		Mentions:      counts.Mentions,
	}
}
