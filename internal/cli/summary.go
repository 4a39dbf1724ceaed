package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/skelly-dev/graphloom/internal/fileutil"
	"github.com/skelly-dev/graphloom/internal/ingest"
	"github.com/skelly-dev/graphloom/internal/pending"
)

func PrintIngestSummary(w io.Writer, res *ingest.Result, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, res)
	}

	fmt.Fprintf(w, "ingest complete in %dms (project %s, run %s)\n", res.DurationMS, res.Project, res.RunID)
	fmt.Fprintf(w, "files: scanned=%d changed=%d unchanged=%d deleted=%d impacted=%d\n",
		res.Scanned, res.Changed, res.Unchanged, res.Deleted, res.Impacted)
	m := res.Merge
	fmt.Fprintf(w, "nodes: created=%d updated=%d unchanged=%d\n", m.NodesCreated, m.NodesUpdated, m.NodesUnchanged)
	fmt.Fprintf(w, "relationships: created=%d updated=%d unchanged=%d missing=%d\n",
		m.RelationshipsCreated, m.RelationshipsUpdated, m.RelationshipsUnchanged, m.RelationshipsMissing)
	printSweep(w, "pending", res.Pending)
	printSweep(w, "mentions", res.Mentions)
	if len(res.ChangedFiles) > 0 {
		fmt.Fprintf(w, "changed files (%d): %s\n", len(res.ChangedFiles), SummarizePaths(res.ChangedFiles, 8))
	}
	if len(res.DeletedFiles) > 0 {
		fmt.Fprintf(w, "deleted files (%d): %s\n", len(res.DeletedFiles), SummarizePaths(res.DeletedFiles, 8))
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(w, "  %s %s: %s\n", issue.Severity, issue.File, issue.Message)
	}
	return nil
}

func PrintSweepSummary(w io.Writer, report *ingest.SweepReport, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, report)
	}
	fmt.Fprintf(w, "sweep complete (project %s)\n", report.Project)
	printSweep(w, "pending", report.Pending)
	printSweep(w, "mentions", report.Mentions)
	return nil
}

func printSweep(w io.Writer, label string, res pending.SweepResult) {
	fmt.Fprintf(w, "%s: resolved=%d remaining=%d dropped=%d\n", label, res.Resolved, res.Remaining, res.Dropped)
}

func PrintStatus(w io.Writer, status *ingest.Status, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, status)
	}

	clean := len(status.ChangedFiles) == 0 && len(status.DeletedFiles) == 0
	fmt.Fprintf(w, "project: %s (%s)\n", status.Project, status.Root)
	fmt.Fprintf(w, "files: tracked=%d scanned=%d changed=%d deleted=%d clean=%t\n",
		status.Tracked, status.Scanned, len(status.ChangedFiles), len(status.DeletedFiles), clean)
	fmt.Fprintf(w, "graph: nodes=%d relationships=%d pending=%d mentions=%d\n",
		status.Nodes, status.Relationships, status.Pending, status.Mentions)
	if len(status.ChangedFiles) > 0 {
		fmt.Fprintf(w, "changed files (%d): %s\n", len(status.ChangedFiles), SummarizePaths(status.ChangedFiles, 8))
	}
	if len(status.DeletedFiles) > 0 {
		fmt.Fprintf(w, "deleted files (%d): %s\n", len(status.DeletedFiles), SummarizePaths(status.DeletedFiles, 8))
	}
	if !clean {
		fmt.Fprintln(w, "Run `graphloom ingest` to refresh the graph.")
	}
	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
