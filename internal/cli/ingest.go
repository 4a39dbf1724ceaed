package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/graphloom/internal/ingest"
)

func RunIngest(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	reembed, err := OptionalBoolFlag(cmd, "reembed")
	if err != nil {
		return err
	}
	full, err := OptionalBoolFlag(cmd, "full")
	if err != nil {
		return err
	}

	sess, err := openSession(cmd, root)
	if err != nil {
		return err
	}
	defer sess.Close()

	req := sess.request()
	req.Reembed = req.Reembed || reembed
	req.Full = full
	progress := newParseProgressReporter(cmd.ErrOrStderr(), "ingest", asJSON)
	req.Progress = progress.Update

	res, err := sess.pipeline.Ingest(commandContext(cmd), req)
	progress.Done()
	if err != nil {
		return err
	}
	return PrintIngestSummary(cmd.OutOrStdout(), res, asJSON)
}

func RunSweep(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	mentionsOnly, err := OptionalBoolFlag(cmd, "mentions-only")
	if err != nil {
		return err
	}
	minSimilarity, err := OptionalFloatFlag(cmd, "min-similarity")
	if err != nil {
		return err
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return fmt.Errorf("--min-similarity must be within (0,1], got %v", minSimilarity)
	}

	sess, err := openSession(cmd, root)
	if err != nil {
		return err
	}
	defer sess.Close()

	report, err := sess.pipeline.Sweep(commandContext(cmd), sess.project(), ingest.SweepOptions{
		MentionsOnly:  mentionsOnly,
		MinSimilarity: minSimilarity,
	})
	if err != nil {
		return err
	}
	return PrintSweepSummary(cmd.OutOrStdout(), report, asJSON)
}

func RunReembed(cmd *cobra.Command, args []string) error {
	sess, paths, err := openPathSession(cmd, args)
	if err != nil {
		return err
	}
	defer sess.Close()

	marked, err := sess.pipeline.Reembed(commandContext(cmd), sess.project(), paths)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %d nodes for re-embedding\n", marked)
	return nil
}

func RunDelete(cmd *cobra.Command, args []string) error {
	sess, paths, err := openPathSession(cmd, args)
	if err != nil {
		return err
	}
	defer sess.Close()

	deleted, err := sess.pipeline.Delete(commandContext(cmd), sess.request(), paths)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d nodes\n", deleted)
	return nil
}

func RunStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}

	sess, err := openSession(cmd, root)
	if err != nil {
		return err
	}
	defer sess.Close()

	status, err := sess.pipeline.Status(commandContext(cmd), sess.request())
	if err != nil {
		return err
	}
	return PrintStatus(cmd.OutOrStdout(), status, asJSON)
}

// openPathSession opens the project in the working directory and resolves
// file arguments against it.
func openPathSession(cmd *cobra.Command, args []string) (*session, []string, error) {
	root, err := resolveWorkingDirectory()
	if err != nil {
		return nil, nil, err
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		paths = append(paths, abs)
	}
	sess, err := openSession(cmd, root)
	if err != nil {
		return nil, nil, err
	}
	return sess, paths, nil
}
