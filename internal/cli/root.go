package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphloom",
		Short: "Ingest code and documents into a property graph",
		Long: `Graphloom ingests source code, markdown and other project files into a
property graph of files, scopes, sections and the references between them.

Re-running ingest only rebuilds what changed. Derived data stored on nodes,
such as embeddings, survives re-ingestion.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to graphloom.yaml (default: <root>/graphloom.yaml)")

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default graphloom.yaml and .graphloomignore",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunInit,
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest changed files into the graph",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunIngest,
	}
	ingestCmd.Flags().Bool("reembed", false, "Mark nodes whose content changed for re-embedding")
	ingestCmd.Flags().Bool("full", false, "Rebuild every file, ignoring the state file")
	ingestCmd.Flags().Bool("json", false, "Print machine-readable run summary")

	sweepCmd := &cobra.Command{
		Use:   "sweep [path]",
		Short: "Retry pending references and mentions against the graph",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunSweep,
	}
	sweepCmd.Flags().Bool("mentions-only", false, "Only retry loose mentions")
	sweepCmd.Flags().Float64("min-similarity", 0, "Fuzzy match threshold in (0,1] (default: ingest.min_similarity)")
	sweepCmd.Flags().Bool("json", false, "Print machine-readable sweep summary")

	reembedCmd := &cobra.Command{
		Use:   "reembed <paths...>",
		Short: "Mark the nodes of files for re-embedding",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunReembed,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <paths...>",
		Short: "Remove the nodes of files from the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunDelete,
	}

	statusCmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show what changed since the last ingest and what the graph holds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunStatus,
	}
	statusCmd.Flags().Bool("json", false, "Print machine-readable status output")

	installHookCmd := &cobra.Command{
		Use:   "install-hook",
		Short: "Install git pre-commit hook for incremental ingestion",
		RunE:  RunInstallHook,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphloom %s\n", version)
		},
	}

	rootCmd.AddCommand(
		initCmd,
		ingestCmd,
		sweepCmd,
		reembedCmd,
		deleteCmd,
		statusCmd,
		installHookCmd,
		versionCmd,
	)

	return rootCmd
}
