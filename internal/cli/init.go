package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/graphloom/internal/config"
	"github.com/skelly-dev/graphloom/internal/fileutil"
	"github.com/skelly-dev/graphloom/internal/ignore"
)

const defaultIgnoreFile = `# Paths graphloom skips in addition to .gitignore.
# Same syntax as .gitignore.
*.min.js
*.lock
`

func RunInit(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(root, config.DataDir), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.Project = filepath.Base(root)
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}

	var written []string
	for _, f := range []struct {
		name string
		data []byte
	}{
		{config.FileName, data},
		{ignore.IgnoreFile, []byte(defaultIgnoreFile)},
	} {
		ok, err := fileutil.WriteIfMissing(filepath.Join(root, f.name), f.data, 0o644)
		if err != nil {
			return err
		}
		if ok {
			written = append(written, f.name)
		}
	}

	out := cmd.OutOrStdout()
	if len(written) == 0 {
		fmt.Fprintf(out, "Already initialized at %s\n", root)
		return nil
	}
	fmt.Fprintf(out, "Initialized %s: wrote %s\n", root, strings.Join(written, ", "))
	return nil
}
