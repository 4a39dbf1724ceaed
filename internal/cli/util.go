package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/config"
	"github.com/skelly-dev/graphloom/internal/ingest"
	"github.com/skelly-dev/graphloom/internal/store"
	"github.com/skelly-dev/graphloom/internal/store/neo4j"
	"github.com/skelly-dev/graphloom/internal/store/sqlite"
)

func resolveWorkingDirectory() (string, error) {
	rootPath, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return rootPath, nil
}

// resolveProjectRoot returns the optional [path] argument as an absolute
// path, or the working directory.
func resolveProjectRoot(args []string) (string, error) {
	if len(args) == 0 {
		return resolveWorkingDirectory()
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	return root, nil
}

func loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	path, err := OptionalStringFlag(cmd, "config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(root)
}

// session bundles what a command needs to talk to one project's graph.
type session struct {
	root     string
	config   *config.Config
	logger   *slog.Logger
	store    store.Store
	pipeline *ingest.Pipeline
}

func openSession(cmd *cobra.Command, root string) (*session, error) {
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	s, err := openStore(cmd.Context(), cfg, root, logger)
	if err != nil {
		return nil, err
	}
	pipeline, err := ingest.New(ingest.Config{
		Store:         s,
		Workers:       cfg.Ingest.Workers,
		BatchSize:     cfg.Ingest.BatchSize,
		MinSimilarity: cfg.Ingest.MinSimilarity,
		MaxFileBytes:  cfg.Ingest.MaxFileBytes,
		Logger:        logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return &session{root: root, config: cfg, logger: logger, store: s, pipeline: pipeline}, nil
}

func openStore(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger) (store.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch cfg.Store.Backend {
	case config.BackendNeo4j:
		s, err := neo4j.Open(ctx, neo4j.Config{
			URI:      cfg.Store.URI,
			Username: cfg.Store.Username,
			Password: cfg.Store.Password,
			Database: cfg.Store.Database,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open neo4j store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.Open(cfg.StorePath(root))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) project() build.Project {
	p := build.Project{Root: s.root, Name: filepath.Base(s.root)}
	p.ID = s.config.Project
	if p.ID == "" {
		p.ID = p.Name
	}
	return p
}

func (s *session) request() ingest.Request {
	return ingest.Request{
		Project:  s.project(),
		StateDir: filepath.Join(s.root, config.DataDir),
		Ignore:   s.config.Ingest.Ignore,
		Reembed:  s.config.Ingest.Reembed,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
