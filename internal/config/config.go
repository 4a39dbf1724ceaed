// Package config loads graphloom.yaml and the environment overrides that
// apply on top of it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the project root.
const FileName = "graphloom.yaml"

// DataDir holds the state file and the default SQLite database.
const DataDir = ".graphloom"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

type Config struct {
	Project string       `yaml:"project"`
	Store   StoreConfig  `yaml:"store"`
	Ingest  IngestConfig `yaml:"ingest"`
	Log     LogConfig    `yaml:"log"`
}

type StoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database"`
}

type IngestConfig struct {
	Workers       int      `yaml:"workers"`
	BatchSize     int      `yaml:"batch_size"`
	MinSimilarity float64  `yaml:"min_similarity"`
	MaxFileBytes  int64    `yaml:"max_file_bytes"`
	Reembed       bool     `yaml:"reembed"`
	Ignore        []string `yaml:"ignore"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:  BackendSQLite,
			Path:     filepath.Join(DataDir, "graph.db"),
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Ingest: IngestConfig{
			Workers:       runtime.NumCPU(),
			BatchSize:     500,
			MinSimilarity: 0.7,
			MaxFileBytes:  4 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads FileName from root if present, applies the environment and
// validates the result.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadYAMLFile(filepath.Join(root, FileName), cfg, false); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadFile is Load for an explicit path, which must exist.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadYAMLFile(path, cfg, true); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvironment(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config, required bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("GRAPHLOOM_NEO4J_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("GRAPHLOOM_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GRAPHLOOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GRAPHLOOM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Workers = n
		}
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the sqlite backend")
		}
	case BackendNeo4j:
		if c.Store.URI == "" {
			return fmt.Errorf("config: store.uri is required for the neo4j backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("config: ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MinSimilarity <= 0 || c.Ingest.MinSimilarity > 1 {
		return fmt.Errorf("config: ingest.min_similarity must be in (0,1], got %g", c.Ingest.MinSimilarity)
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("config: ingest.workers must not be negative, got %d", c.Ingest.Workers)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// StorePath resolves the SQLite path against the project root.
func (c *Config) StorePath(root string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(root, c.Store.Path)
}

// NewLogger builds the slog handler the log section asks for.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", raw)
}

// Marshal renders cfg as YAML, without secrets.
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Store.Password = ""
	return yaml.Marshal(&out)
}
