// Package sqlite implements the store contract on an embedded SQLite
// database. Node and relationship properties are stored as JSON documents
// and overlaid key by key inside a transaction.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Config configures the database connection pool.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// Connection pool configuration bounds.
const (
	MinOpenConns           = 1
	MaxOpenConnsLimit      = 64
	DefaultMaxOpenConns    = 8
	DefaultMaxIdleConns    = 4
	DefaultConnMaxLifetime = time.Hour
	DefaultBusyTimeout     = 5 * time.Second
)

// DefaultConfig returns a configuration suitable for a local graph file.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		BusyTimeout:     DefaultBusyTimeout,
	}
}

// Validate checks the configuration values and returns an error if invalid.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite config: path is required")
	}
	if c.MaxOpenConns < MinOpenConns || c.MaxOpenConns > MaxOpenConnsLimit {
		return fmt.Errorf("sqlite config: MaxOpenConns must be between %d and %d, got %d",
			MinOpenConns, MaxOpenConnsLimit, c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("sqlite config: MaxIdleConns (%d) must be between 0 and MaxOpenConns (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Store is a store.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens a database with default configuration.
func Open(path string) (*Store, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig validates config, opens the database and applies the schema.
func OpenWithConfig(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", config.Path, err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=normal&_busy_timeout=%d",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", config.Path, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at %s: %w", config.Path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema on %s: %w", config.Path, err)
	}

	return &Store{db: db, path: config.Path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// placeholders renders "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
