// Package neo4j implements the store contract on a Neo4j database. Every
// write is an UNWIND over a bounded row list with MERGE on the unique key,
// and property payloads are applied with SET += so absent keys survive.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes one Cypher statement and returns its records as maps.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string       // Optional, uses the server default if empty
	Logger   *slog.Logger // Optional, uses slog.Default() if nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("neo4j config: uri is required")
	}
	return nil
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewDriverRunner connects to Neo4j and verifies connectivity.
func NewDriverRunner(ctx context.Context, cfg Config) (Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver for %s: %w", cfg.URI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}
	return &driverRunner{driver: driver, database: cfg.Database}, nil
}

func (r *driverRunner) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: r.database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(records))
	for i, record := range records {
		rows[i] = record.AsMap()
	}
	return rows, nil
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
