// Package db provides database connection pooling and startup checks.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxRetries    = 10
	retryBaseWait = 1 * time.Second
	retryMaxWait  = 10 * time.Second
)

// Querier is the read side of *pgxpool.Pool used by the startup checks.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Requirements lists what the enabled features need from the database.
type Requirements struct {
	Extensions []string
	Tables     []string
}

// RequirementsFor returns the checks for the enabled features: login needs
// the users table, the postgres search backend needs the search_services
// catalog, and vector retrieval needs the pgvector extension.
func RequirementsFor(login, searchCatalog, embeddings bool) Requirements {
	var req Requirements
	if login {
		req.Tables = append(req.Tables, "users")
	}
	if searchCatalog {
		req.Tables = append(req.Tables, "search_services")
	}
	if searchCatalog && embeddings {
		req.Extensions = append(req.Extensions, "vector")
	}
	return req
}

// Connect creates a pgx connection pool with retry logic.
// It retries up to maxRetries times with exponential backoff.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	wait := retryBaseWait

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				slog.Info("database connected", "attempt", attempt)
				return pool, nil
			} else {
				err = pingErr
				pool.Close()
			}
		}

		if attempt == maxRetries {
			return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, err)
		}

		slog.Warn("database connection failed, retrying",
			"attempt", attempt,
			"max_retries", maxRetries,
			"wait", wait.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during DB connect: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait = wait * 2
		if wait > retryMaxWait {
			wait = retryMaxWait
		}
	}

	return nil, fmt.Errorf("database connection failed: %w", err)
}

// CheckExtensions verifies that the given Postgres extensions are installed.
func CheckExtensions(ctx context.Context, q Querier, extensions []string) error {
	for _, ext := range extensions {
		var exists bool
		err := q.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)", ext,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check extension %q: %w", ext, err)
		}
		if !exists {
			return fmt.Errorf("required extension %q is not installed", ext)
		}
		slog.Debug("extension check passed", "extension", ext)
	}
	return nil
}

// CheckTables verifies that the given tables exist.
func CheckTables(ctx context.Context, q Querier, tables []string) error {
	for _, table := range tables {
		var exists bool
		err := q.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %q: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %q does not exist, run migrations first", table)
		}
		slog.Debug("table check passed", "table", table)
	}
	return nil
}

// StartupChecks runs all pre-flight checks for req.
func StartupChecks(ctx context.Context, q Querier, req Requirements) error {
	slog.Info("running startup checks...")

	if err := CheckExtensions(ctx, q, req.Extensions); err != nil {
		return fmt.Errorf("extension check failed: %w", err)
	}
	if err := CheckTables(ctx, q, req.Tables); err != nil {
		return fmt.Errorf("table check failed: %w", err)
	}

	slog.Info("startup checks passed",
		"extensions", len(req.Extensions),
		"tables", len(req.Tables),
	)
	return nil
}
