// Package pgsearch serves search services out of Postgres. Each service is a
// row in search_services pointing at a source table; queries run full-text
// search and, when the service has an embedding column, a pgvector leg fused
// with Reciprocal Rank Fusion.
package pgsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements search.Catalog and search.Searcher over Postgres.
type Store struct {
	db       Querier
	embedder Embedder
	rrfK     int
}

// NewStore creates a new Store. embedder may be nil, which disables the
// vector leg for every service.
func NewStore(db Querier, embedder Embedder, rrfK int) *Store {
	if rrfK < 0 {
		rrfK = 60
	}
	return &Store{db: db, embedder: embedder, rrfK: rrfK}
}

// serviceDef is one row of search_services.
type serviceDef struct {
	Name            string
	SourceTable     string
	SearchColumn    string
	KeyColumn       string
	EmbeddingColumn string
}

// ListServices implements search.Catalog.
func (s *Store) ListServices(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM search_services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list search services: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan search services: %w", err)
	}
	return names, nil
}

// DescribeService implements search.Catalog.
func (s *Store) DescribeService(ctx context.Context, name string) (search.Descriptor, error) {
	def, err := s.lookup(ctx, name)
	if err != nil {
		return search.Descriptor{}, err
	}
	return search.Descriptor{Name: def.Name, SearchColumn: def.SearchColumn}, nil
}

func (s *Store) lookup(ctx context.Context, name string) (*serviceDef, error) {
	var def serviceDef
	err := s.db.QueryRow(ctx, `
		SELECT name, source_table, search_column, key_column, COALESCE(embedding_column, '')
		FROM search_services
		WHERE name = $1
	`, name).Scan(&def.Name, &def.SourceTable, &def.SearchColumn, &def.KeyColumn, &def.EmbeddingColumn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", search.ErrServiceNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup search service %q: %w", name, err)
	}
	return &def, nil
}
