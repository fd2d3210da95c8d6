package pgsearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// Search implements search.Searcher. The FTS and vector legs run in
// parallel, each returning up to req.Limit rows, and are fused with RRF.
func (s *Store) Search(ctx context.Context, req search.Request) ([]search.Record, error) {
	if req.Limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", req.Limit)
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	def, err := s.lookup(ctx, req.Service)
	if err != nil {
		return nil, err
	}

	useVector := def.EmbeddingColumn != "" && s.embedder != nil

	var (
		wg         sync.WaitGroup
		ftsResults []search.Record
		vecResults []search.Record
		ftsErr     error
		vecErr     error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ftsResults, ftsErr = s.ftsSearch(ctx, def, req)
	}()

	if useVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecResults, vecErr = s.vectorSearch(ctx, def, req)
		}()
	}

	wg.Wait()

	if ftsErr != nil {
		return nil, fmt.Errorf("FTS search: %w", ftsErr)
	}
	if vecErr != nil {
		return nil, fmt.Errorf("vector search: %w", vecErr)
	}

	merged := MergeRRF(def.KeyColumn, s.rrfK, vecResults, ftsResults)
	if len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	slog.Debug("pgsearch query",
		"service", def.Name,
		"fts_candidates", len(ftsResults),
		"vec_candidates", len(vecResults),
		"returned", len(merged),
	)

	out := make([]search.Record, len(merged))
	for i, doc := range merged {
		out[i] = project(doc, req.Columns, def.EmbeddingColumn)
	}
	return out, nil
}

// ftsQuery builds the full-text leg: websearch_to_tsquery over the service's
// search column, ranked by ts_rank_cd.
func ftsQuery(def *serviceDef, req search.Request) (string, []any, error) {
	args := queryArgs{req.Query}
	where, err := whereFilter(req.Filter, &args)
	if err != nil {
		return "", nil, err
	}
	col := column(def.SearchColumn)
	sql := fmt.Sprintf(`
		SELECT to_jsonb(t) AS doc
		FROM %s t
		WHERE to_tsvector('english', %s) @@ websearch_to_tsquery('english', $1)
		  AND %s
		ORDER BY ts_rank_cd(to_tsvector('english', %s), websearch_to_tsquery('english', $1)) DESC
		LIMIT %s
	`, tableIdent(def.SourceTable), col, where, col, args.add(req.Limit))
	return sql, args, nil
}

// vectorQuery builds the pgvector leg ordered by cosine distance.
func vectorQuery(def *serviceDef, req search.Request, embedding []float32) (string, []any, error) {
	args := queryArgs{pgvector.NewVector(embedding)}
	where, err := whereFilter(req.Filter, &args)
	if err != nil {
		return "", nil, err
	}
	col := column(def.EmbeddingColumn)
	sql := fmt.Sprintf(`
		SELECT to_jsonb(t) AS doc
		FROM %s t
		WHERE %s IS NOT NULL
		  AND %s
		ORDER BY %s <=> $1
		LIMIT %s
	`, tableIdent(def.SourceTable), col, where, col, args.add(req.Limit))
	return sql, args, nil
}

func (s *Store) ftsSearch(ctx context.Context, def *serviceDef, req search.Request) ([]search.Record, error) {
	sql, args, err := ftsQuery(def, req)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, sql, args)
}

func (s *Store) vectorSearch(ctx context.Context, def *serviceDef, req search.Request) ([]search.Record, error) {
	embedding, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sql, args, err := vectorQuery(def, req, embedding)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, sql, args)
}

func (s *Store) collect(ctx context.Context, sql string, args []any) ([]search.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[map[string]any])
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	records := make([]search.Record, len(docs))
	for i, d := range docs {
		records[i] = search.Record(d)
	}
	return records, nil
}

// project keeps the requested columns that exist on doc. With no columns
// requested every column except the embedding is kept.
func project(doc search.Record, columns []string, embeddingColumn string) search.Record {
	out := make(search.Record, len(columns))
	if len(columns) == 0 {
		for k, v := range doc {
			if k != embeddingColumn {
				out[k] = v
			}
		}
		return out
	}
	for _, c := range columns {
		if v, ok := doc[c]; ok {
			out[c] = v
		}
	}
	return out
}
