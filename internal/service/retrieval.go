// Package service implements the chat pipeline business logic: discovery,
// retrieval, prompt assembly and completion.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/metrics"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// RetrievalError reports a failed call to the search collaborator.
type RetrievalError struct {
	Service string
	Err     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval from %q failed: %v", e.Service, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// RetrievalResult holds the formatted context block and the raw records.
type RetrievalResult struct {
	Context string
	Records []search.Record
	Latency time.Duration
}

// RetrievalService queries the selected search service and formats its hits
// as prompt context. Ordering is whatever the service returns.
type RetrievalService struct {
	searcher search.Searcher
	columns  []string
	filter   *search.Filter
}

// NewRetrievalService creates a new RetrievalService. columns and filter are
// sent with every query; filter may be nil.
func NewRetrievalService(searcher search.Searcher, columns []string, filter *search.Filter) *RetrievalService {
	return &RetrievalService{
		searcher: searcher,
		columns:  columns,
		filter:   filter,
	}
}

// DefaultFilter restricts results to one language tag, or nil when language is empty.
func DefaultFilter(language string) *search.Filter {
	if language == "" {
		return nil
	}
	return search.And(search.Eq("language", language))
}

// Query retrieves at most limit records for query from svc.
func (s *RetrievalService) Query(ctx context.Context, svc search.Descriptor, query string, limit int) (*RetrievalResult, error) {
	if limit < 1 {
		return nil, &RetrievalError{Service: svc.Name, Err: fmt.Errorf("limit must be positive, got %d", limit)}
	}

	start := time.Now()
	records, err := s.searcher.Search(ctx, search.Request{
		Service: svc.Name,
		Query:   query,
		Columns: s.columns,
		Filter:  s.filter,
		Limit:   limit,
	})
	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("retrieve").Observe(latency.Seconds())

	if err != nil {
		metrics.Errors.WithLabelValues("retrieve").Inc()
		return nil, &RetrievalError{Service: svc.Name, Err: err}
	}

	if len(records) > limit {
		slog.Warn("search service returned more results than requested",
			"service", svc.Name,
			"limit", limit,
			"returned", len(records),
		)
		records = records[:limit]
	}

	return &RetrievalResult{
		Context: FormatContext(records, svc.SearchColumn),
		Records: records,
		Latency: latency,
	}, nil
}
