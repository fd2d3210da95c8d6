// Package search defines the contracts between the chat service and the
// external retrieval collaborators (search services and their catalog).
package search

import (
	"context"
	"errors"
)

// ErrServiceNotFound is returned by a Catalog when a named service does not exist.
var ErrServiceNotFound = errors.New("search service not found")

// Descriptor describes one discoverable search service.
type Descriptor struct {
	Name         string `json:"name"`
	SearchColumn string `json:"search_column"`
}

// Request is a single retrieval query against a named search service.
type Request struct {
	Service string
	Query   string
	Columns []string
	Filter  *Filter
	Limit   int
}

// Record is one search hit, keyed by column name.
type Record map[string]any

// Catalog lists the search services available to the current database/schema.
type Catalog interface {
	ListServices(ctx context.Context) ([]string, error)
	DescribeService(ctx context.Context, name string) (Descriptor, error)
}

// Searcher runs retrieval queries. Results are returned in the order the
// service ranked them.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]Record, error)
}
