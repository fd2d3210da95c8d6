package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// ErrNoSearchServices means discovery succeeded but found nothing to query.
var ErrNoSearchServices = errors.New("no search services found")

// DiscoveryError reports a failed call to the search catalog.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return "search service discovery failed: " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// DiscoveryService lists the search services available in the current
// database/schema and resolves each one's search column.
type DiscoveryService struct {
	catalog search.Catalog
}

// NewDiscoveryService creates a new DiscoveryService.
func NewDiscoveryService(catalog search.Catalog) *DiscoveryService {
	return &DiscoveryService{catalog: catalog}
}

// Discover returns one descriptor per available service, in catalog order.
// An empty catalog is reported as ErrNoSearchServices.
func (s *DiscoveryService) Discover(ctx context.Context) ([]search.Descriptor, error) {
	names, err := s.catalog.ListServices(ctx)
	if err != nil {
		return nil, &DiscoveryError{Err: fmt.Errorf("list search services: %w", err)}
	}

	descriptors := make([]search.Descriptor, 0, len(names))
	for _, name := range names {
		d, err := s.catalog.DescribeService(ctx, name)
		if err != nil {
			return nil, &DiscoveryError{Err: fmt.Errorf("describe search service %q: %w", name, err)}
		}
		if d.Name == "" {
			d.Name = name
		}
		descriptors = append(descriptors, d)
	}

	if len(descriptors) == 0 {
		return nil, ErrNoSearchServices
	}

	slog.Debug("search services discovered", "count", len(descriptors))
	return descriptors, nil
}
