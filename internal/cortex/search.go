package cortex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

type searchRequest struct {
	Query   string         `json:"query"`
	Columns []string       `json:"columns,omitempty"`
	Filter  *search.Filter `json:"filter,omitempty"`
	Limit   int            `json:"limit"`
}

type searchResponse struct {
	Results   []search.Record `json:"results"`
	RequestID string          `json:"request_id"`
}

// Search queries a Cortex Search service in the client's database/schema.
func (c *Client) Search(ctx context.Context, req search.Request) ([]search.Record, error) {
	if req.Service == "" {
		return nil, fmt.Errorf("search service name is required")
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	path := fmt.Sprintf("/api/v2/databases/%s/schemas/%s/cortex-search-services/%s:query",
		url.PathEscape(c.database),
		url.PathEscape(c.schema),
		url.PathEscape(req.Service),
	)

	var resp searchResponse
	if _, err := c.doJSON(ctx, http.MethodPost, path, searchRequest{
		Query:   req.Query,
		Columns: req.Columns,
		Filter:  req.Filter,
		Limit:   req.Limit,
	}, &resp); err != nil {
		return nil, fmt.Errorf("cortex search %s: %w", req.Service, err)
	}

	if resp.Results == nil {
		return []search.Record{}, nil
	}
	return resp.Results, nil
}
