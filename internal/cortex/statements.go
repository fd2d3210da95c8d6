package cortex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

const (
	statementsPath        = "/api/v2/statements"
	statementTimeoutSec   = 60
	statementPollInterval = 500 * time.Millisecond
)

type statementRequest struct {
	Statement string `json:"statement"`
	Timeout   int    `json:"timeout"`
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	Role      string `json:"role,omitempty"`
}

type statementResponse struct {
	Code               string      `json:"code"`
	Message            string      `json:"message"`
	StatementHandle    string      `json:"statementHandle"`
	ResultSetMetaData  resultMeta  `json:"resultSetMetaData"`
	Data               [][]*string `json:"data"`
	StatementStatusURL string      `json:"statementStatusUrl"`
}

type resultMeta struct {
	RowType []struct {
		Name string `json:"name"`
	} `json:"rowType"`
}

// Rows is a SQL API result set: column names plus string-typed cells.
type Rows struct {
	Columns []string
	Data    [][]*string
}

// Value returns the cell at row for column (case-insensitive), or "" when NULL or absent.
func (r *Rows) Value(row int, column string) string {
	for i, name := range r.Columns {
		if strings.EqualFold(name, column) {
			if row < len(r.Data) && i < len(r.Data[row]) && r.Data[row][i] != nil {
				return *r.Data[row][i]
			}
			return ""
		}
	}
	return ""
}

// Execute runs a single SQL statement through the SQL API in the client's
// database/schema context and waits for its result.
func (c *Client) Execute(ctx context.Context, statement string) (*Rows, error) {
	var resp statementResponse
	status, err := c.doJSON(ctx, http.MethodPost, statementsPath, statementRequest{
		Statement: statement,
		Timeout:   statementTimeoutSec,
		Database:  c.database,
		Schema:    c.schema,
		Warehouse: c.warehouse,
		Role:      c.role,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("execute %q: %w", statement, err)
	}

	// 202: still running, poll the handle
	for status == http.StatusAccepted {
		if resp.StatementHandle == "" {
			return nil, fmt.Errorf("execute %q: statement accepted without a handle", statement)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("execute %q: %w", statement, ctx.Err())
		case <-time.After(statementPollInterval):
		}

		handle := resp.StatementHandle
		resp = statementResponse{}
		status, err = c.doJSON(ctx, http.MethodGet, statementsPath+"/"+url.PathEscape(handle), nil, &resp)
		if err != nil {
			return nil, fmt.Errorf("poll statement %s: %w", handle, err)
		}
	}

	rows := &Rows{Data: resp.Data}
	for _, col := range resp.ResultSetMetaData.RowType {
		rows.Columns = append(rows.Columns, col.Name)
	}
	return rows, nil
}

// ListServices implements search.Catalog using SHOW CORTEX SEARCH SERVICES.
func (c *Client) ListServices(ctx context.Context) ([]string, error) {
	rows, err := c.Execute(ctx, "SHOW CORTEX SEARCH SERVICES")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows.Data))
	for i := range rows.Data {
		if name := rows.Value(i, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DescribeService implements search.Catalog using DESC CORTEX SEARCH SERVICE.
func (c *Client) DescribeService(ctx context.Context, name string) (search.Descriptor, error) {
	rows, err := c.Execute(ctx, "DESC CORTEX SEARCH SERVICE "+QuoteIdent(name))
	if err != nil {
		return search.Descriptor{}, err
	}
	if len(rows.Data) == 0 {
		return search.Descriptor{}, fmt.Errorf("%w: %s", search.ErrServiceNotFound, name)
	}

	col := rows.Value(0, "search_column")
	if col == "" {
		return search.Descriptor{}, fmt.Errorf("search service %s has no search_column", name)
	}
	return search.Descriptor{Name: name, SearchColumn: col}, nil
}

// QuoteIdent double-quotes a Snowflake identifier, escaping embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
