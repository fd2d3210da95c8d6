// Package cortex talks to Snowflake Cortex over its REST APIs: Cortex Search
// queries, Cortex Complete, and the SQL API used to discover search services.
package cortex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds connection settings for a Cortex client.
type Config struct {
	// Account is the Snowflake account identifier (e.g. "myorg-myaccount").
	Account string
	// BaseURL overrides the URL derived from Account.
	BaseURL   string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
	Auth      Authenticator
}

// Client is a Snowflake REST client bound to one database/schema.
type Client struct {
	baseURL   string
	database  string
	schema    string
	warehouse string
	role      string
	auth      Authenticator
	client    *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = AccountURL(cfg.Account)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		database:  cfg.Database,
		schema:    cfg.Schema,
		warehouse: cfg.Warehouse,
		role:      cfg.Role,
		auth:      cfg.Auth,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// AccountURL returns the REST endpoint for a Snowflake account identifier.
// Underscores are not valid in hostnames and are replaced with hyphens.
func AccountURL(account string) string {
	host := strings.ToLower(strings.ReplaceAll(account, "_", "-"))
	return "https://" + host + ".snowflakecomputing.com"
}

// Database returns the database the client is bound to.
func (c *Client) Database() string {
	return c.database
}

// Schema returns the schema the client is bound to.
func (c *Client) Schema() string {
	return c.schema
}

// APIError is a non-2xx response from Snowflake.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("snowflake API returned %d (code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("snowflake API returned %d: %s", e.StatusCode, e.Message)
}

// newRequest builds an authorized JSON request.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chat-api-go/1.0")

	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}
	return req, nil
}

// doJSON sends a request and decodes a 2xx JSON response into out.
// It returns the HTTP status so callers can handle 202 responses.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func parseAPIError(status int, body []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return &APIError{StatusCode: status, Code: payload.Code, Message: payload.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
