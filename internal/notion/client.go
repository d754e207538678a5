// Package notion is the REST adapter for the hosted document store.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"recurio/internal/docstore"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	DefaultVersion = "2022-06-28"

	maxAttempts    = 3
	searchPageSize = 100
)

// Client talks to the Notion API with one bearer token.
type Client struct {
	http    *http.Client
	baseURL string
	version string
	token   string
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ docstore.Store = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.version = v
		}
	}
}

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: DefaultBaseURL,
		version: DefaultVersion,
		token:   token,
		log:     slog.Default().With("component", "notion"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIError is an error body returned by the API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps API error codes onto the docstore sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "object_not_found" || e.Status == http.StatusNotFound:
		return docstore.ErrNotFound
	case e.Code == "unauthorized" || e.Code == "restricted_resource" ||
		e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return docstore.ErrUnauthorized
	case e.Code == "conflict_error" || e.Status == http.StatusConflict:
		return docstore.ErrConflict
	case e.Status == http.StatusBadRequest:
		return docstore.ErrRejected
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusBadGateway || status == http.StatusServiceUnavailable
}

func retryAfter(h http.Header, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After"))); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(attempt) * time.Second
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.version)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s %s: %w", method, path, err)
		}

		if retryable(resp.StatusCode) && attempt < maxAttempts {
			wait := retryAfter(resp.Header, attempt)
			c.log.Warn("retrying", "method", method, "path", path, "status", resp.StatusCode, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(raw))
			}
			apiErr.Status = resp.StatusCode
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}
}

func parentBody(p docstore.Parent) map[string]any {
	switch p.Type {
	case docstore.ParentDatabase:
		return map[string]any{"database_id": p.DatabaseID}
	case docstore.ParentPage:
		return map[string]any{"page_id": p.PageID}
	}
	return map[string]any{"workspace": true}
}

func (c *Client) RetrievePage(ctx context.Context, id string) (*docstore.Page, error) {
	var page docstore.Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) CreatePage(ctx context.Context, parent docstore.Parent, props docstore.Properties) (*docstore.Page, error) {
	if props == nil {
		props = docstore.Properties{}
	}
	body := map[string]any{"parent": parentBody(parent), "properties": props}
	var page docstore.Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdatePage patches a page. The API has no conditional writes, so a
// precondition is checked against a fresh read right before the patch.
func (c *Client) UpdatePage(ctx context.Context, id string, upd docstore.PageUpdate) (*docstore.Page, error) {
	if upd.Precondition != nil {
		current, err := c.RetrievePage(ctx, id)
		if err != nil {
			return nil, err
		}
		if !upd.Precondition.Holds(current) {
			return nil, fmt.Errorf("page %q %s: %w", id, upd.Precondition.Property, docstore.ErrConflict)
		}
	}

	body := map[string]any{}
	if len(upd.Properties) > 0 {
		body["properties"] = upd.Properties
	}
	if upd.Archived != nil {
		body["archived"] = *upd.Archived
	}
	var page docstore.Page
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(id), body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func filterBody(f *docstore.Filter) map[string]any {
	typ := string(f.Type)
	switch {
	case f.IsEmpty:
		return map[string]any{"property": f.Property, typ: map[string]any{"is_empty": true}}
	case f.Checked != nil:
		return map[string]any{"property": f.Property, "checkbox": map[string]any{"equals": *f.Checked}}
	}
	return map[string]any{"property": f.Property, typ: map[string]any{"equals": f.Equals}}
}

type listResponse[T any] struct {
	Results    []T     `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func (c *Client) QueryDatabase(ctx context.Context, databaseID string, q docstore.Query) (*docstore.QueryResult, error) {
	body := map[string]any{}
	if q.Filter != nil {
		body["filter"] = filterBody(q.Filter)
	}
	if q.Cursor != "" {
		body["start_cursor"] = q.Cursor
	}
	if q.PageSize > 0 {
		body["page_size"] = q.PageSize
	}
	if q.SortByLastEdited {
		body["sorts"] = []map[string]string{{"timestamp": "last_edited_time", "direction": "descending"}}
	}

	var resp listResponse[docstore.Page]
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(databaseID)+"/query", body, &resp); err != nil {
		return nil, err
	}
	res := &docstore.QueryResult{Results: resp.Results, HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		res.NextCursor = *resp.NextCursor
	}
	return res, nil
}

func (c *Client) RetrieveDatabase(ctx context.Context, id string) (*docstore.Database, error) {
	var db docstore.Database
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+url.PathEscape(id), nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

func schemaBody(schema []docstore.PropertySchema) map[string]any {
	out := make(map[string]any, len(schema))
	for _, s := range schema {
		var config any = struct{}{}
		switch s.Type {
		case docstore.TypeSelect, docstore.TypeMultiSelect, docstore.TypeStatus:
			opts := s.Options
			if opts == nil {
				opts = []docstore.Option{}
			}
			config = map[string]any{"options": opts}
		case docstore.TypeNumber:
			config = map[string]any{"format": "number"}
		}
		out[s.Name] = map[string]any{string(s.Type): config}
	}
	return out
}

func (c *Client) CreateDatabase(ctx context.Context, parent docstore.Parent, title string, schema []docstore.PropertySchema) (*docstore.Database, error) {
	p := parentBody(parent)
	p["type"] = parent.Type
	body := map[string]any{
		"parent":     p,
		"title":      docstore.Text(title),
		"properties": schemaBody(schema),
	}
	var db docstore.Database
	if err := c.do(ctx, http.MethodPost, "/v1/databases", body, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

func search[T any](ctx context.Context, c *Client, query, object string) ([]T, error) {
	var out []T
	cursor := ""
	for {
		body := map[string]any{
			"filter":    map[string]string{"property": "object", "value": object},
			"page_size": searchPageSize,
		}
		if q := strings.TrimSpace(query); q != "" {
			body["query"] = q
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var resp listResponse[T]
		if err := c.do(ctx, http.MethodPost, "/v1/search", body, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Results...)
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return out, nil
		}
		cursor = *resp.NextCursor
	}
}

func (c *Client) SearchDatabases(ctx context.Context, query string) ([]docstore.Database, error) {
	return search[docstore.Database](ctx, c, query, "database")
}

func (c *Client) SearchPages(ctx context.Context, query string) ([]docstore.Page, error) {
	return search[docstore.Page](ctx, c, query, "page")
}

// User is the identity behind a token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Bot  *struct {
		WorkspaceName string `json:"workspace_name"`
	} `json:"bot,omitempty"`
}

// Me probes the token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/v1/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// IsAuthError reports whether err means the token is no longer accepted.
func IsAuthError(err error) bool {
	return errors.Is(err, docstore.ErrUnauthorized)
}
