// Package postgrest implements store.Store against a Supabase project's
// PostgREST endpoint (/rest/v1/<table>), which is how the hosted
// deployment reaches its database.
//
// Each method is one HTTP request. PostgREST has no way to add to a column
// in place without a stored procedure, so this store does not implement
// store.Incrementer.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slapit/slapit-api/internal/store"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
	defaultTimeout    = 30 * time.Second
)

// Config holds the project URL and the service key.
type Config struct {
	URL        string
	Key        string
	HTTPClient *http.Client // optional
}

// Client talks to PostgREST over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ store.Store = (*Client)(nil)

// New validates the config and returns a Client. No request is made.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("postgrest: URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("postgrest: invalid URL: %w", err)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("postgrest: service key is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.Key,
		httpClient: hc,
	}, nil
}

// APIError is a non-constraint failure reported by PostgREST.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest: status %d: %s", e.Status, e.Message)
}

// errorBody is PostgREST's JSON error shape.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *Client) Insert(ctx context.Context, table store.Table, row store.Row) ([]store.Row, error) {
	rows, err := c.do(ctx, http.MethodPost, table, nil, row)
	if err != nil {
		return nil, fmt.Errorf("postgrest: inserting into %s: %w", table, err)
	}
	return rows, nil
}

func (c *Client) Update(ctx context.Context, table store.Table, where store.Eq, patch store.Row) ([]store.Row, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("postgrest: updating %s: empty patch", table)
	}
	q, err := filters(where)
	if err != nil {
		return nil, fmt.Errorf("postgrest: updating %s: %w", table, err)
	}
	rows, err := c.do(ctx, http.MethodPatch, table, q, patch)
	if err != nil {
		return nil, fmt.Errorf("postgrest: updating %s: %w", table, err)
	}
	return rows, nil
}

func (c *Client) Delete(ctx context.Context, table store.Table, where store.Eq) ([]store.Row, error) {
	if len(where) == 0 {
		return nil, fmt.Errorf("postgrest: deleting from %s: refusing delete without predicate", table)
	}
	q, err := filters(where)
	if err != nil {
		return nil, fmt.Errorf("postgrest: deleting from %s: %w", table, err)
	}
	rows, err := c.do(ctx, http.MethodDelete, table, q, nil)
	if err != nil {
		return nil, fmt.Errorf("postgrest: deleting from %s: %w", table, err)
	}
	return rows, nil
}

func (c *Client) Find(ctx context.Context, table store.Table, query store.Query) ([]store.Row, error) {
	q, err := filters(query.Where)
	if err != nil {
		return nil, fmt.Errorf("postgrest: finding in %s: %w", table, err)
	}
	q.Set("select", "*")

	if query.OrderBy != "" {
		if !store.ValidIdent(query.OrderBy) {
			return nil, fmt.Errorf("postgrest: finding in %s: invalid order column %q", table, query.OrderBy)
		}
		dir := "asc"
		if query.Desc {
			dir = "desc"
		}
		q.Set("order", query.OrderBy+"."+dir)
	}

	limit := query.Limit
	if query.Single {
		limit = 1
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
		if query.Offset > 0 {
			q.Set("offset", strconv.Itoa(query.Offset))
		}
	}

	rows, err := c.do(ctx, http.MethodGet, table, q, nil)
	if err != nil {
		return nil, fmt.Errorf("postgrest: finding in %s: %w", table, err)
	}
	return rows, nil
}

// Ping reads at most one profile key to prove URL and key are usable.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "auth_id")
	q.Set("limit", "1")
	if _, err := c.do(ctx, http.MethodGet, store.Profiles, q, nil); err != nil {
		return fmt.Errorf("postgrest: ping: %w", err)
	}
	return nil
}

// Close releases idle keep-alive connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// filters renders an Eq as PostgREST horizontal filters: col=eq.value, or
// col=is.null for nil.
func filters(where store.Eq) (url.Values, error) {
	q := url.Values{}
	for _, col := range where.Columns() {
		if !store.ValidIdent(col) {
			return nil, fmt.Errorf("invalid column name %q", col)
		}
		v := where[col]
		if v == nil {
			q.Set(col, "is.null")
			continue
		}
		q.Set(col, "eq."+literal(v))
	}
	return q, nil
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// do sends one request and decodes the returned representation.
func (c *Client) do(ctx context.Context, method string, table store.Table, q url.Values, body any) ([]store.Row, error) {
	if !store.ValidIdent(string(table)) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	endpoint := c.baseURL + "/rest/v1/" + string(table)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		// Without this PostgREST answers writes with 201/204 and no rows,
		// and callers could not see what was affected.
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, classify(table, resp.StatusCode, raw)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("response larger than %d bytes", maxResponseBytes)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []store.Row{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []store.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, r := range rows {
		for k, v := range r {
			r[k] = number(v)
		}
	}
	return rows, nil
}

// number turns json.Number into int64 when it is integral, float64 otherwise.
func number(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// classify turns an error response into *store.ConstraintError when the
// forwarded SQLSTATE is a constraint code, and *APIError otherwise.
func classify(table store.Table, status int, raw []byte) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || (eb.Code == "" && eb.Message == "") {
		return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	}

	if kind, ok := store.KindForSQLState(eb.Code); ok {
		msg := eb.Message
		if eb.Details != "" {
			msg += ": " + eb.Details
		}
		return &store.ConstraintError{
			Kind:    kind,
			Table:   table,
			Message: msg,
			Err:     &APIError{Status: status, Code: eb.Code, Message: eb.Message},
		}
	}

	return &APIError{Status: status, Code: eb.Code, Message: eb.Message}
}
