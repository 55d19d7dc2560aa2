package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fintrack/internal/core"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 15 * time.Second

// HTTPClient is a Store backed by fintrack-server's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	reporter   ConnectivityReporter
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.httpClient.Timeout = d }
}

// WithReporter forwards transport reachability to r.
func WithReporter(r ConnectivityReporter) Option {
	return func(h *HTTPClient) { h.reporter = r }
}

func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the server root, also used as the probe target.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Items []json.RawMessage `json:"items"`
}

func (c *HTTPClient) Create(ctx context.Context, userID string, rec core.Record) (string, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, collectionPath(userID, rec.EntityKind()), rec, &out); err != nil {
		return "", fmt.Errorf("create %s: %w", rec.EntityKind(), err)
	}
	return out.ID, nil
}

func (c *HTTPClient) Update(ctx context.Context, userID string, rec core.Record) error {
	if rec.RecordID() == "" {
		return core.ErrMissingID
	}
	if err := c.do(ctx, http.MethodPut, documentPath(userID, rec.EntityKind(), rec.RecordID()), rec, nil); err != nil {
		return fmt.Errorf("update %s %s: %w", rec.EntityKind(), rec.RecordID(), err)
	}
	return nil
}

// Delete removes a record. A 404 means it is already gone and counts as success.
func (c *HTTPClient) Delete(ctx context.Context, userID string, entity core.Entity, id string) error {
	err := c.do(ctx, http.MethodDelete, documentPath(userID, entity, id), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	return nil
}

func (c *HTTPClient) List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, collectionPath(userID, entity), nil, &out); err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	records := make([]core.Record, 0, len(out.Items))
	for _, raw := range out.Items {
		rec, err := core.DecodeRecord(entity, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.report(false)
		}
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()
	c.report(true)

	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: errorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) report(online bool) {
	if c.reporter != nil {
		c.reporter.ReportOnline(online)
	}
}

// errorMessage extracts {"error": "..."} bodies, falling back to raw text.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(data)
}

func collectionPath(userID string, entity core.Entity) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/" + url.PathEscape(string(entity))
}

func documentPath(userID string, entity core.Entity, id string) string {
	return collectionPath(userID, entity) + "/" + url.PathEscape(id)
}
