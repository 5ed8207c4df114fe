package adminapi

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

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Is maps status codes back onto the domain sentinels so callers can use
// errors.Is on either side of the wire.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrInvalidPattern:
		return e.StatusCode == http.StatusBadRequest
	case domain.ErrStoreUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// Client talks to a running daemon's admin API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for baseURL, e.g. "http://127.0.0.1:8081".
// A nil hc uses a client with a 30 second timeout.
func NewClient(baseURL, token string, hc *http.Client) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing admin url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, token: token, http: hc}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, nil, "application/json", bytes.NewReader(b), out)
}

func listPath(list domain.ListKind, suffix string) string {
	return "/v1/lists/" + list.String() + suffix
}

// Add stores pattern on list and reports whether it was new.
func (c *Client) Add(ctx context.Context, list domain.ListKind, pattern, note string) (AddResponse, error) {
	var out AddResponse
	err := c.doJSON(ctx, http.MethodPost, listPath(list, "/entries"), AddRequest{Pattern: pattern, Note: note}, &out)
	return out, err
}

// Remove deletes pattern from list and reports whether it was present.
func (c *Client) Remove(ctx context.Context, list domain.ListKind, pattern string) (bool, error) {
	var out RemoveResponse
	err := c.do(ctx, http.MethodDelete, listPath(list, "/entries"), url.Values{"pattern": {pattern}}, "", nil, &out)
	return out.Removed, err
}

// Clear removes every entry of list.
func (c *Client) Clear(ctx context.Context, list domain.ListKind) error {
	return c.do(ctx, http.MethodDelete, listPath(list, ""), nil, "", nil, nil)
}

// Report returns the entries of list in store order.
func (c *Client) Report(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	var out ReportResponse
	err := c.do(ctx, http.MethodGet, listPath(list, ""), nil, "", nil, &out)
	return out.Entries, err
}

// Import uploads a pattern list. contentType selects the format:
// "application/json" for an entry array, anything else for plain text.
func (c *Client) Import(ctx context.Context, list domain.ListKind, contentType string, r io.Reader) (iplist.ImportResult, error) {
	var out iplist.ImportResult
	err := c.do(ctx, http.MethodPost, listPath(list, "/import"), nil, contentType, r, &out)
	return out, err
}

// Flush drops every in-memory snapshot and cached answer.
func (c *Client) Flush(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/cache/flush", nil, "", nil, nil)
}

// Stats returns repository counters.
func (c *Client) Stats(ctx context.Context) (iplist.RepoStats, error) {
	var out iplist.RepoStats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, "", nil, &out)
	return out, err
}

// Check asks the guard for the verdict on ip.
func (c *Client) Check(ctx context.Context, ip string) (domain.Decision, error) {
	var out domain.Decision
	err := c.do(ctx, http.MethodGet, "/v1/guard/check", url.Values{"ip": {ip}}, "", nil, &out)
	return out, err
}

// Enforcement reports whether whitelist enforcement is on.
func (c *Client) Enforcement(ctx context.Context) (bool, error) {
	var out Enforcement
	err := c.do(ctx, http.MethodGet, "/v1/guard/enforcement", nil, "", nil, &out)
	return out.EnforceWhitelist, err
}

// SetEnforcement switches whitelist enforcement.
func (c *Client) SetEnforcement(ctx context.Context, on bool) error {
	return c.doJSON(ctx, http.MethodPut, "/v1/guard/enforcement", Enforcement{EnforceWhitelist: on}, nil)
}

// IsNotFound reports whether err is a 404 from the admin API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}
