// CLAUDE:SUMMARY Thin HTTP client for the tabkeeper control port — page handles by name, sentinel error mapping, no client-side session state.
// Package client talks to a tabkeeper daemon over its HTTP control port.
//
// The client is deliberately thin: it holds the base URL, the auth token,
// and nothing else. A Page handle is just a name; the page itself lives in
// the daemon. Dropping a Client, closing its connections, or crashing the
// process never tears down server-side pages — that is the point of the
// daemon. Only ClosePage does.
//
// Usage:
//
//	c, err := client.Dial("http://127.0.0.1:8377", client.WithToken(token))
//	p, err := c.Page(ctx, "checkout")
//	snap, err := p.Snapshot(ctx)
//	_, err = p.Click(ctx, "e12")
package client

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

	"github.com/hazyhaar/tabkeeper"
)

const defaultTimeout = 60 * time.Second

// Client talks to one tabkeeper daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Dial creates a Client for the daemon at baseURL. No connection is made;
// use Ping to probe reachability.
func Dial(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("client: base url must be absolute http(s), got %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping probes the daemon's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status reports daemon health and page count.
func (c *Client) Status(ctx context.Context) (*tabkeeper.ServerStatus, error) {
	var st tabkeeper.ServerStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns every live page session on the daemon.
func (c *Client) List(ctx context.Context) ([]*tabkeeper.PageInfo, error) {
	var out struct {
		Pages []*tabkeeper.PageInfo `json:"pages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/pages", nil, &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Page returns a handle for the named session, creating the page on the
// daemon when it does not exist yet.
func (c *Client) Page(ctx context.Context, name string) (*Page, error) {
	var info tabkeeper.PageInfo
	if err := c.do(ctx, http.MethodPost, pagePath(name), nil, &info); err != nil {
		return nil, err
	}
	return &Page{c: c, name: name}, nil
}

// ClosePage tears down the named page on the daemon. This is the only
// client call that destroys server-side state.
func (c *Client) ClosePage(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, pagePath(name), nil, nil)
}

// CloseIdle drops pooled connections. Server pages are unaffected.
func (c *Client) CloseIdle() {
	c.http.CloseIdleConnections()
}

// Page is a handle on one named session. It carries no state; every call
// goes to the daemon.
type Page struct {
	c    *Client
	name string
}

// Name returns the session name this handle addresses.
func (p *Page) Name() string { return p.name }

// Info fetches the page's current URL, title, and target id.
func (p *Page) Info(ctx context.Context) (*tabkeeper.PageInfo, error) {
	var info tabkeeper.PageInfo
	if err := p.c.do(ctx, http.MethodPost, pagePath(p.name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Navigate drives the page to an absolute http(s) URL.
func (p *Page) Navigate(ctx context.Context, pageURL string) (*tabkeeper.PageInfo, error) {
	var info tabkeeper.PageInfo
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/navigate",
		map[string]string{"url": pageURL}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Snapshot captures a fresh accessibility outline. Refs from earlier
// snapshots of this page become invalid.
func (p *Page) Snapshot(ctx context.Context) (*tabkeeper.SnapshotResult, error) {
	var res tabkeeper.SnapshotResult
	if err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/snapshot", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns the page's snapshot audit log, newest first. limit <= 0
// uses the server default.
func (p *Page) History(ctx context.Context, limit int) ([]*tabkeeper.SnapshotLogEntry, error) {
	path := pagePath(p.name) + "/snapshots"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Snapshots []*tabkeeper.SnapshotLogEntry `json:"snapshots"`
	}
	if err := p.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

// ResolveRef describes what a ref from the current snapshot points at.
func (p *Page) ResolveRef(ctx context.Context, ref string) (*tabkeeper.RefInfo, error) {
	var info tabkeeper.RefInfo
	if err := p.c.do(ctx, http.MethodGet, pagePath(p.name)+"/refs/"+url.PathEscape(ref), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Click clicks the element a current-snapshot ref points at.
func (p *Page) Click(ctx context.Context, ref string) (*tabkeeper.ActionResult, error) {
	var res tabkeeper.ActionResult
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/click",
		map[string]string{"ref": ref}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Type replaces the text of the element a ref points at, pressing Enter
// afterwards when submit is set.
func (p *Page) Type(ctx context.Context, ref, text string, submit bool) (*tabkeeper.ActionResult, error) {
	var res tabkeeper.ActionResult
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/type",
		map[string]any{"ref": ref, "text": text, "submit": submit}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Eval runs a JavaScript expression in the page.
func (p *Page) Eval(ctx context.Context, expression string) (*tabkeeper.EvalResult, error) {
	var res tabkeeper.EvalResult
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/eval",
		map[string]string{"expression": expression}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Screenshot saves a PNG of the page to a file on the daemon host.
func (p *Page) Screenshot(ctx context.Context, path string, fullPage bool) (*tabkeeper.ArtifactResult, error) {
	var res tabkeeper.ArtifactResult
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/screenshot",
		map[string]any{"path": path, "full_page": fullPage}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// PDF prints the page to a PDF file on the daemon host.
func (p *Page) PDF(ctx context.Context, path string) (*tabkeeper.ArtifactResult, error) {
	var res tabkeeper.ArtifactResult
	err := p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/pdf",
		map[string]string{"path": path}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Markdown extracts the page's readable content.
func (p *Page) Markdown(ctx context.Context) (*tabkeeper.MarkdownResult, error) {
	var res tabkeeper.MarkdownResult
	if err := p.c.do(ctx, http.MethodGet, pagePath(p.name)+"/markdown", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Wait blocks until the page reaches a state: tabkeeper.WaitLoad,
// WaitStable, or WaitIdle. timeout <= 0 uses the server default.
func (p *Page) Wait(ctx context.Context, state string, timeout time.Duration) error {
	return p.c.do(ctx, http.MethodPost, pagePath(p.name)+"/wait",
		map[string]any{"state": state, "timeout_ms": timeout.Milliseconds()}, nil)
}

// WaitLoad waits for the page's load event.
func (p *Page) WaitLoad(ctx context.Context) error {
	return p.Wait(ctx, tabkeeper.WaitLoad, 0)
}

// WaitStable waits for the DOM to go quiet.
func (p *Page) WaitStable(ctx context.Context) error {
	return p.Wait(ctx, tabkeeper.WaitStable, 0)
}

// WaitIdle waits for the network to go idle.
func (p *Page) WaitIdle(ctx context.Context) error {
	return p.Wait(ctx, tabkeeper.WaitIdle, 0)
}

// Close tears down this page on the daemon.
func (p *Page) Close(ctx context.Context) error {
	return p.c.ClosePage(ctx, p.name)
}

// APIError is a non-2xx response from the daemon. It unwraps to the same
// sentinel the server mapped the failure from, so errors.Is against
// tabkeeper.ErrPageNotFound and friends works across the wire.
type APIError struct {
	Status   int
	Code     string
	Message  string
	sentinel error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %s (HTTP %d, %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Unwrap() error { return e.sentinel }

// codeSentinels maps wire error codes back to the daemon's sentinels.
var codeSentinels = map[string]error{
	"page_not_found": tabkeeper.ErrPageNotFound,
	"ref_not_found":  tabkeeper.ErrRefNotFound,
	"no_snapshot":    tabkeeper.ErrNoSnapshot,
	"invalid_name":   tabkeeper.ErrInvalidName,
	"invalid_input":  tabkeeper.ErrInvalidInput,
	"path_traversal": tabkeeper.ErrPathTraversal,
}

func pagePath(name string) string {
	return "/api/pages/" + url.PathEscape(name)
}

// do performs one request. in (when non-nil) is sent as a JSON body; out
// (when non-nil) receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wire struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || wire.Error == "" {
		wire.Error = strings.TrimSpace(string(raw))
		if wire.Error == "" {
			wire.Error = resp.Status
		}
	}
	return &APIError{
		Status:   resp.StatusCode,
		Code:     wire.Code,
		Message:  wire.Error,
		sentinel: codeSentinels[wire.Code],
	}
}
