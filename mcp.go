// CLAUDE:SUMMARY Registers all tabkeeper MCP tools — open, list, close, snapshot, click, type, navigate, eval, screenshot, pdf, markdown, wait, status.
package tabkeeper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabkeeper/internal/kit"
)

// RegisterMCP registers tabkeeper tools on an MCP server. Pages opened
// through these tools persist across tool calls and across MCP client
// reconnects: the session name is the handle, not the connection.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerOpenTool(srv)
	k.registerListTool(srv)
	k.registerCloseTool(srv)
	k.registerSnapshotTool(srv)
	k.registerClickTool(srv)
	k.registerTypeTool(srv)
	k.registerNavigateTool(srv)
	k.registerEvalTool(srv)
	k.registerScreenshotTool(srv)
	k.registerPDFTool(srv)
	k.registerMarkdownTool(srv)
	k.registerWaitTool(srv)
	k.registerStatusTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// pageRequest addresses a session by name; most tools start here.
type pageRequest struct {
	Name string `json:"name"`
}

func decodePageRequest(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
	var r pageRequest
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.DecodeResult{Request: &r}, nil
}

// --- open ---

func (k *Keeper) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_open",
		Description: "Open (or reattach to) a named browser page. Pages keep their DOM, cookies, and JS state between calls; reuse the same name to continue where you left off.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name, e.g. 'checkout' or 'gmail'"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		info, created, err := k.ResolvePage(ctx, r.Name)
		if err != nil {
			return nil, err
		}
		return struct {
			*PageInfo
			Created bool `json:"created"`
		}{info, created}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageRequest)
}

// --- list ---

func (k *Keeper) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_list",
		Description: "List all live page sessions with their current URL and title.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return struct {
			Pages []*PageInfo `json:"pages"`
		}{k.ListPages(ctx)}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		return &kit.DecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- close ---

func (k *Keeper) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_close",
		Description: "Close a named page session and free its browser tab. The name becomes available for a fresh page.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name to close"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		if err := k.ClosePage(ctx, r.Name); err != nil {
			return nil, err
		}
		return map[string]string{"status": "closed", "name": r.Name}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageRequest)
}

// --- snapshot ---

func (k *Keeper) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_snapshot",
		Description: "Capture an accessibility outline of the page. Interactive elements get ref=eN handles for tabkeeper_click and tabkeeper_type. Each snapshot invalidates the previous one's refs.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		return k.Snapshot(ctx, r.Name)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageRequest)
}

// --- click ---

type clickRequest struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

func (k *Keeper) registerClickTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_click",
		Description: "Click an element by its snapshot ref. Take a fresh tabkeeper_snapshot first; refs from older snapshots are rejected.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name"},
			"ref":  map[string]any{"type": "string", "description": "Element ref from the current snapshot, e.g. 'e12'"},
		}, []string{"name", "ref"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*clickRequest)
		return k.Click(ctx, r.Name, r.Ref)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r clickRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- type ---

type typeRequest struct {
	Name   string `json:"name"`
	Ref    string `json:"ref"`
	Text   string `json:"text"`
	Submit bool   `json:"submit,omitempty"`
}

func (k *Keeper) registerTypeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_type",
		Description: "Type text into an element by its snapshot ref, replacing its current value. Set submit to press Enter afterwards.",
		InputSchema: inputSchema(map[string]any{
			"name":   map[string]any{"type": "string", "description": "Session name"},
			"ref":    map[string]any{"type": "string", "description": "Element ref from the current snapshot"},
			"text":   map[string]any{"type": "string", "description": "Text to type"},
			"submit": map[string]any{"type": "boolean", "description": "Press Enter after typing (default: false)"},
		}, []string{"name", "ref", "text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*typeRequest)
		return k.Type(ctx, r.Name, r.Ref, r.Text, r.Submit)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r typeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- navigate ---

type navigateRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (k *Keeper) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_navigate",
		Description: "Navigate a page to an absolute http(s) URL and wait for the load event.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name"},
			"url":  map[string]any{"type": "string", "description": "Absolute URL, e.g. https://example.com"},
		}, []string{"name", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		return k.Navigate(ctx, r.Name, r.URL)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r navigateRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- eval ---

type evalRequest struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

func (k *Keeper) registerEvalTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_eval",
		Description: "Evaluate a JavaScript expression in the page and return its JSON value.",
		InputSchema: inputSchema(map[string]any{
			"name":       map[string]any{"type": "string", "description": "Session name"},
			"expression": map[string]any{"type": "string", "description": "JavaScript expression, e.g. 'document.title'"},
		}, []string{"name", "expression"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*evalRequest)
		return k.Eval(ctx, r.Name, r.Expression)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r evalRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- screenshot ---

type screenshotRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPage bool   `json:"full_page,omitempty"`
}

func (k *Keeper) registerScreenshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_screenshot",
		Description: "Save a PNG screenshot of the page to a file on the daemon host.",
		InputSchema: inputSchema(map[string]any{
			"name":      map[string]any{"type": "string", "description": "Session name"},
			"path":      map[string]any{"type": "string", "description": "Destination file path"},
			"full_page": map[string]any{"type": "boolean", "description": "Capture the full scroll height (default: viewport only)"},
		}, []string{"name", "path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*screenshotRequest)
		return k.Screenshot(ctx, r.Name, r.Path, r.FullPage)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r screenshotRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- pdf ---

type pdfRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (k *Keeper) registerPDFTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_pdf",
		Description: "Print the page to a PDF file on the daemon host. Reports the validated page count.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name"},
			"path": map[string]any{"type": "string", "description": "Destination file path"},
		}, []string{"name", "path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pdfRequest)
		return k.PDF(ctx, r.Name, r.Path)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r pdfRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- markdown ---

func (k *Keeper) registerMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_markdown",
		Description: "Extract the page's readable content as markdown. Better than eval for reading articles and docs.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		return k.Markdown(ctx, r.Name)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodePageRequest)
}

// --- wait ---

type waitRequest struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

func (k *Keeper) registerWaitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_wait",
		Description: "Wait for the page to reach a state after navigation or a click: 'load' (load event), 'stable' (DOM quiet), or 'idle' (network idle).",
		InputSchema: inputSchema(map[string]any{
			"name":       map[string]any{"type": "string", "description": "Session name"},
			"state":      map[string]any{"type": "string", "enum": []any{"load", "stable", "idle"}, "description": "State to wait for"},
			"timeout_ms": map[string]any{"type": "integer", "description": "Timeout in milliseconds (default: 10000)"},
		}, []string{"name", "state"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*waitRequest)
		if err := k.Wait(ctx, r.Name, r.State, time.Duration(r.TimeoutMs)*time.Millisecond); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ready", "state": r.State}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		var r waitRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.DecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- status ---

func (k *Keeper) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_status",
		Description: "Get daemon status: version, browser liveness, and live page count.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return k.Status(ctx), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.DecodeResult, error) {
		return &kit.DecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
