package tabkeeper

import (
	"encoding/json"
	"time"

	"github.com/hazyhaar/tabkeeper/internal/snapshot"
	"github.com/hazyhaar/tabkeeper/internal/store"
)

// Re-exported types from the internal packages for use by cmd/ and
// external callers.
type (
	SnapshotResult   = snapshot.Result
	RefInfo          = snapshot.RefTarget
	Session          = store.Session
	SnapshotLogEntry = store.SnapshotEntry
)

// PageInfo describes one named page session.
type PageInfo struct {
	Name      string    `json:"name"`
	TargetID  string    `json:"target_id"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionResult reports a completed ref-addressed action.
type ActionResult struct {
	Status string `json:"status"`
	Ref    string `json:"ref"`
}

// EvalResult carries the JSON value an expression evaluated to.
type EvalResult struct {
	Value json.RawMessage `json:"value"`
}

// ArtifactResult reports a screenshot or PDF written to disk.
type ArtifactResult struct {
	Path     string `json:"path"`
	Bytes    int    `json:"bytes"`
	PDFPages int    `json:"pdf_pages,omitempty"`
}

// MarkdownResult is the readable extraction of a page.
type MarkdownResult struct {
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
	Bytes    int    `json:"bytes"`
	Hash     string `json:"hash"`
}

// ServerStatus is the daemon health summary.
type ServerStatus struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	BrowserAlive bool   `json:"browser_alive"`
	ControlURL   string `json:"control_url,omitempty"`
	Pages        int    `json:"pages"`
	Uptime       string `json:"uptime"`
}
