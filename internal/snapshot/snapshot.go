// CLAUDE:SUMMARY Snapshot indexer: captures accessibility outlines with ref=eN handles and resolves refs against the page's current index only.
// Package snapshot turns a page's accessibility tree into a compact text
// outline whose interactive nodes carry ref handles (e1, e2, …). Refs are
// the coordinate system for click/type operations: they stay valid until
// the next capture of the same page replaces the index wholesale.
//
// Each page has at most one index. Capture builds a complete replacement
// and swaps it in atomically, so a concurrent resolve sees the previous
// complete index or the new one, never a mix. A ref from a superseded
// index is rejected the same way as one that never existed.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrNoSnapshot is returned when resolving a ref on a page that was
	// never captured.
	ErrNoSnapshot = errors.New("snapshot: no snapshot captured for page")
	// ErrRefNotFound is returned for refs absent from the page's current
	// index, whether stale or never issued.
	ErrRefNotFound = errors.New("snapshot: ref not found in current snapshot")
)

// Source is the page surface Capture needs. *browser.Page satisfies it;
// tests use fakes.
type Source interface {
	TargetID() string
	AXTree(ctx context.Context) ([]*proto.AccessibilityAXNode, error)
	NodeAttributes(ctx context.Context, id proto.DOMBackendNodeID) (map[string]string, error)
}

// RefTarget is what a ref resolves to: enough to act on the node and to
// tell the caller what it is acting on.
type RefTarget struct {
	Ref        string                 `json:"ref"`
	Role       string                 `json:"role"`
	Name       string                 `json:"name,omitempty"`
	BackendID  proto.DOMBackendNodeID `json:"-"`
	Generation int64                  `json:"generation"`
}

// Result is one finished capture.
type Result struct {
	Text       string    `json:"text"`
	Generation int64     `json:"generation"`
	RefCount   int       `json:"ref_count"`
	NodeCount  int       `json:"node_count"`
	Truncated  bool      `json:"truncated,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// index is one generation of a page's ref table. Immutable once built;
// replaced as a whole by the next capture.
type index struct {
	generation int64
	capturedAt time.Time
	refs       map[string]RefTarget
}

// Indexer owns the per-page ref indexes, keyed by CDP target id.
type Indexer struct {
	maxNodes int
	logger   *slog.Logger

	mu    sync.RWMutex
	pages map[string]*index
}

// New creates an Indexer. maxNodes caps how many outline lines one
// capture renders; zero means the default of 4096.
func New(maxNodes int, logger *slog.Logger) *Indexer {
	if maxNodes <= 0 {
		maxNodes = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		maxNodes: maxNodes,
		logger:   logger,
		pages:    make(map[string]*index),
	}
}

// Capture walks the page's full accessibility tree, renders the outline,
// and replaces the page's ref index with the freshly built one. Every ref
// handed out by earlier captures of this page is invalidated by the swap.
func (ix *Indexer) Capture(ctx context.Context, src Source) (*Result, error) {
	nodes, err := src.AXTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: fetch accessibility tree: %w", err)
	}

	w := walk(ctx, src, nodes, ix.maxNodes)
	now := time.Now()
	targetID := src.TargetID()

	ix.mu.Lock()
	gen := int64(1)
	if old := ix.pages[targetID]; old != nil {
		gen = old.generation + 1
	}
	ix.pages[targetID] = &index{generation: gen, capturedAt: now, refs: w.refs}
	ix.mu.Unlock()

	ix.logger.Info("snapshot: captured",
		"target", targetID,
		"generation", gen,
		"nodes", len(w.lines),
		"refs", len(w.refs),
		"truncated", w.truncated)

	return &Result{
		Text:       w.text(),
		Generation: gen,
		RefCount:   len(w.refs),
		NodeCount:  len(w.lines),
		Truncated:  w.truncated,
		CapturedAt: now,
	}, nil
}

// Resolve looks a ref up in the page's current index. Refs from
// superseded captures and refs that never existed fail identically with
// ErrRefNotFound; a page that was never captured fails with ErrNoSnapshot.
func (ix *Indexer) Resolve(targetID, ref string) (RefTarget, error) {
	ix.mu.RLock()
	idx := ix.pages[targetID]
	ix.mu.RUnlock()

	if idx == nil {
		return RefTarget{}, ErrNoSnapshot
	}
	target, ok := idx.refs[ref]
	if !ok {
		return RefTarget{}, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	target.Generation = idx.generation
	return target, nil
}

// Generation returns the current index generation for a page, or 0 when
// the page was never captured.
func (ix *Indexer) Generation(targetID string) int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if idx := ix.pages[targetID]; idx != nil {
		return idx.generation
	}
	return 0
}

// Drop forgets a page's index. Called when the page closes; subsequent
// resolves for the target fail with ErrNoSnapshot.
func (ix *Indexer) Drop(targetID string) {
	ix.mu.Lock()
	delete(ix.pages, targetID)
	ix.mu.Unlock()
}
