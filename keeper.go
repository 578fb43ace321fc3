// CLAUDE:SUMMARY Main tabkeeper orchestrator — wires browser manager, page registry, snapshot indexer, and store; exposes the session operations.
// Package tabkeeper is the browser-session daemon core.
//
// One tabkeeper process owns one browser and a set of named page sessions
// that outlive the clients driving them. A client resolves a name, works
// the page through accessibility snapshots and ref-addressed actions, and
// disconnects; the page stays warm (DOM, cookies, JS state) for the next
// client of that name. Pages die only on explicit close or daemon
// shutdown, never on client disconnect.
//
// Key pieces:
//   - Page registry: get-or-create by name, creation serialized per name
//   - Snapshot indexer: accessibility outlines with ref=eN handles, one
//     atomic index per page, stale refs rejected
//   - Store: sessions replayed on startup, snapshot audit log
//   - Transports: HTTP control port (cmd/tabkeeper), MCP tools,
//     connectivity handlers for in-process embedding
//
// Usage:
//
//	k, err := tabkeeper.New(cfg, logger)
//	if err := k.Start(ctx); err != nil { ... }
//	defer k.Stop(context.Background())
//	k.RegisterMCP(mcpServer)
//	k.RegisterConnectivity(router)
package tabkeeper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/tabkeeper/internal/browser"
	"github.com/hazyhaar/tabkeeper/internal/extract"
	"github.com/hazyhaar/tabkeeper/internal/metrics"
	"github.com/hazyhaar/tabkeeper/internal/registry"
	"github.com/hazyhaar/tabkeeper/internal/shield"
	"github.com/hazyhaar/tabkeeper/internal/snapshot"
	"github.com/hazyhaar/tabkeeper/internal/store"
)

// Version is reported by the status endpoint and the -version flag.
const Version = "0.3.0"

// Wait states accepted by Wait.
const (
	WaitLoad   = "load"
	WaitStable = "stable"
	WaitIdle   = "idle"
)

const (
	maxNameLen           = 128
	defaultWaitTimeout   = 10 * time.Second
	snapshotLogRetention = 7 * 24 * time.Hour
	metricsRetention     = 3 * 24 * time.Hour
	pruneInterval        = 6 * time.Hour
)

// Keeper is the main tabkeeper orchestrator.
type Keeper struct {
	cfg     *Config
	logger  *slog.Logger
	manager *browser.Manager
	pages   *registry.Registry
	index   *snapshot.Indexer
	store   *store.Store      // nil when persistence is disabled
	metrics *metrics.Recorder // nil when persistence is disabled
	md      *extract.Converter

	startedAt time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

type options struct {
	factory registry.Factory
}

// Option customises keeper construction.
type Option func(*options)

// WithPageFactory substitutes how pages are opened. Embedding hosts use
// it to decorate fresh pages; tests use it to run without a browser.
func WithPageFactory(f registry.Factory) Option {
	return func(o *options) { o.factory = f }
}

// New creates a Keeper. The session store is opened here when configured;
// the browser is not touched until Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	k := &Keeper{
		cfg:       cfg,
		logger:    logger,
		manager:   browser.NewManager(cfg.Browser, logger),
		index:     snapshot.New(cfg.Snapshot.MaxNodes, logger),
		md:        extract.NewConverter(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	factory := o.factory
	if factory == nil {
		factory = func(ctx context.Context) (browser.Tab, error) {
			return k.manager.NewPage(ctx)
		}
	}
	k.pages = registry.New(factory, logger)
	k.pages.OnEvict = func(s registry.Session) {
		k.index.Drop(s.Tab.TargetID())
	}

	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		k.store = s
		k.metrics = metrics.NewRecorder(s.DB, logger, 0, 0)
	}
	return k, nil
}

// Start connects to the browser and replays persisted sessions. Call once;
// restarting requires a new Keeper.
func (k *Keeper) Start(ctx context.Context) error {
	if err := k.manager.Start(ctx); err != nil {
		return err
	}
	k.startedAt = time.Now()

	if k.store != nil {
		k.restoreSessions(ctx)
		go k.maintain()
	}
	k.logger.Info("tabkeeper: started", "pages", k.pages.Len(), "persistent", k.store != nil)
	return nil
}

// Stop closes every page, the browser, and the store. Persisted session
// rows are kept so the next start can restore them.
func (k *Keeper) Stop(ctx context.Context) error {
	k.stopOnce.Do(func() { close(k.done) })

	k.pages.CloseAll(ctx)
	err := k.manager.Stop()
	if k.metrics != nil {
		k.metrics.Close()
	}
	if k.store != nil {
		if serr := k.store.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	k.logger.Info("tabkeeper: stopped")
	return err
}

// Store returns the session store, or nil when persistence is disabled.
// cmd/ uses it to share the rate-limit table with the HTTP middleware.
func (k *Keeper) Store() *store.Store {
	return k.store
}

// restoreSessions re-opens every persisted session. Failures are logged,
// not fatal: a URL that no longer loads must not take the daemon down.
func (k *Keeper) restoreSessions(ctx context.Context) {
	sessions, err := k.store.ListSessions(ctx)
	if err != nil {
		k.logger.Warn("tabkeeper: list persisted sessions", "error", err)
		return
	}
	for _, s := range sessions {
		tab, _, err := k.pages.Resolve(ctx, s.Name)
		if err != nil {
			k.logger.Warn("tabkeeper: restore session", "name", s.Name, "error", err)
			continue
		}
		if s.URL != "" {
			if err := tab.Navigate(ctx, s.URL); err != nil {
				k.logger.Warn("tabkeeper: restore navigate", "name", s.Name, "url", s.URL, "error", err)
			}
		}
		k.logger.Info("tabkeeper: session restored", "name", s.Name, "url", s.URL)
	}
}

// maintain prunes old snapshot-log and metrics rows until Stop.
func (k *Keeper) maintain() {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := k.store.PruneSnapshotLog(ctx, time.Now().Add(-snapshotLogRetention))
			if err != nil {
				k.logger.Warn("tabkeeper: prune snapshot log", "error", err)
			} else if n > 0 {
				k.logger.Info("tabkeeper: snapshot log pruned", "rows", n)
			}
			if n, err := k.metrics.Prune(ctx, time.Now().Add(-metricsRetention)); err != nil {
				k.logger.Warn("tabkeeper: prune metrics", "error", err)
			} else if n > 0 {
				k.logger.Info("tabkeeper: metrics pruned", "rows", n)
			}
			cancel()
		}
	}
}

// validateName enforces the session-name contract: 1-128 bytes, no '/'
// (names are path segments in the HTTP API), no control characters.
func validateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsFunc(name, unicode.IsControl) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: navigate needs an absolute http(s) url, got %q", ErrInvalidInput, rawURL)
	}
	return nil
}

// resolveTab is the entry point of every page operation: validate the
// name, get-or-create the page, persist newly created sessions.
func (k *Keeper) resolveTab(ctx context.Context, name string) (browser.Tab, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	tab, created, err := k.pages.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if created {
		k.persistNewSession(ctx, name)
	}
	return tab, nil
}

// persistNewSession records a freshly created session. An existing row is
// left alone: a page recreated after a tab crash keeps its recorded URL.
func (k *Keeper) persistNewSession(ctx context.Context, name string) {
	if k.store == nil {
		return
	}
	existing, err := k.store.GetSession(ctx, name)
	if err != nil {
		k.logger.Warn("tabkeeper: read persisted session", "name", name, "error", err)
		return
	}
	if existing != nil {
		return
	}
	if err := k.store.SaveSession(ctx, &store.Session{Name: name}); err != nil {
		k.logger.Warn("tabkeeper: persist session", "name", name, "error", err)
	}
}

// record feeds one op timing to the metrics recorder. No-op without a
// store.
func (k *Keeper) record(op, name string, start time.Time, err error) {
	if k.metrics == nil {
		return
	}
	k.metrics.Observe(op, name, start, err)
}

// persistURL records the session's current URL. Store failures degrade to
// warnings; the live page is the truth.
func (k *Keeper) persistURL(ctx context.Context, name, pageURL string) {
	if k.store == nil {
		return
	}
	if err := k.store.SaveSession(ctx, &store.Session{Name: name, URL: pageURL}); err != nil {
		k.logger.Warn("tabkeeper: persist session url", "name", name, "error", err)
	}
}

// pageInfo assembles the wire description of a live page. Meta failures
// degrade to a record without URL/title.
func (k *Keeper) pageInfo(ctx context.Context, name string, tab browser.Tab) *PageInfo {
	info := &PageInfo{Name: name, TargetID: tab.TargetID()}
	if sess, ok := k.pages.Lookup(name); ok {
		info.CreatedAt = sess.CreatedAt
	}
	meta, err := tab.Meta(ctx)
	if err != nil {
		k.logger.Warn("tabkeeper: page meta", "name", name, "error", err)
		return info
	}
	info.URL = meta.URL
	info.Title = meta.Title
	return info
}

// ResolvePage returns the page for name, creating it when absent. created
// reports whether this call opened a fresh page.
func (k *Keeper) ResolvePage(ctx context.Context, name string) (*PageInfo, bool, error) {
	if err := validateName(name); err != nil {
		return nil, false, err
	}
	tab, created, err := k.pages.Resolve(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if created {
		k.persistNewSession(ctx, name)
	}
	return k.pageInfo(ctx, name, tab), created, nil
}

// ListPages describes every live session, sorted by name.
func (k *Keeper) ListPages(ctx context.Context) []*PageInfo {
	sessions := k.pages.List()
	out := make([]*PageInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, k.pageInfo(ctx, s.Name, s.Tab))
	}
	return out
}

// ClosePage tears down the page for name and deletes its persisted row.
// The name is free for reuse afterwards; its snapshot history is kept.
func (k *Keeper) ClosePage(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	sess, ok := k.pages.Lookup(name)
	if err := k.pages.Close(ctx, name); err != nil {
		return err
	}
	if ok {
		k.index.Drop(sess.Tab.TargetID())
	}
	if k.store != nil {
		if err := k.store.DeleteSession(ctx, name); err != nil {
			k.logger.Warn("tabkeeper: delete persisted session", "name", name, "error", err)
		}
	}
	return nil
}

// Snapshot captures the page's accessibility outline and replaces its ref
// index. Every ref from earlier captures of this page is invalidated.
func (k *Keeper) Snapshot(ctx context.Context, name string) (res *SnapshotResult, err error) {
	start := time.Now()
	defer func() { k.record("snapshot", name, start, err) }()

	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	res, err = k.index.Capture(ctx, tab)
	if err != nil {
		return nil, err
	}
	if k.store != nil {
		entry := &store.SnapshotEntry{
			SessionName: name,
			TargetID:    tab.TargetID(),
			Generation:  res.Generation,
			NodeCount:   res.NodeCount,
			RefCount:    res.RefCount,
			Truncated:   res.Truncated,
			CapturedAt:  res.CapturedAt.UnixMilli(),
		}
		if err := k.store.LogSnapshot(ctx, entry); err != nil {
			k.logger.Warn("tabkeeper: log snapshot", "name", name, "error", err)
		}
	}
	return res, nil
}

// ResolveRef looks a ref up in the page's current snapshot. It never
// creates a page: an unknown name is ErrPageNotFound.
func (k *Keeper) ResolveRef(ctx context.Context, name, ref string) (*RefInfo, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	sess, ok := k.pages.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, name)
	}
	target, err := k.index.Resolve(sess.Tab.TargetID(), ref)
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// SnapshotHistory returns the capture audit log for a session, newest
// first. History survives page close; without persistence it is empty.
func (k *Keeper) SnapshotHistory(ctx context.Context, name string, limit int) ([]*SnapshotLogEntry, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if k.store == nil {
		return nil, nil
	}
	return k.store.SnapshotHistory(ctx, name, limit)
}

// Navigate drives the page to rawURL and waits for the load event. Only
// absolute http(s) URLs are accepted.
func (k *Keeper) Navigate(ctx context.Context, name, rawURL string) (info *PageInfo, err error) {
	start := time.Now()
	defer func() { k.record("navigate", name, start, err) }()

	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := tab.Navigate(ctx, rawURL); err != nil {
		return nil, err
	}
	k.persistURL(ctx, name, rawURL)
	return k.pageInfo(ctx, name, tab), nil
}

// resolveRefTarget resolves name then ref, the shared preamble of the
// ref-addressed actions.
func (k *Keeper) resolveRefTarget(ctx context.Context, name, ref string) (browser.Tab, snapshot.RefTarget, error) {
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, snapshot.RefTarget{}, err
	}
	target, err := k.index.Resolve(tab.TargetID(), ref)
	if err != nil {
		return nil, snapshot.RefTarget{}, err
	}
	return tab, target, nil
}

// Click clicks the element a ref points at. The ref must come from the
// page's current snapshot.
func (k *Keeper) Click(ctx context.Context, name, ref string) (*ActionResult, error) {
	tab, target, err := k.resolveRefTarget(ctx, name, ref)
	if err != nil {
		return nil, err
	}
	if err := tab.ClickNode(ctx, target.BackendID); err != nil {
		return nil, err
	}
	k.logger.Info("tabkeeper: clicked", "name", name, "ref", ref, "role", target.Role)
	return &ActionResult{Status: "clicked", Ref: ref}, nil
}

// Type focuses the element a ref points at, replaces its text, and
// optionally submits with Enter.
func (k *Keeper) Type(ctx context.Context, name, ref, text string, submit bool) (*ActionResult, error) {
	tab, target, err := k.resolveRefTarget(ctx, name, ref)
	if err != nil {
		return nil, err
	}
	if err := tab.TypeNode(ctx, target.BackendID, text, submit); err != nil {
		return nil, err
	}
	k.logger.Info("tabkeeper: typed", "name", name, "ref", ref, "chars", len(text), "submit", submit)
	return &ActionResult{Status: "typed", Ref: ref}, nil
}

// Eval runs a JavaScript expression in the page and returns its JSON
// value.
func (k *Keeper) Eval(ctx context.Context, name, expression string) (*EvalResult, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidInput)
	}
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	value, err := tab.Eval(ctx, expression)
	if err != nil {
		return nil, err
	}
	return &EvalResult{Value: value}, nil
}

// Screenshot captures the page to a PNG file at path, confined to
// artifacts_dir when configured.
func (k *Keeper) Screenshot(ctx context.Context, name, path string, fullPage bool) (res *ArtifactResult, err error) {
	start := time.Now()
	defer func() { k.record("screenshot", name, start, err) }()

	dest, err := k.artifactPath(path)
	if err != nil {
		return nil, err
	}
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := tab.Screenshot(ctx, fullPage)
	if err != nil {
		return nil, err
	}
	if err := writeArtifact(dest, data); err != nil {
		return nil, err
	}
	k.logger.Info("tabkeeper: screenshot written", "name", name, "path", dest, "bytes", len(data))
	return &ArtifactResult{Path: dest, Bytes: len(data)}, nil
}

// PDF prints the page to a PDF file at path. The output is validated with
// pdfcpu for the page count; a validation failure is logged and the file
// kept, with pdf_pages reported as 0.
func (k *Keeper) PDF(ctx context.Context, name, path string) (res *ArtifactResult, err error) {
	start := time.Now()
	defer func() { k.record("pdf", name, start, err) }()

	dest, err := k.artifactPath(path)
	if err != nil {
		return nil, err
	}
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := tab.PDF(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeArtifact(dest, data); err != nil {
		return nil, err
	}

	pages := 0
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		k.logger.Warn("tabkeeper: pdf validation", "name", name, "error", err)
	} else {
		pages = pdfCtx.PageCount
	}
	k.logger.Info("tabkeeper: pdf written", "name", name, "path", dest, "bytes", len(data), "pages", pages)
	return &ArtifactResult{Path: dest, Bytes: len(data), PDFPages: pages}, nil
}

// Markdown extracts the page's readable content as sanitized markdown.
func (k *Keeper) Markdown(ctx context.Context, name string) (out *MarkdownResult, err error) {
	start := time.Now()
	defer func() { k.record("markdown", name, start, err) }()

	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return nil, err
	}
	raw, err := tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	pageURL := ""
	if meta, err := tab.Meta(ctx); err == nil {
		pageURL = meta.URL
	}
	res, err := k.md.Markdown(raw, pageURL)
	if err != nil {
		return nil, err
	}
	return &MarkdownResult{
		Title:    res.Title,
		Markdown: res.Markdown,
		Bytes:    len(res.Markdown),
		Hash:     res.Hash,
	}, nil
}

// Wait blocks until the page reaches the requested state: "load" (load
// event fired), "stable" (DOM quiet), or "idle" (network idle). The
// session layer adds no implicit waits; callers wait explicitly.
func (k *Keeper) Wait(ctx context.Context, name, state string, timeout time.Duration) error {
	switch state {
	case WaitLoad, WaitStable, WaitIdle:
	default:
		return fmt.Errorf("%w: unknown wait state %q", ErrInvalidInput, state)
	}
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	tab, err := k.resolveTab(ctx, name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	switch state {
	case WaitLoad:
		return tab.WaitLoad(ctx)
	case WaitStable:
		return tab.WaitStable(ctx, 0)
	default:
		return tab.WaitIdle(ctx, timeout)
	}
}

// Status reports daemon health without touching any page.
func (k *Keeper) Status(ctx context.Context) *ServerStatus {
	return &ServerStatus{
		Status:       "ok",
		Version:      Version,
		BrowserAlive: k.manager.Alive(ctx),
		ControlURL:   k.manager.ControlURL(),
		Pages:        k.pages.Len(),
		Uptime:       time.Since(k.startedAt).Round(time.Second).String(),
	}
}

// artifactPath validates a caller-supplied screenshot/PDF destination.
func (k *Keeper) artifactPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: artifact path required", ErrInvalidInput)
	}
	return shield.SafePath(k.cfg.ArtifactsDir, path)
}

func writeArtifact(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("tabkeeper: artifact dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tabkeeper: write artifact: %w", err)
	}
	return nil
}
