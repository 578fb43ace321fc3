// CLAUDE:SUMMARY Named page registry: resolve-or-create with per-name creation serialization, liveness sweep, list and close.
// Package registry maps session names to live browser pages. Names are
// chosen by clients and outlive any single client connection: resolving
// the same name always yields the same page until it is closed or dies.
//
// Creation is serialized per name. When several callers resolve a name
// that has no page yet, exactly one creates it; the others block until
// that creation finishes and then share the result. Distinct names never
// block each other.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/tabkeeper/internal/browser"
)

// ErrNotFound is returned by Close for names with no page.
var ErrNotFound = errors.New("registry: page not found")

// Factory opens a fresh browser page for a new session name.
type Factory func(ctx context.Context) (browser.Tab, error)

// entry is one named session. ready is closed when creation finishes;
// after that exactly one of tab or err is set and never changes.
type entry struct {
	name      string
	ready     chan struct{}
	tab       browser.Tab
	err       error
	createdAt time.Time
}

// Registry owns the name-to-page table.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	// OnEvict, when set, observes pages removed by the dead-page sweep,
	// so owners of per-page state keyed by target id can release it.
	// Close does not report here; its caller already holds the session.
	OnEvict func(Session)

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Registry. The factory is invoked once per name
// that needs a page.
func New(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Resolve returns the page for name, creating it when absent. created
// reports whether this call performed the creation. Concurrent resolves
// of the same absent name share one creation; a creation failure is
// returned to every caller waiting on it and leaves no entry behind, so
// the next resolve retries from scratch.
//
// A page that stopped answering (crashed tab, killed browser) is swept
// from the table and a fresh page is created under the same name.
func (r *Registry) Resolve(ctx context.Context, name string) (tab browser.Tab, created bool, err error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[name]
		if !ok {
			e = &entry{name: name, ready: make(chan struct{}), createdAt: time.Now()}
			r.entries[name] = e
			r.mu.Unlock()
			return r.create(ctx, e)
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if e.err != nil {
			return nil, false, fmt.Errorf("registry: create page %q: %w", name, e.err)
		}

		if !e.tab.Alive(ctx) {
			r.sweep(e)
			r.logger.Warn("registry: page dead, recreating", "name", name, "target", e.tab.TargetID())
			if r.OnEvict != nil {
				r.OnEvict(Session{Name: e.name, CreatedAt: e.createdAt, Tab: e.tab})
			}
			continue
		}
		return e.tab, false, nil
	}
}

// create runs the factory for an entry this goroutine just inserted. The
// factory runs outside the registry lock so other names stay resolvable.
func (r *Registry) create(ctx context.Context, e *entry) (browser.Tab, bool, error) {
	tab, err := r.factory(ctx)
	if err != nil {
		e.err = err
		close(e.ready)
		r.sweep(e)
		return nil, false, fmt.Errorf("registry: create page %q: %w", e.name, err)
	}
	e.tab = tab
	close(e.ready)
	r.logger.Info("registry: page created", "name", e.name, "target", tab.TargetID())
	return tab, true, nil
}

// sweep removes an entry if it is still the current one for its name.
// The pointer comparison protects a successor entry created after this
// one was replaced.
func (r *Registry) sweep(e *entry) {
	r.mu.Lock()
	if r.entries[e.name] == e {
		delete(r.entries, e.name)
	}
	r.mu.Unlock()
}

// Session describes one registered page without touching the browser.
type Session struct {
	Name      string
	CreatedAt time.Time
	Tab       browser.Tab
}

// List returns all fully created sessions sorted by name. Entries still
// being created are skipped rather than waited for. No liveness probe is
// performed; a dead page stays listed until a Resolve sweeps it.
func (r *Registry) List() []Session {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.err != nil {
			continue
		}
		out = append(out, Session{Name: e.name, CreatedAt: e.createdAt, Tab: e.tab})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the session for name without creating one. Unlike
// Resolve it never blocks on an in-flight creation and never probes.
func (r *Registry) Lookup(name string) (Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	select {
	case <-e.ready:
	default:
		return Session{}, false
	}
	if e.err != nil {
		return Session{}, false
	}
	return Session{Name: e.name, CreatedAt: e.createdAt, Tab: e.tab}, true
}

// Len returns the number of registered names, including in-flight
// creations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down the page for name and frees the name for reuse. A
// creation in flight is waited for first, so the page cannot leak. Names
// with no page return ErrNotFound.
func (r *Registry) Close(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.sweep(e)
	if e.err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := e.tab.Close(); err != nil {
		r.logger.Warn("registry: close page failed", "name", name, "error", err)
	}
	r.logger.Info("registry: page closed", "name", name)
	return nil
}

// CloseAll tears down every page. Used at shutdown; errors are logged,
// not returned.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, s := range r.List() {
		if err := r.Close(ctx, s.Name); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("registry: close page failed", "name", s.Name, "error", err)
		}
	}
}
