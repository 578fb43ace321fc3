// CLAUDE:SUMMARY In-process service router — local handlers with optional remote transports, used to embed tabkeeper in a host binary.
// Package connectivity provides a small service router that dispatches
// calls either locally (in-memory function call) or remotely (HTTP) by
// service name. It lets a host binary embed tabkeeper as a library and
// talk to it the same way it would talk to a remote instance.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	keeper.RegisterConnectivity(router)
//
//	// Caller doesn't know or care whether this is local or remote:
//	resp, err := router.Call(ctx, "tabkeeper_snapshot", payload)
//
// Routes are wired programmatically with SetRoute; without a remote route
// a registered local handler answers with zero network overhead.
package connectivity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Both local Go functions and remote RPC clients implement this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. The returned
// close function is called when the route is replaced or cleared; it may
// be nil when no cleanup is needed.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls. Thread-safe: reads use RLock, route
// changes use the full lock.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-memory handler for a service. Without a
// remote route for the same name, Call dispatches here directly.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a transport protocol,
// e.g. "http".
func (r *Router) RegisterTransport(protocol string, f TransportFactory) {
	r.mu.Lock()
	r.factories[protocol] = f
	r.mu.Unlock()
}

// SetRoute points a service at a remote endpoint using a registered
// transport. An existing remote route for the service is closed and
// replaced. The built-in "noop" protocol installs a handler that
// silently succeeds, which disables a service without unregistering it.
func (r *Router) SetRoute(service, protocol, endpoint string, config json.RawMessage) error {
	if protocol == "noop" {
		r.mu.Lock()
		if old, ok := r.remote[service]; ok && old.close != nil {
			old.close()
		}
		r.remote[service] = remoteEntry{handler: noopHandler}
		r.mu.Unlock()
		r.logger.Info("route set", "service", service, "protocol", protocol)
		return nil
	}

	r.mu.RLock()
	factory, ok := r.factories[protocol]
	r.mu.RUnlock()
	if !ok {
		return &ErrNoFactory{Service: service, Protocol: protocol}
	}

	h, closeFn, err := factory(endpoint, config)
	if err != nil {
		return &ErrFactoryFailed{Service: service, Protocol: protocol, Endpoint: endpoint, Cause: err}
	}

	r.mu.Lock()
	if old, ok := r.remote[service]; ok && old.close != nil {
		old.close()
	}
	r.remote[service] = remoteEntry{handler: h, close: closeFn}
	r.mu.Unlock()

	r.logger.Info("route set", "service", service, "protocol", protocol, "endpoint", endpoint)
	return nil
}

func noopHandler(context.Context, []byte) ([]byte, error) { return nil, nil }

// ClearRoute removes a remote route; subsequent calls fall back to the
// local handler if one is registered.
func (r *Router) ClearRoute(service string) {
	r.mu.Lock()
	if old, ok := r.remote[service]; ok {
		if old.close != nil {
			old.close()
		}
		delete(r.remote, service)
	}
	r.mu.Unlock()
}

// Call dispatches a service call. The resolution order is:
//  1. Explicit remote route (including noop) — set via SetRoute.
//  2. Local handler — registered via RegisterLocal.
//  3. Error — service not routable.
//
// Callers never need to know whether the call is local or remote.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	remote, hasRemote := r.remote[service]
	local, hasLocal := r.local[service]
	r.mu.RUnlock()

	switch {
	case hasRemote:
		r.logger.DebugContext(ctx, "routing remote", "service", service)
		return remote.handler(ctx, payload)
	case hasLocal:
		r.logger.DebugContext(ctx, "routing local", "service", service)
		return local(ctx, payload)
	default:
		return nil, &ErrServiceNotFound{Service: service}
	}
}

// Services returns the sorted union of locally registered and remotely
// routed service names.
func (r *Router) Services() []string {
	r.mu.RLock()
	seen := make(map[string]struct{}, len(r.local)+len(r.remote))
	for s := range r.local {
		seen[s] = struct{}{}
	}
	for s := range r.remote {
		seen[s] = struct{}{}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close shuts down all remote handlers. The router remains usable for
// local dispatch afterwards.
func (r *Router) Close() error {
	r.mu.Lock()
	for s, e := range r.remote {
		if e.close != nil {
			e.close()
		}
		delete(r.remote, s)
	}
	r.mu.Unlock()
	return nil
}
