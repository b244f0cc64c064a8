// Package router maps request paths to handlers.
//
// A Router is populated at startup and then sealed. After Seal the path table
// is never written again, so concurrent lookups need no locking.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittowire/pkg/protocol"
)

var (
	// ErrNoRoute is returned by Resolve for an empty or unregistered path.
	ErrNoRoute = errors.New("router: no route")

	// ErrSealed is returned by Register once the router has been sealed.
	ErrSealed = errors.New("router: sealed, registration refused")
)

// Handler produces a response for a request.
//
// ServeWire is called on an executor goroutine. Returning an error (or a nil
// response) makes the server answer with a generic 500 response; the
// connection itself stays healthy.
type Handler interface {
	ServeWire(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// ServeWire calls f(ctx, req).
func (f HandlerFunc) ServeWire(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Router is a path to handler table.
type Router struct {
	mu     sync.Mutex
	routes map[string]Handler

	sealed atomic.Bool
	frozen map[string]Handler
}

// New returns an empty, unsealed router.
func New() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Register binds path to h. Registering the same path again replaces the
// previous handler.
func (r *Router) Register(path string, h Handler) error {
	if path == "" {
		return fmt.Errorf("router: empty path")
	}
	if h == nil {
		return fmt.Errorf("router: nil handler for %q", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%w: %q", ErrSealed, path)
	}
	r.routes[path] = h
	return nil
}

// Seal freezes the table. Further Register calls fail with ErrSealed.
// Sealing twice is harmless.
func (r *Router) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return
	}
	r.frozen = r.routes
	r.routes = nil
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Router) Sealed() bool {
	return r.sealed.Load()
}

// Resolve returns the handler registered for path.
//
// Lookups on a sealed router read the frozen table without locking; an
// unsealed router (tests, startup) is read under the mutex.
func (r *Router) Resolve(path string) (Handler, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNoRoute)
	}

	var h Handler
	if r.sealed.Load() {
		h = r.frozen[path]
	} else {
		r.mu.Lock()
		if r.sealed.Load() {
			h = r.frozen[path]
		} else {
			h = r.routes[path]
		}
		r.mu.Unlock()
	}

	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoRoute, path)
	}
	return h, nil
}

// Paths returns the registered paths in sorted order.
func (r *Router) Paths() []string {
	var table map[string]Handler
	if r.sealed.Load() {
		table = r.frozen
	} else {
		r.mu.Lock()
		defer r.mu.Unlock()
		table = r.routes
		if table == nil {
			table = r.frozen
		}
	}

	paths := make([]string, 0, len(table))
	for p := range table {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
