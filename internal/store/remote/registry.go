// Package remote is the networked tier: CRUD over HTTP against an ordered
// list of candidate endpoints with sticky failover.
package remote

import (
	"context"
	"sync"
)

// Endpoint is one candidate remote host.
type Endpoint struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Saver persists the registry configuration so it survives restarts.
type Saver interface {
	SaveEndpoints(ctx context.Context, endpoints []Endpoint, primary int) error
	LoadEndpoints(ctx context.Context) (endpoints []Endpoint, primary int, err error)
}

// Registry holds the ordered endpoint candidates and the current-primary
// pointer. The pointer moves when a backup endpoint answers a request
// (sticky failover), so access is serialized behind a mutex.
type Registry struct {
	mu        sync.Mutex
	endpoints []Endpoint
	primary   int
	saver     Saver
}

// NewRegistry constructs an empty registry. The saver may be nil.
func NewRegistry(saver Saver) *Registry {
	return &Registry{saver: saver}
}

// Configure replaces the endpoint list. With an explicit list the primary
// pointer resets to index 0; without one the registry degenerates to the
// single endpoint built from primaryURL/primaryPath.
func (r *Registry) Configure(ctx context.Context, primaryURL, primaryPath string, endpoints []Endpoint) {
	r.mu.Lock()
	if len(endpoints) > 0 {
		r.endpoints = append([]Endpoint(nil), endpoints...)
	} else {
		r.endpoints = []Endpoint{{URL: primaryURL, Path: primaryPath}}
	}
	r.primary = 0
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// Load restores a previously persisted configuration. Returns false when
// nothing was persisted.
func (r *Registry) Load(ctx context.Context) bool {
	if r.saver == nil {
		return false
	}
	endpoints, primary, err := r.saver.LoadEndpoints(ctx)
	if err != nil || len(endpoints) == 0 {
		return false
	}
	r.mu.Lock()
	r.endpoints = endpoints
	if primary < 0 || primary >= len(endpoints) {
		primary = 0
	}
	r.primary = primary
	r.mu.Unlock()
	return true
}

// CurrentOrder returns the candidates starting from the current primary,
// wrapping around, so the most recently successful endpoint is tried first.
func (r *Registry) CurrentOrder() []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := make([]Endpoint, 0, len(r.endpoints))
	for i := range r.endpoints {
		order = append(order, r.endpoints[(r.primary+i)%len(r.endpoints)])
	}
	return order
}

// Promote makes ep the new primary. Reports whether the pointer moved.
func (r *Registry) Promote(ctx context.Context, ep Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.endpoints {
		if candidate == ep {
			if i == r.primary {
				return false
			}
			r.primary = i
			r.persistLocked(ctx)
			return true
		}
	}
	return false
}

// Empty reports whether the registry has no candidates.
func (r *Registry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints) == 0
}

func (r *Registry) persistLocked(ctx context.Context) {
	if r.saver == nil {
		return
	}
	endpoints := append([]Endpoint(nil), r.endpoints...)
	// Persistence is best-effort; a failed save only costs the sticky
	// pointer on the next restart.
	_ = r.saver.SaveEndpoints(ctx, endpoints, r.primary)
}
