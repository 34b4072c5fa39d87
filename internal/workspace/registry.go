package workspace

import (
	"log/slog"
	"sync"
	"time"
)

// Registry maps console session ids to workspaces.
type Registry struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewRegistry(deps Deps) (*Registry, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{deps: deps, logger: logger, now: time.Now, items: make(map[string]*Workspace)}, nil
}

// Get returns the workspace for id, creating it on first use. A new
// workspace restores its persisted session on its first Run.
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.items[id]; ok {
		return w, nil
	}
	w, err := newWorkspace(id, r.deps, r.now())
	if err != nil {
		return nil, err
	}
	r.items[id] = w
	return w, nil
}

// Drop forgets a workspace. Its persisted session is left alone.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	w, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		w.close()
	}
}

// EvictIdle drops workspaces unused for longer than maxIdle and returns how
// many were dropped.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	now := r.now()
	r.mu.Lock()
	var idle []*Workspace
	for id, w := range r.items {
		if w.idleSince(now) > maxIdle {
			idle = append(idle, w)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()

	for _, w := range idle {
		w.close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle workspaces", "count", len(idle))
	}
	return len(idle)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
