package policy

import (
	"fmt"
	"sync/atomic"
)

// Engine holds the current policy Snapshot. Reads are lock-free; Reload
// swaps in a fully validated replacement or leaves the running snapshot
// untouched. There is no in-place mutation path.
type Engine struct {
	snap   atomic.Pointer[Snapshot]
	loader Loader
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLoader sets the Loader used by Reload.
func WithLoader(loader Loader) EngineOption {
	return func(e *Engine) {
		e.loader = loader
	}
}

// NewEngine creates an Engine serving the given initial snapshot.
func NewEngine(initial *Snapshot, opts ...EngineOption) *Engine {
	e := &Engine{}
	e.snap.Store(initial)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Current returns the snapshot in effect. The returned value is immutable
// and safe to use for the remainder of a request even across a reload.
func (e *Engine) Current() *Snapshot {
	return e.snap.Load()
}

// Reload loads a fresh snapshot and swaps it in. On any load or
// validation error the previous snapshot stays in effect.
func (e *Engine) Reload() (*Snapshot, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("no policy loader configured")
	}

	snap, err := e.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}

	e.snap.Store(snap)
	return snap, nil
}
