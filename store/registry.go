package store

import (
	"log/slog"
	"reflect"
	"sync"
)

// Registry holds the ordered set of readiness callbacks for a connection.
//
// Each distinct callback reference may be registered once. Callbacks fire
// in registration order, exactly once each, when Fire is called; a
// callback registered after Fire runs immediately. Entries are kept after
// firing so duplicate detection keeps working.
type Registry struct {
	logger *slog.Logger

	mu        sync.Mutex
	callbacks []func()
	ptrs      []uintptr
	fired     bool
}

// NewRegistry creates an empty Registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends a callback to the ordered sequence.
//
// Returns ErrInvalidCallback for a nil callback and ErrDuplicateCallback
// when the exact same reference is already present. If the registry has
// already fired, the callback runs immediately instead of being queued.
func (r *Registry) Register(fn func()) error {
	if fn == nil {
		return ErrInvalidCallback
	}
	ptr := reflect.ValueOf(fn).Pointer()

	r.mu.Lock()
	for _, existing := range r.ptrs {
		if existing == ptr {
			r.mu.Unlock()
			return ErrDuplicateCallback
		}
	}
	r.callbacks = append(r.callbacks, fn)
	r.ptrs = append(r.ptrs, ptr)
	fired := r.fired
	r.mu.Unlock()

	if fired {
		r.invoke(fn)
	}
	return nil
}

// Len returns the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

// Fire invokes every registered callback in registration order. Only the
// first call fires; later calls are no-ops. A panicking callback does not
// prevent subsequent callbacks from running.
func (r *Registry) Fire() {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		return
	}
	r.fired = true
	pending := make([]func(), len(r.callbacks))
	copy(pending, r.callbacks)
	r.mu.Unlock()

	for _, fn := range pending {
		r.invoke(fn)
	}
}

// invoke runs a single callback, isolating panics.
func (r *Registry) invoke(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("readiness callback panicked", "panic", p)
		}
	}()
	fn()
}
