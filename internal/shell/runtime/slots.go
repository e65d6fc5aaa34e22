package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Disposable is implemented by instances that release resources.
type Disposable interface {
	Dispose() error
}

// slot holds one shared instance. done is set only after value is
// written, so a true load needs no lock.
type slot struct {
	mu    sync.Mutex
	done  atomic.Bool
	value any
}

// slotTable is the storage of one sharing level: the composition for
// singletons, a scope for scoped instances, a single resolve call for
// per-resolve instances.
type slotTable struct {
	mu       sync.Mutex
	slots    map[string]*slot
	order    []string
	disposed bool
}

func newSlotTable() *slotTable {
	return &slotTable{slots: make(map[string]*slot)}
}

func (t *slotTable) slot(key string) (*slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, ErrDisposed
	}
	s, ok := t.slots[key]
	if !ok {
		s = &slot{}
		t.slots[key] = s
	}
	return s, nil
}

// get returns the instance for key, creating it at most once. A failed
// creation is not cached.
func (t *slotTable) get(key string, fr *frame, create func() (any, error)) (any, error) {
	s, err := t.slot(key)
	if err != nil {
		return nil, err
	}
	if s.done.Load() {
		return s.value, nil
	}
	if fr.initializing(key) {
		return nil, fmt.Errorf("%w: %s", ErrReentrant, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Load() {
		return s.value, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	s.value = v
	s.done.Store(true)

	t.mu.Lock()
	t.order = append(t.order, key)
	t.mu.Unlock()
	return v, nil
}

// dispose releases instances in reverse creation order. Every instance is
// attempted; failures and panics are collected.
func (t *slotTable) dispose(logger *slog.Logger) error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return nil
	}
	t.disposed = true
	order := t.order
	slots := t.slots
	t.order = nil
	t.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		key := order[i]
		if err := disposeValue(slots[key].value); err != nil {
			logger.Warn("dispose failed", "slot", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func disposeValue(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispose: %v", r)
		}
	}()
	switch d := v.(type) {
	case Disposable:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}
