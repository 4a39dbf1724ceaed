package ingest

import (
	"context"
	"sync"
)

// ProjectLocks serialises work per project. Different projects proceed
// concurrently. The zero value is ready to use.
type ProjectLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// Acquire blocks until the project is free or ctx is done. The returned
// release must be called exactly once.
func (l *ProjectLocks) Acquire(ctx context.Context, projectID string) (func(), error) {
	slot := l.slot(projectID)
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *ProjectLocks) slot(projectID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	slot, ok := l.slots[projectID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[projectID] = slot
	}
	return slot
}
