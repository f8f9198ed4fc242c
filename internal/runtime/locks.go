package runtime

import (
	"context"
	"sync"
)

// DestinationLocks serializes runs that load into the same destination.
// Keys are connector.Destination.Key() values. The zero value is not usable;
// call NewDestinationLocks.
type DestinationLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewDestinationLocks creates an empty lock set.
func NewDestinationLocks() *DestinationLocks {
	return &DestinationLocks{slots: make(map[string]chan struct{})}
}

func (l *DestinationLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Lock blocks until the destination is free or ctx is done.
// The returned function releases the lock and must be called exactly once.
func (l *DestinationLocks) Lock(ctx context.Context, key string) (func(), error) {
	s := l.slot(key)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the destination lock without blocking.
func (l *DestinationLocks) TryLock(key string) (func(), bool) {
	s := l.slot(key)
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	default:
		return nil, false
	}
}
