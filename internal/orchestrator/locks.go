package orchestrator

import (
	"context"
	"sync"
)

// nameLocks is the process-scoped advisory lock table keyed by normalized
// element name. A lock is held only for the duration of one run; it keeps
// two concurrent requests for the same name from both passing duplicate
// detection and racing to create the same element.
type nameLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{entries: make(map[string]*lockEntry)}
}

// acquire takes the lock for a normalized name, blocking until it is free
// or the context is done. The returned waited flag tells the caller it was
// not the first acquirer and should re-validate against a fresh snapshot.
func (l *nameLocks) acquire(ctx context.Context, name string) (release func(), waited bool, err error) {
	l.mu.Lock()
	entry, ok := l.entries[name]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	drop := func() {
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, name)
		}
		l.mu.Unlock()
	}

	select {
	case entry.sem <- struct{}{}:
	default:
		waited = true
		select {
		case entry.sem <- struct{}{}:
		case <-ctx.Done():
			drop()
			return nil, false, ctx.Err()
		}
	}

	release = func() {
		<-entry.sem
		drop()
	}
	return release, waited, nil
}
