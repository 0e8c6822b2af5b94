package httpserver

import "sync"

// draftLocks serialises draft load-modify-save cycles per session ID. Entries
// are dropped once nobody holds or waits on them.
type draftLocks struct {
	mu    sync.Mutex
	locks map[string]*draftLock
}

type draftLock struct {
	mu   sync.Mutex
	refs int
}

func newDraftLocks() *draftLocks {
	return &draftLocks{locks: make(map[string]*draftLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *draftLocks) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &draftLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *draftLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
