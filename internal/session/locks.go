// ABOUTME: Reference-counted per-session mutexes
// ABOUTME: Entries exist only while a session id has waiters, so the table stays small

package session

import "sync"

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out one mutex per session id. A lock entry is dropped
// once the last holder releases it, so the table only grows with the
// number of sessions currently being continued.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session's mutex is held and returns the matching
// unlock function.
func (t *lockTable) lock(id string) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sessionLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
