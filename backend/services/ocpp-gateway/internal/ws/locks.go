package ws

import (
	"sync"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
)

// identityLocks hands out one mutex per station identity. Entries are dropped once no
// goroutine holds or waits for them.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// lock blocks until the identity is free and returns the matching unlock.
func (l *identityLocks) lock(identity string) func() {
	key := models.StationKey(identity)

	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &identityLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
