package trading

import (
	"sync"
)

// UserLocks serializes trades per user inside this process.
// Uses per-user locks instead of global lock
type UserLocks struct {
	userLocks map[int64]*sync.Mutex // Map of user_id → mutex
	mapMutex  sync.Mutex            // Protects the map itself
}

func NewUserLocks() *UserLocks {
	return &UserLocks{
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// Lock blocks until the user's mutex is held.
func (l *UserLocks) Lock(userID int64) {
	l.mapMutex.Lock()
	userMutex, ok := l.userLocks[userID]
	if !ok {
		userMutex = &sync.Mutex{}
		l.userLocks[userID] = userMutex
	}
	l.mapMutex.Unlock()

	userMutex.Lock()
}

func (l *UserLocks) Unlock(userID int64) {
	l.mapMutex.Lock()
	userMutex := l.userLocks[userID]
	l.mapMutex.Unlock()

	if userMutex != nil {
		userMutex.Unlock()
	}
}
