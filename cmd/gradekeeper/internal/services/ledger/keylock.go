package ledger

import (
	"sync"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
)

// keyLocker hands out one mutex per ledger key and forgets it once unused.
type keyLocker struct {
	mu    sync.Mutex
	locks map[models.LedgerKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[models.LedgerKey]*keyLock)}
}

// lock acquires every key in order and returns the matching release.
// keys must be sorted and unique.
func (k *keyLocker) lock(keys []models.LedgerKey) func() {
	held := make([]*keyLock, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
