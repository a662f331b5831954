package services

import (
	"sort"
	"strings"
	"sync"
)

// tableLocks is an in-process advisory lock keyed by (ownerScope, table name).
// It serializes DDL against one physical table within a single instance; the
// database's own DDL locking arbitrates between instances.
type tableLocks struct {
	mu    sync.Mutex
	locks map[string]*tableLock
}

type tableLock struct {
	mu   sync.Mutex
	refs int
}

func newTableLocks() *tableLocks {
	return &tableLocks{locks: make(map[string]*tableLock)}
}

// Lock acquires every named lock in a fixed order and returns the release
// function. Names are compared case-insensitively; empty names are ignored.
func (l *tableLocks) Lock(ownerScope string, names ...string) func() {
	keys := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		k := ownerScope + "\x00" + strings.ToLower(n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	held := make([]*tableLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		tl, ok := l.locks[k]
		if !ok {
			tl = &tableLock{}
			l.locks[k] = tl
		}
		tl.refs++
		l.mu.Unlock()

		tl.mu.Lock()
		held = append(held, tl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			tl := held[i]
			tl.mu.Unlock()

			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}
