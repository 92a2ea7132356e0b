// Package keylock provides per-key mutual exclusion with a canonical
// acquisition order, used to serialize ledger balances and order state
// transitions across concurrent matching, creation and cancellation.
package keylock

import (
	"sort"
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is a set of mutexes addressed by string key. Entries are
// created on demand and reclaimed when the last holder releases.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutexes for all given keys and returns a function that
// releases them. Keys are deduplicated and acquired in ascending order, which
// imposes a total order on acquisition: two callers addressing overlapping
// key sets can never deadlock.
func (k *KeyedMutex) Lock(keys ...string) (unlock func()) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = dedupe(sorted)

	entries := make([]*lockEntry, len(sorted))
	k.mu.Lock()
	for i, key := range sorted {
		e, ok := k.locks[key]
		if !ok {
			e = &lockEntry{}
			k.locks[key] = e
		}
		e.refs++
		entries[i] = e
	}
	k.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range sorted {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

// dedupe removes adjacent duplicates from a sorted slice.
func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
