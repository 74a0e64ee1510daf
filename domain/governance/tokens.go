package governance

import (
	"context"
	"sort"
	"sync"
)

// TokenTable hands out logical commit tokens scoped to id sets. Proposals
// with disjoint id sets commit fully in parallel; proposals sharing an id
// serialize on it. Keys are acquired in sorted order so two proposals
// contending on overlapping sets cannot deadlock.
type TokenTable struct {
	mu    sync.Mutex
	slots map[string]*tokenSlot
}

type tokenSlot struct {
	ch   chan struct{}
	refs int
}

// NewTokenTable creates an empty token table.
func NewTokenTable() *TokenTable {
	return &TokenTable{slots: make(map[string]*tokenSlot)}
}

// Acquire takes the token for every key, blocking until all are held or
// ctx expires. On success it returns a release function; on failure it
// releases any partially acquired keys.
func (t *TokenTable) Acquire(ctx context.Context, keys []string) (func(), error) {
	sorted := dedupeSorted(keys)

	acquired := make([]string, 0, len(sorted))
	releaseAcquired := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			t.release(acquired[i])
		}
	}

	for _, key := range sorted {
		slot := t.retain(key)
		select {
		case slot.ch <- struct{}{}:
			acquired = append(acquired, key)
		case <-ctx.Done():
			t.unretain(key)
			releaseAcquired()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseAcquired) }, nil
}

func (t *TokenTable) retain(key string) *tokenSlot {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[key]
	if !ok {
		slot = &tokenSlot{ch: make(chan struct{}, 1)}
		t.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (t *TokenTable) unretain(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(t.slots, key)
	}
}

func (t *TokenTable) release(key string) {
	t.mu.Lock()
	slot, ok := t.slots[key]
	t.mu.Unlock()
	if !ok {
		return
	}
	<-slot.ch
	t.unretain(key)
}

func dedupeSorted(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)
	return sorted
}
