// Package dedup tracks which team radio clips have already been announced.
//
// A [Tracker] lives for the lifetime of the process and is never persisted;
// a restart forgets everything and recent clips are announced again.
package dedup

import "sync"

// Tracker is a set of clip identifiers. All methods are safe for concurrent
// use.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// IsNew reports whether id has not been marked yet.
func (t *Tracker) IsNew(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return !ok
}

// MarkSeen records id. Marking an id twice is a no-op.
func (t *Tracker) MarkSeen(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[id] = struct{}{}
}

// Claim marks id and reports whether it was new. Check and mark happen under
// one lock, so among concurrent callers exactly one wins.
func (t *Tracker) Claim(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	return true
}

// Len returns the number of tracked identifiers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
