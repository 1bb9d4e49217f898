// Package registry tracks the set of distinct sender identifiers seen
// so far. The reminder scheduler fans reminders out to this set, so a
// sender only has to message the bot once to start receiving them.
// The set is append-only for the life of the process.
package registry

import "sync"

// Registry is a mutex-guarded, append-only set of platform sender ids.
type Registry struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// Touch records a sender id and reports whether this is the first time
// it has been seen. Empty ids are ignored.
func (r *Registry) Touch(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

// Snapshot returns a copy of all known sender ids in first-seen order.
// Fan-out callers iterate the copy, so delivery never holds the lock
// and senders registered mid-iteration simply catch the next firing.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct senders seen.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
