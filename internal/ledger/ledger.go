// Package ledger provides the in-memory task ledger shared by the
// command router and the reminder scheduler. It groups task entries
// under case-normalized subjects and keeps an independent flat chore
// list. All state is volatile: the only durability mechanism is the
// portable export token (see Export/Import).
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ErrDecode reports a portable token that is not valid base64, not
// valid JSON, or not the expected document shape. The ledger is left
// untouched when Import returns it.
var ErrDecode = errors.New("ledger: malformed portable token")

// exportVersion identifies the portable document layout.
const exportVersion = 1

// Entry is one task recorded under a subject. Entries are immutable
// once created; they are only ever appended or bulk-removed.
type Entry struct {
	Category    string `json:"type"` // canonical upper-case short code (PT, ASS, WW, ...)
	Description string `json:"task"`
}

// Ledger is a mutex-guarded subject/task map plus a flat chore list.
// Every exported method is a single critical section, so concurrent
// webhook requests and scheduler ticks never observe partial updates.
type Ledger struct {
	mu       sync.Mutex
	order    []string           // subject display order (insertion order)
	subjects map[string][]Entry // canonical subject -> entries in insertion order
	chores   []string
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		subjects: make(map[string][]Entry),
	}
}

// CanonicalSubject normalizes a subject key: first letter upper, rest
// lower. "sci", "SCI" and "Sci" are the same subject.
func CanonicalSubject(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// AddTask appends an entry under the given subject, creating the
// subject if it has not been seen before. It never fails.
func (l *Ledger) AddTask(subject, category, description string) {
	key := CanonicalSubject(subject)
	entry := Entry{
		Category:    strings.ToUpper(strings.TrimSpace(category)),
		Description: strings.TrimSpace(description),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(key, entry)
}

// appendLocked adds an entry under key, registering the subject in the
// display order on first sight. Callers must hold l.mu.
func (l *Ledger) appendLocked(key string, e Entry) {
	if _, ok := l.subjects[key]; !ok {
		l.order = append(l.order, key)
	}
	l.subjects[key] = append(l.subjects[key], e)
}

// AddChore appends a chore to the flat list.
func (l *Ledger) AddChore(description string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chores = append(l.chores, strings.TrimSpace(description))
}

// ClearSubject removes a subject and all its entries. It reports
// whether anything was removed, so a second clear of the same subject
// can be answered with "nothing to clear".
func (l *Ledger) ClearSubject(subject string) bool {
	key := CanonicalSubject(subject)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subjects[key]; !ok {
		return false
	}
	delete(l.subjects, key)
	for i, s := range l.order {
		if s == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// ClearChores removes the chores at the given 1-based indices and
// returns how many were removed. Indices are deduplicated and removed
// in descending order so earlier removals do not shift later target
// positions. Out-of-range indices are silently ignored.
func (l *Ledger) ClearChores(indices []int) int {
	seen := make(map[int]struct{}, len(indices))
	targets := make([]int, 0, len(indices))
	for _, idx := range indices {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		targets = append(targets, idx)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(targets)))

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for _, idx := range targets {
		i := idx - 1
		if i < 0 || i >= len(l.chores) {
			continue
		}
		l.chores = append(l.chores[:i], l.chores[i+1:]...)
		removed++
	}
	return removed
}

// ClearAll empties both the subject map and the chore list.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = nil
	l.subjects = make(map[string][]Entry)
	l.chores = nil
}

// Chores returns a copy of the chore list in insertion order.
func (l *Ledger) Chores() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.chores))
	copy(out, l.chores)
	return out
}

// RenderSubjects produces the user-facing task listing: subjects in
// insertion order, entries within a subject in insertion order,
// 1-indexed.
func (l *Ledger) RenderSubjects() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.order) == 0 {
		return "📚 No tasks added yet."
	}

	var b strings.Builder
	for si, subject := range l.order {
		if si > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "📚 %s:", subject)
		for i, e := range l.subjects[subject] {
			fmt.Fprintf(&b, "\n  %d. %s - %s", i+1, e.Category, e.Description)
		}
	}
	return b.String()
}

// RenderChores produces the user-facing chore listing, 1-indexed.
func (l *Ledger) RenderChores() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.chores) == 0 {
		return "🧹 No chores added."
	}

	var b strings.Builder
	b.WriteString("🧹 Chores:")
	for i, c := range l.chores {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c)
	}
	return b.String()
}
