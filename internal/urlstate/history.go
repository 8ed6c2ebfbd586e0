package urlstate

import "sync"

// Entry is one address-line entry: a path plus its raw query string
// (without the leading "?").
type Entry struct {
	Path  string
	Query string
}

// History abstracts the navigable address line. Push and Replace mutate the
// current entry; Subscribe delivers entries reached through back/forward
// navigation, never through Push or Replace.
type History interface {
	Current() Entry
	Push(Entry)
	Replace(Entry)
	Subscribe(fn func(Entry)) func()
}

// MemoryHistory is the in-process History implementation. It models a linear
// entry stack with a cursor: pushing truncates any forward entries, and
// Back/Forward move the cursor and notify pop subscribers.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int
	nextID  uint64
	subs    map[uint64]func(Entry)
}

// NewMemoryHistory seeds the history with an initial entry.
func NewMemoryHistory(initial Entry) *MemoryHistory {
	return &MemoryHistory{
		entries: []Entry{initial},
		subs:    map[uint64]func(Entry){},
	}
}

// Current returns the entry under the cursor.
func (h *MemoryHistory) Current() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.cursor]
}

// Push appends a new entry after the cursor, discarding forward entries.
func (h *MemoryHistory) Push(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.cursor+1], entry)
	h.cursor = len(h.entries) - 1
}

// Replace swaps the entry under the cursor without growing the stack.
func (h *MemoryHistory) Replace(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.cursor] = entry
}

// Subscribe registers a pop listener and returns its unsubscribe function.
func (h *MemoryHistory) Subscribe(fn func(Entry)) func() {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Back moves the cursor one entry backwards and reports whether it moved.
// Subscribers are notified with the entry that became current.
func (h *MemoryHistory) Back() bool {
	return h.seek(-1)
}

// Forward moves the cursor one entry forwards and reports whether it moved.
func (h *MemoryHistory) Forward() bool {
	return h.seek(1)
}

func (h *MemoryHistory) seek(delta int) bool {
	h.mu.Lock()
	target := h.cursor + delta
	if target < 0 || target >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.cursor = target
	entry := h.entries[h.cursor]
	subs := make([]func(Entry), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
	return true
}

// Length reports how many entries the stack holds.
func (h *MemoryHistory) Length() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
