package slidesync

import (
	"slices"
	"sync"
)

// HandlerFunc is the signature for typed-message handlers. It receives the
// full decoded message, discriminator included.
type HandlerFunc func(msg Message)

type handlerEntry struct {
	id    uint64
	fn    HandlerFunc
	types []string // empty means every typed message
}

func (e handlerEntry) accepts(msgType string) bool {
	return len(e.types) == 0 || slices.Contains(e.types, msgType)
}

// handlerRegistry keeps handlers in registration order. Entries are
// identified by id since funcs are not comparable.
type handlerRegistry struct {
	mu      sync.RWMutex
	entries []handlerEntry
	nextID  uint64
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{}
}

// register appends fn and returns a function that removes it. The returned
// function is safe to call more than once and from inside a dispatch.
func (r *handlerRegistry) register(fn HandlerFunc, opts ...HandlerOption) func() {
	o := handlerDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, handlerEntry{id: id, fn: fn, types: o.types})
	r.mu.Unlock()

	return func() { r.remove(id) }
}

func (r *handlerRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = slices.DeleteFunc(r.entries, func(e handlerEntry) bool {
		return e.id == id
	})
}

// snapshot returns a copy of the entries so dispatch can iterate while
// handlers register or unregister.
func (r *handlerRegistry) snapshot() []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

func (r *handlerRegistry) contains(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.entries, func(e handlerEntry) bool {
		return e.id == id
	})
}

func (r *handlerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
