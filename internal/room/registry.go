package room

import (
	"iter"
	"slices"
	"sync"
)

type registryEntry struct {
	conn    Conn
	handler MessageHandler
	seq     uint64
}

// Registry tracks the connections attached to one room and the handler
// servicing each. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry // conn ID → entry
	nextSeq uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Add registers conn with handler h.
//
// Precondition: conn must be non-nil.
// Postcondition: Returns the handler now associated with conn and true if conn
// was newly registered. If conn was already registered nothing changes and
// its existing handler is returned with false.
func (r *Registry) Add(conn Conn, h MessageHandler) (MessageHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[conn.ID()]; exists {
		return e.handler, false
	}

	r.nextSeq++
	r.entries[conn.ID()] = &registryEntry{
		conn:    conn,
		handler: h,
		seq:     r.nextSeq,
	}
	return h, true
}

// Remove unregisters conn and detaches its handler from it.
//
// Postcondition: conn is no longer registered. Returns the handler that was
// detached and true, or (nil, false) if conn was not registered, in which case
// nothing happens.
func (r *Registry) Remove(conn Conn) (MessageHandler, bool) {
	r.mu.Lock()
	e, exists := r.entries[conn.ID()]
	if exists {
		delete(r.entries, conn.ID())
	}
	r.mu.Unlock()

	if !exists {
		return nil, false
	}
	if e.handler != nil {
		e.conn.DetachHandler(e.handler)
	}
	return e.handler, true
}

// Handler returns the handler registered for the given connection ID.
func (r *Registry) Handler(id string) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Contains reports whether a connection with the given ID is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sessions returns the registered connections in registration order.
// Each range over the sequence takes a fresh snapshot; connections added or
// removed while ranging are not reflected until the next range.
func (r *Registry) Sessions() iter.Seq[Conn] {
	return func(yield func(Conn) bool) {
		for _, e := range r.snapshot() {
			if !yield(e.conn) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []*registryEntry {
	r.mu.RLock()
	out := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *registryEntry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}
