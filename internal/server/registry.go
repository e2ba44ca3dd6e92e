package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRegistered reports a second Register for a live client id.
	ErrAlreadyRegistered = errors.New("registry: client id already registered")
	// ErrNotRegistered reports an Unregister for an id with no live entry.
	// Teardown paths may race; whichever loses receives this and must treat
	// it as "already done", not as state corruption.
	ErrNotRegistered = errors.New("registry: client id not registered")
)

type registryEntry struct {
	seq    uint64
	client *Client
}

// Registry maps live client ids to their connection handles. Every method
// is a single critical section; no I/O ever happens under the lock.
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	clients map[uuid.UUID]registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]registryEntry),
	}
}

// Register inserts a handle under its client id.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.id]; ok {
		return ErrAlreadyRegistered
	}
	r.seq++
	r.clients[c.id] = registryEntry{seq: r.seq, client: c}
	return nil
}

// Unregister removes and returns the handle for id.
func (r *Registry) Unregister(id uuid.UUID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[id]
	if !ok {
		return nil, ErrNotRegistered
	}
	delete(r.clients, id)
	return entry.client, nil
}

// Snapshot returns the live handles in join order, consistent as of one
// instant. The hub fans each event out over such a snapshot.
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	entries := make([]registryEntry, 0, len(r.clients))
	for _, entry := range r.clients {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	clients := make([]*Client, len(entries))
	for i, entry := range entries {
		clients[i] = entry.client
	}
	return clients
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Names returns the display names of live clients in join order.
func (r *Registry) Names() []string {
	clients := r.Snapshot()
	names := make([]string, len(clients))
	for i, c := range clients {
		names[i] = c.name
	}
	return names
}
