package shadow

import "sync"

// Registry is a bounded, mutex-protected set of live clients. It is the
// enumeration root the Reaper walks once a second; it holds non-owning
// references only.
type Registry struct {
	mu       sync.Mutex
	capacity int
	clients  map[*Client]struct{}
}

// NewRegistry returns an empty client registry admitting at most capacity
// live clients. A capacity <= 0 is treated as unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{capacity: capacity, clients: make(map[*Client]struct{})}
}

// Add registers c as live. It fails with CodeTooManyInFlight-style capacity
// semantics -- CodeFailure, since spec's return-code taxonomy has no
// dedicated MAX_CLIENT code -- once the registry is at capacity; c is not
// added in that case.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.clients) >= r.capacity {
		return newErr("connect", CodeFailure)
	}
	r.clients[c] = struct{}{}
	return nil
}

// Remove unregisters c. Safe to call more than once.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

// Snapshot returns the currently live clients. The registry mutex is held
// only long enough to copy the pointers out, per spec 4.4 -- reaping itself
// happens with the lock released.
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len reports the number of live clients, mostly useful for tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
