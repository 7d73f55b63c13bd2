package player

import "sync"

// Registry interns players by username. Entries live for the process
// lifetime; nothing is ever removed.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register returns the player named name, creating it on first use. Two
// sessions logging in under the same name over the process lifetime always
// observe the same object and therefore the same rating history.
func (r *Registry) Register(name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		return p
	}
	p := New(name)
	r.players[name] = p
	return p
}

// Len returns the number of interned players.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}
