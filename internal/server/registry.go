package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/udisondev/oxo/internal/player"
)

// Registry tracks every live session. It enforces the session cap, answers
// who is logged in under which name, and is the rendezvous the server's
// graceful shutdown waits on: half-close everything, then wait for the
// session loops to drain themselves out of the registry.
type Registry struct {
	mu       sync.Mutex
	empty    *sync.Cond
	sessions map[net.Conn]*Session
	max      int
	draining bool
}

// NewRegistry returns a registry admitting at most max sessions.
func NewRegistry(max int) *Registry {
	r := &Registry{
		sessions: make(map[net.Conn]*Session),
		max:      max,
	}
	r.empty = sync.NewCond(&r.mu)
	return r
}

// Register creates a session for conn and inserts it. It fails when the
// registry is full, when it is draining after ShutdownAll, and when conn is
// already registered.
func (r *Registry) Register(conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return nil, fmt.Errorf("%w: shutting down", ErrCapacity)
	}
	if len(r.sessions) >= r.max {
		return nil, fmt.Errorf("%w: %d sessions", ErrCapacity, len(r.sessions))
	}
	if _, ok := r.sessions[conn]; ok {
		return nil, fmt.Errorf("connection %v already registered", conn.RemoteAddr())
	}

	s := newSession(conn, r)
	r.sessions[conn] = s
	return s, nil
}

// Unregister removes s. When the registry becomes empty every WaitForEmpty
// caller is released. Unregistering an unknown session does nothing.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.conn]; !ok {
		return
	}
	delete(r.sessions, s.conn)
	if len(r.sessions) == 0 {
		r.empty.Broadcast()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Lookup returns the session logged in under name, nil when there is none.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if p := s.Player(); p != nil && p.Name() == name {
			return s
		}
	}
	return nil
}

// AllPlayers returns a snapshot of the players behind the currently
// logged-in sessions.
func (r *Registry) AllPlayers() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]*player.Player, 0, len(r.sessions))
	for _, s := range r.sessions {
		if p := s.Player(); p != nil {
			players = append(players, p)
		}
	}
	return players
}

// login checks name uniqueness across live sessions and binds p to s, all
// under the registry mutex so two racing logins under one name cannot both
// pass the check.
func (r *Registry) login(s *Session, p *player.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Player() != nil {
		return ErrAlreadyLoggedIn
	}
	for _, other := range r.sessions {
		if other == s {
			continue
		}
		if op := other.Player(); op != nil && op.Name() == p.Name() {
			return fmt.Errorf("%w: %s", ErrNameInUse, p.Name())
		}
	}
	s.setPlayer(p)
	return nil
}

// WaitForEmpty blocks until the registry holds no sessions. It returns
// immediately when the registry is already empty; any number of callers
// may wait at once.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sessions) > 0 {
		r.empty.Wait()
	}
}

// ShutdownAll half-closes the read side of every live session's transport
// and refuses registrations from then on. Sessions are not removed here:
// each session loop sees EOF, unwinds its own invitations and unregisters
// itself, which is what lets in-flight games finish their notification
// cascade during shutdown.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draining = true
	for _, s := range r.sessions {
		s.closeRead()
	}
}
