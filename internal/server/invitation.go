package server

import (
	"fmt"
	"sync"

	"github.com/udisondev/oxo/internal/game"
	"github.com/udisondev/oxo/internal/protocol"
)

// invitationState is the lifecycle position of an invitation.
type invitationState int

const (
	invOpen invitationState = iota
	invAccepted
	invClosed
)

func (st invitationState) String() string {
	switch st {
	case invOpen:
		return "OPEN"
	case invAccepted:
		return "ACCEPTED"
	case invClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(st))
}

// Invitation is an offer from a source session to a target session to play
// a game, with the role each side would take. Accepting it creates the
// game; closing it ends the offer or, when a game is running, resigns it.
// The state mutex is the serialization point for every operation touching
// the pair: of two racing accept/revoke/decline/resign calls exactly one
// performs the transition and the other fails with ErrWrongState.
type Invitation struct {
	source     *Session
	target     *Session
	sourceRole protocol.Role
	targetRole protocol.Role

	mu    sync.Mutex
	state invitationState
	game  *game.Game
}

// NewInvitation creates an open invitation between two distinct sessions.
// The roles must be the two playing sides, one each.
func NewInvitation(source, target *Session, sourceRole, targetRole protocol.Role) (*Invitation, error) {
	if source == nil || target == nil || source == target {
		return nil, fmt.Errorf("invitation needs two distinct sessions")
	}
	if sourceRole == protocol.RoleNone || targetRole == protocol.RoleNone || sourceRole == targetRole {
		return nil, fmt.Errorf("invitation needs opposing roles, got %v and %v", sourceRole, targetRole)
	}
	return &Invitation{
		source:     source,
		target:     target,
		sourceRole: sourceRole,
		targetRole: targetRole,
	}, nil
}

// Source returns the session that made the invitation.
func (i *Invitation) Source() *Session { return i.source }

// Target returns the session the invitation was made to.
func (i *Invitation) Target() *Session { return i.target }

// SourceRole returns the side the source would play.
func (i *Invitation) SourceRole() protocol.Role { return i.sourceRole }

// TargetRole returns the side the target would play.
func (i *Invitation) TargetRole() protocol.Role { return i.targetRole }

// Game returns the game created by Accept, nil before that.
func (i *Invitation) Game() *game.Game {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.game
}

// Accept moves an open invitation to ACCEPTED and creates its game.
func (i *Invitation) Accept() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != invOpen {
		return fmt.Errorf("%w: cannot accept a %v invitation", ErrWrongState, i.state)
	}
	i.state = invAccepted
	i.game = game.New()
	return nil
}

// Close moves an open or accepted invitation to CLOSED. When a game exists
// it is resigned with role losing, unless it already terminated, in which
// case its outcome stands. Closing with NONE is only valid while no game
// exists.
func (i *Invitation) Close(role protocol.Role) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if role == protocol.RoleNone && i.game != nil {
		return fmt.Errorf("%w: closing a game needs a resigning side", ErrWrongState)
	}
	if i.state != invOpen && i.state != invAccepted {
		return fmt.Errorf("%w: cannot close a %v invitation", ErrWrongState, i.state)
	}
	if i.state == invAccepted && i.game != nil {
		_ = i.game.Resign(role)
	}
	i.state = invClosed
	return nil
}

// roleOf returns the side s plays in this invitation, NONE when s is
// neither participant.
func (i *Invitation) roleOf(s *Session) protocol.Role {
	switch s {
	case i.source:
		return i.sourceRole
	case i.target:
		return i.targetRole
	}
	return protocol.RoleNone
}

// peerOf returns the other participant, nil when s is neither.
func (i *Invitation) peerOf(s *Session) *Session {
	switch s {
	case i.source:
		return i.target
	case i.target:
		return i.source
	}
	return nil
}
