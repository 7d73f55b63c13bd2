package server

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/udisondev/oxo/internal/player"
	"github.com/udisondev/oxo/internal/protocol"
)

// Session is the per-connection state: the transport, the player the
// connection is logged in as, and the invitations the session takes part
// in, keyed by small ids local to this session.
//
// Two mutexes with distinct jobs: mu guards the session state, wmu
// serializes outbound packets. An operation never holds its own mu while
// taking a peer's wmu, so cross-session notification can't deadlock.
type Session struct {
	conn net.Conn
	ip   string
	reg  *Registry

	wmu sync.Mutex

	mu          sync.Mutex
	player      *player.Player
	invitations map[int]*Invitation
}

func newSession(conn net.Conn, reg *Registry) *Session {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &Session{
		conn:        conn,
		ip:          host,
		reg:         reg,
		invitations: make(map[int]*Invitation),
	}
}

// IP returns the remote host the session connected from.
func (s *Session) IP() string { return s.ip }

// Player returns the player the session is logged in as, nil before login
// and after logout.
func (s *Session) Player() *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) setPlayer(p *player.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = p
}

// LoggedIn reports whether the session has a player.
func (s *Session) LoggedIn() bool { return s.Player() != nil }

// Send writes one framed packet to the session's transport. Exclusive
// access to the transport is held for the duration, so concurrent senders
// (the session's own loop and peers delivering notifications) never
// interleave packets.
func (s *Session) Send(hdr protocol.Header, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return protocol.WritePacket(s.conn, hdr, payload)
}

// notify sends an asynchronous notification, dropping it when the peer's
// transport is gone. The peer's own loop observes the broken connection
// and runs its exit path; nothing else to do here.
func (s *Session) notify(hdr protocol.Header, payload []byte) {
	if err := s.Send(hdr, payload); err != nil {
		slog.Debug("dropped notification", "type", hdr.Type, "remote", s.ip, "error", err)
	}
}

func (s *Session) ack(id uint8, payload []byte) {
	s.notify(protocol.Header{Type: protocol.TypeAck, ID: id}, payload)
}

func (s *Session) nack() {
	s.notify(protocol.Header{Type: protocol.TypeNack}, nil)
}

// closeRead half-closes the inbound side of the transport so a blocked
// receive returns while outbound notifications still flow. Transports
// without a real half-close get a read deadline in the past, which has the
// same effect on the session loop.
func (s *Session) closeRead() {
	type readCloser interface{ CloseRead() error }
	if rc, ok := s.conn.(readCloser); ok {
		_ = rc.CloseRead()
		return
	}
	_ = s.conn.SetReadDeadline(time.Now())
}

// addInvitation inserts inv under the smallest unused non-negative id.
// Ids are a single wire byte, so a session cannot take part in more than
// 256 invitations at once.
func (s *Session) addInvitation(inv *Invitation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := 0
	for {
		if _, ok := s.invitations[id]; !ok {
			break
		}
		id++
	}
	if id > math.MaxUint8 {
		return 0, fmt.Errorf("%w: no free invitation id", ErrCapacity)
	}
	s.invitations[id] = inv
	return id, nil
}

// invitation returns the invitation the session knows under id.
func (s *Session) invitation(id int) (*Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	return inv, ok
}

// invitationID returns the session's local id for inv.
func (s *Session) invitationID(inv *Invitation) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, known := range s.invitations {
		if known == inv {
			return id, true
		}
	}
	return 0, false
}

// removeInvitation drops inv from the session's list and returns the id it
// was known under. The id becomes reusable immediately.
func (s *Session) removeInvitation(inv *Invitation) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, known := range s.invitations {
		if known == inv {
			delete(s.invitations, id)
			return id, true
		}
	}
	return 0, false
}

// Login binds the session to p. It fails when the session already has a
// player or when another live session is logged in under the same name;
// the uniqueness check and the bind happen under the registry mutex, so
// two racing logins under one name cannot both succeed.
func (s *Session) Login(p *player.Player) error {
	return s.reg.login(s, p)
}

// Logout unwinds everything the session holds: games in progress are
// resigned, open invitations it made are revoked, open invitations it
// received are declined, and the player reference is dropped. Peers get
// the same notifications those operations always send.
func (s *Session) Logout() error {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	type entry struct {
		id  int
		inv *Invitation
	}
	entries := make([]entry, 0, len(s.invitations))
	for id, inv := range s.invitations {
		entries = append(entries, entry{id, inv})
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.inv.Game() != nil {
			if err := s.ResignGame(e.id); err != nil {
				slog.Debug("logout resign skipped", "remote", s.ip, "invitation", e.id, "error", err)
			}
			continue
		}
		var err error
		if e.inv.Source() == s {
			err = s.RevokeInvitation(e.id)
		} else {
			err = s.DeclineInvitation(e.id)
		}
		if errors.Is(err, ErrWrongState) && e.inv.Game() != nil {
			// Accepted between the snapshot and the close; resign instead.
			if err := s.ResignGame(e.id); err != nil {
				slog.Debug("logout resign skipped", "remote", s.ip, "invitation", e.id, "error", err)
			}
		}
	}

	s.setPlayer(nil)
	return nil
}

// MakeInvitation offers target a game with the given role split and
// returns the source-side id for the new invitation. The target learns its
// own id from the INVITED notification.
func (s *Session) MakeInvitation(target *Session, sourceRole, targetRole protocol.Role) (int, error) {
	inv, err := NewInvitation(s, target, sourceRole, targetRole)
	if err != nil {
		return 0, err
	}

	sourceID, err := s.addInvitation(inv)
	if err != nil {
		return 0, err
	}
	targetID, err := target.addInvitation(inv)
	if err != nil {
		s.removeInvitation(inv)
		return 0, err
	}

	var name string
	if p := s.Player(); p != nil {
		name = p.Name()
	}
	target.notify(protocol.Header{
		Type: protocol.TypeInvited,
		ID:   uint8(targetID),
		Role: targetRole,
	}, []byte(name))

	return sourceID, nil
}

// RevokeInvitation withdraws an open invitation the session made. The
// target is told under its own id for the invitation.
func (s *Session) RevokeInvitation(id int) error {
	inv, ok := s.invitation(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownInvitation, id)
	}
	if inv.Source() != s {
		return fmt.Errorf("%w: only the source revokes", ErrWrongSide)
	}
	if err := inv.Close(protocol.RoleNone); err != nil {
		return fmt.Errorf("revoking invitation %d: %w", id, err)
	}

	s.removeInvitation(inv)
	target := inv.Target()
	if targetID, ok := target.removeInvitation(inv); ok {
		target.notify(protocol.Header{Type: protocol.TypeRevoked, ID: uint8(targetID)}, nil)
	}
	return nil
}

// DeclineInvitation turns down an open invitation the session received.
// The source is told under its own id for the invitation.
func (s *Session) DeclineInvitation(id int) error {
	inv, ok := s.invitation(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownInvitation, id)
	}
	if inv.Target() != s {
		return fmt.Errorf("%w: only the target declines", ErrWrongSide)
	}
	if err := inv.Close(protocol.RoleNone); err != nil {
		return fmt.Errorf("declining invitation %d: %w", id, err)
	}

	s.removeInvitation(inv)
	source := inv.Source()
	if sourceID, ok := source.removeInvitation(inv); ok {
		source.notify(protocol.Header{Type: protocol.TypeDeclined, ID: uint8(sourceID)}, nil)
	}
	return nil
}

// AcceptInvitation accepts an open invitation the session received,
// creating the game. The source gets an ACCEPTED notification; it carries
// the initial board when the source moves first. Otherwise the board text
// is returned so the caller can hand it to the accepting client, which is
// then the one to move.
func (s *Session) AcceptInvitation(id int) (string, error) {
	inv, ok := s.invitation(id)
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrUnknownInvitation, id)
	}
	if inv.Target() != s {
		return "", fmt.Errorf("%w: only the target accepts", ErrWrongSide)
	}
	if err := inv.Accept(); err != nil {
		return "", fmt.Errorf("accepting invitation %d: %w", id, err)
	}

	state := inv.Game().Render()
	source := inv.Source()
	sourceID, ok := source.invitationID(inv)
	if !ok {
		return "", fmt.Errorf("%w: source lost invitation %d", ErrUnknownInvitation, id)
	}

	hdr := protocol.Header{Type: protocol.TypeAccepted, ID: uint8(sourceID)}
	if inv.SourceRole() == protocol.RoleFirst {
		source.notify(hdr, []byte(state))
		return "", nil
	}
	source.notify(hdr, nil)
	return state, nil
}

// MakeMove plays one move in the game behind id. The opponent gets a MOVED
// notification carrying the board after the move; a move that ends the
// game also closes the invitation, notifies both sides with ENDED and
// posts the result to the ratings.
func (s *Session) MakeMove(id int, move string) error {
	inv, ok := s.invitation(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownInvitation, id)
	}
	g := inv.Game()
	if g == nil {
		return fmt.Errorf("%w: invitation %d", ErrNoGame, id)
	}

	role := inv.roleOf(s)
	m, err := g.ParseMove(role, move)
	if err != nil {
		return fmt.Errorf("parsing move %q: %w", move, err)
	}
	if err := g.Apply(m); err != nil {
		return fmt.Errorf("applying move %v: %w", m, err)
	}

	opponent := inv.peerOf(s)
	state := g.Render()
	if oppID, ok := opponent.invitationID(inv); ok {
		opponent.notify(protocol.Header{Type: protocol.TypeMoved, ID: uint8(oppID)}, []byte(state))
	}

	if !g.Over() {
		return nil
	}
	// The closing transition decides who reports the end of the game when
	// a resignation races the final move; the loser of the race finds the
	// invitation closed and stays silent.
	if err := inv.Close(role); err != nil {
		return nil
	}
	s.endGame(inv)
	return nil
}

// ResignGame gives up the game behind id. The opponent gets RESIGNED, both
// sides get ENDED, and the result is posted to the ratings.
func (s *Session) ResignGame(id int) error {
	inv, ok := s.invitation(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownInvitation, id)
	}
	if inv.Game() == nil {
		return fmt.Errorf("%w: invitation %d", ErrNoGame, id)
	}

	if err := inv.Close(inv.roleOf(s)); err != nil {
		return fmt.Errorf("resigning invitation %d: %w", id, err)
	}

	opponent := inv.peerOf(s)
	if oppID, ok := opponent.invitationID(inv); ok {
		opponent.notify(protocol.Header{Type: protocol.TypeResigned, ID: uint8(oppID)}, nil)
	}
	s.endGame(inv)
	return nil
}

// endGame tells both sides the game is over, each under its own id for the
// invitation, removes the invitation from both lists and posts the result.
// Callers own the closed invitation: the CLOSED transition happens exactly
// once, so ENDED is delivered exactly once per side and the result is
// posted exactly once per game.
func (s *Session) endGame(inv *Invitation) {
	winner := inv.Game().Winner()

	source, target := inv.Source(), inv.Target()
	for _, sess := range []*Session{source, target} {
		if id, ok := sess.invitationID(inv); ok {
			sess.notify(protocol.Header{Type: protocol.TypeEnded, ID: uint8(id), Role: winner}, nil)
		}
	}
	source.removeInvitation(inv)
	target.removeInvitation(inv)

	sp, tp := source.Player(), target.Player()
	if sp == nil || tp == nil {
		return
	}
	r := player.Draw
	switch winner {
	case inv.SourceRole():
		r = player.Player1Wins
	case inv.TargetRole():
		r = player.Player2Wins
	}
	player.PostResult(sp, tp, r)
	slog.Info("game ended",
		"source", sp.Name(), "target", tp.Name(),
		"winner", winner,
		"source_rating", sp.RatingInt(), "target_rating", tp.RatingInt())
}
