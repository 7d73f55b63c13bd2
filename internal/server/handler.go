package server

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/udisondev/oxo/internal/protocol"
)

// dispatch routes one received packet. Until the session logs in only
// LOGIN is honored; afterwards LOGIN is the one type that is not. Every
// request that cannot be carried out answers with a NACK and the session
// stays alive; only transport failures end it.
func (srv *Server) dispatch(s *Session, hdr protocol.Header, payload []byte) {
	if srv.cfg.LogPackets {
		slog.Debug("packet received",
			"type", hdr.Type, "id", hdr.ID, "role", hdr.Role,
			"size", hdr.Size, "remote", s.IP())
	}

	if !s.LoggedIn() {
		if hdr.Type != protocol.TypeLogin {
			slog.Debug("packet before login", "type", hdr.Type, "remote", s.IP())
			s.nack()
			return
		}
		srv.handleLogin(s, payload)
		return
	}

	switch hdr.Type {
	case protocol.TypeLogin:
		s.nack()
	case protocol.TypeUsers:
		srv.handleUsers(s)
	case protocol.TypeInvite:
		srv.handleInvite(s, hdr, payload)
	case protocol.TypeRevoke:
		srv.handleResult(s, "revoke", s.RevokeInvitation(int(hdr.ID)))
	case protocol.TypeDecline:
		srv.handleResult(s, "decline", s.DeclineInvitation(int(hdr.ID)))
	case protocol.TypeAccept:
		srv.handleAccept(s, hdr)
	case protocol.TypeMove:
		srv.handleResult(s, "move", s.MakeMove(int(hdr.ID), string(payload)))
	case protocol.TypeResign:
		srv.handleResult(s, "resign", s.ResignGame(int(hdr.ID)))
	default:
		slog.Debug("unexpected packet type", "type", hdr.Type, "remote", s.IP())
		s.nack()
	}
}

// handleResult acks a completed request and nacks a failed one.
func (srv *Server) handleResult(s *Session, op string, err error) {
	if err != nil {
		slog.Debug("request failed", "op", op, "remote", s.IP(), "error", err)
		s.nack()
		return
	}
	s.ack(0, nil)
}

// handleLogin interns the player named by the payload and binds it to the
// session. The name must be non-empty valid UTF-8 without NUL, TAB or
// newline bytes, since TAB and newline delimit the users listing.
func (srv *Server) handleLogin(s *Session, payload []byte) {
	name := string(payload)
	if !validUsername(name) {
		slog.Debug("rejected username", "remote", s.IP())
		s.nack()
		return
	}

	p := srv.players.Register(name)
	if err := s.Login(p); err != nil {
		slog.Debug("login failed", "name", name, "remote", s.IP(), "error", err)
		s.nack()
		return
	}

	slog.Info("player logged in", "name", name, "remote", s.IP(), "rating", p.RatingInt())
	s.ack(0, nil)
}

func validUsername(name string) bool {
	if name == "" || !utf8.ValidString(name) {
		return false
	}
	return !strings.ContainsAny(name, "\x00\t\n")
}

// handleUsers answers with one line per logged-in player: the username, a
// TAB, and the rating truncated to an integer.
func (srv *Server) handleUsers(s *Session) {
	var b strings.Builder
	for _, p := range srv.registry.AllPlayers() {
		fmt.Fprintf(&b, "%s\t%d\n", p.Name(), p.RatingInt())
	}
	s.ack(0, []byte(b.String()))
}

// handleInvite offers a game to the player named by the payload. The role
// byte names the side the target would play; the source takes the other.
// The ACK carries the source's id for the new invitation.
func (srv *Server) handleInvite(s *Session, hdr protocol.Header, payload []byte) {
	target := srv.registry.Lookup(string(payload))
	if target == nil || target == s {
		slog.Debug("invite target unavailable", "target", string(payload), "remote", s.IP())
		s.nack()
		return
	}

	var sourceRole, targetRole protocol.Role
	switch hdr.Role {
	case protocol.RoleFirst:
		sourceRole, targetRole = protocol.RoleSecond, protocol.RoleFirst
	case protocol.RoleSecond:
		sourceRole, targetRole = protocol.RoleFirst, protocol.RoleSecond
	default:
		slog.Debug("invite with no role", "remote", s.IP())
		s.nack()
		return
	}

	id, err := s.MakeInvitation(target, sourceRole, targetRole)
	if err != nil {
		slog.Debug("invite failed", "remote", s.IP(), "error", err)
		s.nack()
		return
	}
	s.ack(uint8(id), nil)
}

// handleAccept accepts the invitation named by the header id. The ACK
// echoes the id and carries the initial board exactly when the accepting
// client moves first.
func (srv *Server) handleAccept(s *Session, hdr protocol.Header) {
	state, err := s.AcceptInvitation(int(hdr.ID))
	if err != nil {
		slog.Debug("accept failed", "remote", s.IP(), "error", err)
		s.nack()
		return
	}
	if state == "" {
		s.ack(hdr.ID, nil)
		return
	}
	s.ack(hdr.ID, []byte(state))
}
