package server

import "errors"

// Request failures surface as one of these sentinels; the session loop maps
// every failed request to a NACK reply and keeps the connection alive.
var (
	// ErrNotLoggedIn reports an operation that needs a logged-in session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrAlreadyLoggedIn reports a second login on the same session.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrNameInUse reports a username held by another live session.
	ErrNameInUse = errors.New("username in use")
	// ErrUnknownInvitation reports an id with no invitation in the
	// session's list.
	ErrUnknownInvitation = errors.New("unknown invitation")
	// ErrWrongSide reports an operation reserved for the other side of an
	// invitation.
	ErrWrongSide = errors.New("wrong side of invitation")
	// ErrWrongState reports an invitation transition its current state
	// forbids.
	ErrWrongState = errors.New("wrong invitation state")
	// ErrNoGame reports a game operation on an invitation that has none.
	ErrNoGame = errors.New("no game in progress")
	// ErrCapacity reports a full registry or an exhausted invitation id
	// space.
	ErrCapacity = errors.New("capacity reached")
)
