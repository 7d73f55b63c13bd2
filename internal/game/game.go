// Package game implements the Tic-Tac-Toe engine: board state, move
// parsing and application, win detection, and the fixed-layout rendering
// shown to players.
package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/udisondev/oxo/internal/protocol"
)

var (
	// ErrInvalidMove reports a move string that does not parse, or a role
	// that is not on the move.
	ErrInvalidMove = errors.New("invalid move")
	// ErrIllegalMove reports a parsed move the board state rejects.
	ErrIllegalMove = errors.New("illegal move")
	// ErrGameOver reports an action on a terminated game.
	ErrGameOver = errors.New("game over")
)

// Move is an immutable placement of one mark on one square.
type Move struct {
	Square int           // 1..9, row-major from the top-left corner
	Player protocol.Role // FIRST or SECOND
}

// String formats m in the long form accepted by ParseMove.
func (m Move) String() string {
	return fmt.Sprintf("%d<-%c", m.Square, mark(m.Player))
}

// lines are the eight winning triples (board indexes).
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Game holds one match. Methods are safe for concurrent use; board, turn
// and outcome never change once the game has terminated.
type Game struct {
	mu         sync.Mutex
	board      [9]protocol.Role
	turn       protocol.Role
	turns      int
	terminated bool
	winner     protocol.Role
}

// New returns a game with an empty board and FIRST to move.
func New() *Game {
	return &Game{turn: protocol.RoleFirst}
}

// ParseMove interprets str as a move by role. Accepted forms are a bare
// square digit "1".."9" (the mover is the side on the move) and the long
// form "<digit><-X" or "<digit><-O" (the mark picks the mover). A non-NONE
// role must be on the move; whether the parsed mover may actually play the
// square is Apply's concern.
func (g *Game) ParseMove(role protocol.Role, str string) (Move, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if role != protocol.RoleNone && role != g.turn {
		return Move{}, fmt.Errorf("%w: %v is not on the move", ErrInvalidMove, role)
	}

	var player protocol.Role
	switch len(str) {
	case 1:
		player = g.turn
	case 4:
		if str[1] != '<' || str[2] != '-' {
			return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, str)
		}
		switch str[3] {
		case 'X':
			player = protocol.RoleFirst
		case 'O':
			player = protocol.RoleSecond
		default:
			return Move{}, fmt.Errorf("%w: bad mark in %q", ErrInvalidMove, str)
		}
	default:
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, str)
	}

	if str[0] < '1' || str[0] > '9' {
		return Move{}, fmt.Errorf("%w: bad square in %q", ErrInvalidMove, str)
	}
	return Move{Square: int(str[0] - '0'), Player: player}, nil
}

// Apply places m on the board. The square must be free, the mover must be
// on the move, and the game must still be running. The move that completes
// a line, or the ninth move without one (a draw), terminates the game.
func (g *Game) Apply(m Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return ErrGameOver
	}
	if m.Square < 1 || m.Square > 9 {
		return fmt.Errorf("%w: square %d out of range", ErrIllegalMove, m.Square)
	}
	if g.board[m.Square-1] != protocol.RoleNone {
		return fmt.Errorf("%w: square %d is taken", ErrIllegalMove, m.Square)
	}
	if m.Player != g.turn {
		return fmt.Errorf("%w: %v is not on the move", ErrIllegalMove, m.Player)
	}

	g.board[m.Square-1] = m.Player
	g.turn = g.turn.Other()
	g.turns++

	switch {
	case g.wins(protocol.RoleFirst):
		g.winner = protocol.RoleFirst
		g.terminated = true
	case g.wins(protocol.RoleSecond):
		g.winner = protocol.RoleSecond
		g.terminated = true
	case g.turns >= 9:
		g.terminated = true // draw, winner stays NONE
	}
	return nil
}

// Resign terminates the game with role losing.
func (g *Game) Resign(role protocol.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return ErrGameOver
	}
	if role != protocol.RoleFirst && role != protocol.RoleSecond {
		return fmt.Errorf("resign: no side for role %v", role)
	}
	g.terminated = true
	g.winner = role.Other()
	return nil
}

// Over reports whether the game has terminated.
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}

// Winner returns the winning role once the game has terminated, and NONE
// while it is running or when it ended in a draw.
func (g *Game) Winner() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.terminated {
		return protocol.RoleNone
	}
	return g.winner
}

// Turn returns the side on the move.
func (g *Game) Turn() protocol.Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

// Render returns the fixed-layout state text: three board rows with "|"
// separators, two "-----" rows, and the turn line. The turn line is present
// even after termination, mirroring what players see at game end.
func (g *Game) Render() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(44)
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("-----\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteByte('|')
			}
			b.WriteByte(mark(g.board[row*3+col]))
		}
		b.WriteByte('\n')
	}
	b.WriteString("It's ")
	b.WriteByte(mark(g.turn))
	b.WriteString("'s turn\n")
	return b.String()
}

func (g *Game) wins(r protocol.Role) bool {
	for _, l := range lines {
		if g.board[l[0]] == r && g.board[l[1]] == r && g.board[l[2]] == r {
			return true
		}
	}
	return false
}

func mark(r protocol.Role) byte {
	switch r {
	case protocol.RoleFirst:
		return 'X'
	case protocol.RoleSecond:
		return 'O'
	}
	return ' '
}
