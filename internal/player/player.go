// Package player holds named identities with Elo ratings and the
// process-lifetime registry that interns them.
package player

import (
	"math"
	"sync"
)

const (
	// InitialRating is assigned to every newly created player.
	InitialRating = 1500.0

	// kFactor scales rating movement per posted game.
	kFactor = 32.0
)

// Result selects the outcome of a posted game.
type Result int

const (
	Draw        Result = 0
	Player1Wins Result = 1
	Player2Wins Result = 2
)

// Player is a named identity with a mutable rating. The name never changes
// and at most one object exists per name for the process lifetime.
type Player struct {
	name string

	mu     sync.Mutex
	rating float64
}

// New creates a player with the initial rating.
func New(name string) *Player {
	return &Player{name: name, rating: InitialRating}
}

// Name returns the immutable username.
func (p *Player) Name() string { return p.name }

// Rating returns a best-effort snapshot of the rating.
func (p *Player) Rating() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rating
}

// RatingInt returns the rating truncated toward zero, the form used in
// users listings.
func (p *Player) RatingInt() int { return int(p.Rating()) }

func (p *Player) addRating(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rating += delta
}

// PostResult updates both ratings by the Elo scheme: each player scores
// S ∈ {0, 0.5, 1} for loss, draw, win; the expected score is
// E = 1/(1+10^((Ropp−Rown)/400)); the rating moves by K·(S−E) with K=32.
// Rating reads are snapshots; each update is atomic per player. A Result
// outside {Draw, Player1Wins, Player2Wins} changes nothing.
func PostResult(p1, p2 *Player, r Result) {
	var s1, s2 float64
	switch r {
	case Draw:
		s1, s2 = 0.5, 0.5
	case Player1Wins:
		s1, s2 = 1, 0
	case Player2Wins:
		s1, s2 = 0, 1
	default:
		return
	}

	r1, r2 := p1.Rating(), p2.Rating()
	e1 := 1 / (1 + math.Pow(10, (r2-r1)/400))
	e2 := 1 / (1 + math.Pow(10, (r1-r2)/400))

	p1.addRating(kFactor * (s1 - e1))
	p2.addRating(kFactor * (s2 - e2))
}
