package domain

import (
	"errors"
	"time"
)

// ErrNothingToDeal is returned by Deal when there are no players or no cards.
var ErrNothingToDeal = errors.New("no players or cards to deal")

// Status represents the lifecycle stage of a session.
type Status string

const (
	// StatusWaiting is the pre-game state where players can join.
	StatusWaiting Status = "waiting"
	// StatusInProgress is the active state where players race for matches.
	StatusInProgress Status = "inProgress"
	// StatusOver is terminal; table and hands no longer change.
	StatusOver Status = "over"
)

// Game holds authoritative table state for a single session.
type Game struct {
	Status Status

	Players []*Player // insertion order, used for round-robin dealing
	Deck    []Card

	CardOnTop Card
	WinnerID  string
	StartedAt time.Time
}

// NewGame returns an empty game waiting for players.
func NewGame() *Game {
	return &Game{Status: StatusWaiting}
}

// PlayerByID looks up a player by peer id.
func (g *Game) PlayerByID(id string) (*Player, bool) {
	for _, p := range g.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// RemovePlayer drops the player and their hand. It reports whether the player was present.
func (g *Game) RemovePlayer(id string) bool {
	for i, p := range g.Players {
		if p.ID == id {
			g.Players = append(g.Players[:i], g.Players[i+1:]...)
			return true
		}
	}
	return false
}

// Deal reserves the top of the deck as the table card, then hands out the rest
// round-robin so hand sizes differ by at most one. The deck is empty afterwards.
func (g *Game) Deal() error {
	if len(g.Players) == 0 || len(g.Deck) == 0 {
		return ErrNothingToDeal
	}
	g.CardOnTop = g.pop()
	for i := 0; len(g.Deck) > 0; i++ {
		pl := g.Players[i%len(g.Players)]
		pl.Hand = append(pl.Hand, g.pop())
	}
	return nil
}

func (g *Game) pop() Card {
	last := len(g.Deck) - 1
	card := g.Deck[last]
	g.Deck = g.Deck[:last]
	return card
}

// ResetAllBans clears the ban state of every player.
func (g *Game) ResetAllBans() {
	for _, p := range g.Players {
		p.ResetBan()
	}
}

// EmptyHanded returns a player with no cards left. The player with preferID is checked
// first, then the rest in insertion order.
func (g *Game) EmptyHanded(preferID string) (*Player, bool) {
	if p, ok := g.PlayerByID(preferID); ok && len(p.Hand) == 0 {
		return p, true
	}
	for _, p := range g.Players {
		if len(p.Hand) == 0 {
			return p, true
		}
	}
	return nil, false
}

// HandSizes returns the number of cards each player holds, keyed by id.
func (g *Game) HandSizes() map[string]int {
	sizes := make(map[string]int, len(g.Players))
	for _, p := range g.Players {
		sizes[p.ID] = len(p.Hand)
	}
	return sizes
}
