package domain

import (
	"errors"
	"time"
)

// DefaultBanBase is the length of a first ban.
const DefaultBanBase = 2000 * time.Millisecond

// ErrEmptyHand is returned when a card is requested from a player holding none.
var ErrEmptyHand = errors.New("player hand is empty")

// Player holds the domain state for a participant in a session.
type Player struct {
	ID   string
	Name string
	// Hand is ordered bottom to top; the last card is the active one.
	Hand []Card

	BanLevel time.Duration
	BanUntil time.Time
}

// NewPlayer creates a player with an empty hand. A blank name falls back to a short form of the id.
func NewPlayer(id, name string) *Player {
	if name == "" {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		name = "player-" + short
	}
	return &Player{ID: id, Name: name}
}

// ResetBan clears the penalty so the next ban starts from the base duration again.
func (p *Player) ResetBan() {
	p.BanLevel = 0
	p.BanUntil = time.Time{}
}

// Ban escalates the penalty and returns the absolute expiry.
// The first ban lasts base; each further ban without a reset doubles the previous one.
func (p *Player) Ban(now time.Time, base time.Duration) time.Time {
	if base <= 0 {
		base = DefaultBanBase
	}
	if p.BanLevel == 0 {
		p.BanLevel = base
	} else {
		p.BanLevel *= 2
	}
	p.BanUntil = now.Add(p.BanLevel)
	return p.BanUntil
}

// IsBanned reports whether now falls strictly before the ban expiry.
func (p *Player) IsBanned(now time.Time) bool {
	return now.Before(p.BanUntil)
}

// TopCard returns a copy of the active card without removing it.
func (p *Player) TopCard() (Card, bool) {
	if len(p.Hand) == 0 {
		return nil, false
	}
	return p.Hand[len(p.Hand)-1].Clone(), true
}

// TakeTopCard removes and returns the active card.
func (p *Player) TakeTopCard() (Card, error) {
	if len(p.Hand) == 0 {
		return nil, ErrEmptyHand
	}
	last := len(p.Hand) - 1
	card := p.Hand[last]
	p.Hand = p.Hand[:last]
	return card, nil
}
