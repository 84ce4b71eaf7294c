package app

import (
	"time"

	"dobble/internal/domain"
)

// PlayerView is the public state of one player.
type PlayerView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	HandSize    int        `json:"hand_size"`
	BanLevelMs  int64      `json:"ban_level_ms"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
}

// Snapshot is a read-only view of the session for operators.
type Snapshot struct {
	Status         domain.Status `json:"status"`
	CardOnTop      domain.Card   `json:"card_on_top,omitempty"`
	SymbolsPerCard int           `json:"symbols_per_card,omitempty"`
	Players        []PlayerView  `json:"players"`
	WinnerID       string        `json:"winner_id,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
}

// Snapshot copies the current session state. Player cards are never included.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Status:         s.game.Status,
		CardOnTop:      s.game.CardOnTop.Clone(),
		SymbolsPerCard: s.deckSymbols,
		Players:        make([]PlayerView, 0, len(s.game.Players)),
		WinnerID:       s.game.WinnerID,
		StartedAt:      timeOrNil(s.game.StartedAt),
	}
	sizes := s.game.HandSizes()
	for _, pl := range s.game.Players {
		snap.Players = append(snap.Players, PlayerView{
			ID:          pl.ID,
			Name:        pl.Name,
			HandSize:    sizes[pl.ID],
			BanLevelMs:  pl.BanLevel.Milliseconds(),
			BannedUntil: timeOrNil(pl.BanUntil),
		})
	}
	return snap
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
