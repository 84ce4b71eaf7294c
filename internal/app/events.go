package app

import (
	"time"

	"dobble/internal/domain"
)

// EventKind identifies emitted session events for transport dispatch.
type EventKind string

const (
	EventPlayerJoined EventKind = "playerJoined"
	EventPlayerLeft   EventKind = "playerLeft"
	EventGameCard     EventKind = "gameCard"
	EventPlayerCard   EventKind = "playerCard"
	EventBan          EventKind = "ban"
	EventResult       EventKind = "result"
)

// Event is a session event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // peer IDs; empty means broadcast
}

// Broadcast reports whether the event goes to every peer.
func (e Event) Broadcast() bool {
	return len(e.Recipients) == 0
}

type PlayerJoinedPayload struct {
	PlayerID string
	Name     string
	Players  int
}

type PlayerLeftPayload struct {
	PlayerID string
	Players  int
}

// GameCardPayload carries the table card.
type GameCardPayload struct {
	Card domain.Card
}

// PlayerCardPayload carries a player's active card.
type PlayerCardPayload struct {
	Card domain.Card
}

// BanPayload carries the absolute expiry of a ban and its length.
type BanPayload struct {
	BanEndDate time.Time
	BanLevel   time.Duration
}

// ResultPayload is 1 for the winner and -1 for everyone else.
type ResultPayload struct {
	Result   int
	WinnerID string
}
