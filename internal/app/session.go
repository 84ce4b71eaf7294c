package app

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"dobble/internal/domain"
)

var (
	ErrNotAccepting    = errors.New("session no longer accepting players")
	ErrDuplicatePlayer = errors.New("player already in session")
	ErrSessionFull     = errors.New("session is full")
	ErrNotWaiting      = errors.New("session already started")
	ErrTooFewPlayers   = errors.New("not enough players to start")
	ErrNotInProgress   = errors.New("session not in progress")
	ErrUnknownPlayer   = errors.New("player not found")
	ErrPlayerBanned    = errors.New("player is banned")
)

// Session is the single authoritative game instance. It owns table state and hands,
// and reports every outbound notification as an Event for the transport to deliver.
//
// Session is not safe for concurrent use; the transport must deliver one action at a
// time and let it run to completion.
type Session struct {
	game  *domain.Game
	rules Rules
	rng   *rand.Rand
	now   func() time.Time

	deckSymbols int
}

// NewSession constructs a waiting session. A nil rng is time-seeded; a nil clock uses time.Now.
func NewSession(rules Rules, rng *rand.Rand, clock func() time.Time) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if clock == nil {
		clock = time.Now
	}
	if rules.SymbolsPerCard == 0 {
		rules.SymbolsPerCard = DefaultSymbolsPerCard
	}
	if rules.BanBase <= 0 {
		rules.BanBase = domain.DefaultBanBase
	}
	if rules.MinPlayers <= 0 {
		rules.MinPlayers = 1
	}
	return &Session{
		game:  domain.NewGame(),
		rules: rules,
		rng:   rng,
		now:   clock,
	}
}

// Join admits a newly arrived peer while the session is waiting.
func (s *Session) Join(peerID, name string) ([]Event, error) {
	if s.game.Status != domain.StatusWaiting {
		return nil, ErrNotAccepting
	}
	if _, ok := s.game.PlayerByID(peerID); ok {
		return nil, ErrDuplicatePlayer
	}
	if s.rules.MaxPlayers > 0 && len(s.game.Players) >= s.rules.MaxPlayers {
		return nil, ErrSessionFull
	}

	pl := domain.NewPlayer(peerID, name)
	s.game.Players = append(s.game.Players, pl)

	return []Event{
		{
			Kind: EventPlayerJoined,
			Payload: PlayerJoinedPayload{
				PlayerID: pl.ID,
				Name:     pl.Name,
				Players:  len(s.game.Players),
			},
		},
	}, nil
}

// Start builds a deck sized for the admitted players, deals it and announces the
// table card to everyone and each player's active card to that player.
// A deck that cannot be built leaves the session waiting.
func (s *Session) Start() ([]Event, error) {
	if s.game.Status != domain.StatusWaiting {
		return nil, ErrNotWaiting
	}
	if len(s.game.Players) < s.rules.MinPlayers {
		return nil, ErrTooFewPlayers
	}

	symbols, err := domain.SymbolsForPlayers(len(s.game.Players), s.rules.SymbolsPerCard)
	if err != nil {
		return nil, fmt.Errorf("size deck for %d players: %w", len(s.game.Players), err)
	}
	deck, err := domain.GenerateDeck(domain.DeckSize(symbols), symbols, s.rng)
	if err != nil {
		return nil, fmt.Errorf("generate deck: %w", err)
	}

	s.game.Deck = deck
	if err := s.game.Deal(); err != nil {
		return nil, fmt.Errorf("deal: %w", err)
	}
	s.deckSymbols = symbols
	s.game.Status = domain.StatusInProgress
	s.game.StartedAt = s.now()

	events := make([]Event, 0, len(s.game.Players)+1)
	events = append(events, s.gameCardEvent())
	for _, pl := range s.game.Players {
		if ev, ok := playerCardEvent(pl); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// HandleChoice evaluates a player's claim that symbol is shared with the table card.
// A valid claim replaces the table card, clears every ban and either ends the session
// or sends the mover their next card. An invalid claim bans the player and changes nothing else.
// Banned players are rejected with ErrPlayerBanned and receive no further ban.
func (s *Session) HandleChoice(peerID string, symbol int, claimed domain.Card) ([]Event, error) {
	if s.game.Status != domain.StatusInProgress {
		return nil, ErrNotInProgress
	}
	pl, ok := s.game.PlayerByID(peerID)
	if !ok {
		return nil, ErrUnknownPlayer
	}

	now := s.now()
	if pl.IsBanned(now) {
		return nil, ErrPlayerBanned
	}

	if !s.validChoice(pl, symbol) {
		until := pl.Ban(now, s.rules.BanBase)
		return []Event{
			{
				Kind:       EventBan,
				Payload:    BanPayload{BanEndDate: until, BanLevel: pl.BanLevel},
				Recipients: []string{pl.ID},
			},
		}, nil
	}

	played, err := pl.TakeTopCard()
	if err != nil {
		// Only a finished session leaves a player without cards.
		return nil, fmt.Errorf("take card from %s: %w", pl.ID, err)
	}
	next := played
	if s.rules.TrustClaimedCard && len(claimed) > 0 {
		next = claimed.Clone()
	}
	s.game.CardOnTop = next

	events := []Event{s.gameCardEvent()}
	s.game.ResetAllBans()

	if winner, over := s.game.EmptyHanded(pl.ID); over {
		return append(events, s.finish(winner.ID)...), nil
	}
	if ev, ok := playerCardEvent(pl); ok {
		events = append(events, ev)
	}
	return events, nil
}

// Leave removes a departed peer. Mid-game the player's hand leaves with them; when a
// single player remains they win by forfeit. A finished session is left untouched.
func (s *Session) Leave(peerID string) ([]Event, error) {
	if s.game.Status == domain.StatusOver {
		return nil, nil
	}
	if !s.game.RemovePlayer(peerID) {
		return nil, ErrUnknownPlayer
	}

	events := []Event{
		{
			Kind:    EventPlayerLeft,
			Payload: PlayerLeftPayload{PlayerID: peerID, Players: len(s.game.Players)},
		},
	}

	if s.game.Status != domain.StatusInProgress {
		return events, nil
	}
	switch len(s.game.Players) {
	case 0:
		s.game.Status = domain.StatusOver
	case 1:
		events = append(events, s.finish(s.game.Players[0].ID)...)
	}
	return events, nil
}

// Terminate ends the session without announcing a result.
func (s *Session) Terminate() {
	s.game.Status = domain.StatusOver
}

// Status returns the lifecycle stage.
func (s *Session) Status() domain.Status {
	return s.game.Status
}

// CardOnTop returns a copy of the table card.
func (s *Session) CardOnTop() domain.Card {
	return s.game.CardOnTop.Clone()
}

// TopCard returns a copy of the player's active card.
func (s *Session) TopCard(peerID string) (domain.Card, bool) {
	pl, ok := s.game.PlayerByID(peerID)
	if !ok {
		return nil, false
	}
	return pl.TopCard()
}

// Has reports whether the peer is an admitted player.
func (s *Session) Has(peerID string) bool {
	_, ok := s.game.PlayerByID(peerID)
	return ok
}

// Outcome returns the winner and every player still seated once the session is over with a winner.
func (s *Session) Outcome() (winnerID string, playerIDs []string, ok bool) {
	if s.game.Status != domain.StatusOver || s.game.WinnerID == "" {
		return "", nil, false
	}
	for _, pl := range s.game.Players {
		playerIDs = append(playerIDs, pl.ID)
	}
	return s.game.WinnerID, playerIDs, true
}

func (s *Session) validChoice(pl *domain.Player, symbol int) bool {
	if !s.game.CardOnTop.Has(symbol) {
		return false
	}
	if s.rules.TrustClaimedCard {
		return true
	}
	top, ok := pl.TopCard()
	return ok && top.Has(symbol)
}

// finish freezes the session and tells each player whether they won.
func (s *Session) finish(winnerID string) []Event {
	s.game.Status = domain.StatusOver
	s.game.WinnerID = winnerID

	events := make([]Event, 0, len(s.game.Players))
	for _, pl := range s.game.Players {
		result := -1
		if pl.ID == winnerID {
			result = 1
		}
		events = append(events, Event{
			Kind:       EventResult,
			Payload:    ResultPayload{Result: result, WinnerID: winnerID},
			Recipients: []string{pl.ID},
		})
	}
	return events
}

func (s *Session) gameCardEvent() Event {
	return Event{
		Kind:    EventGameCard,
		Payload: GameCardPayload{Card: s.game.CardOnTop.Clone()},
	}
}

func playerCardEvent(pl *domain.Player) (Event, bool) {
	top, ok := pl.TopCard()
	if !ok {
		return Event{}, false
	}
	return Event{
		Kind:       EventPlayerCard,
		Payload:    PlayerCardPayload{Card: top},
		Recipients: []string{pl.ID},
	}, true
}
