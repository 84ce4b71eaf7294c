package bot

import (
	"math/rand"

	"dobble/internal/domain"
)

// Move represents the decision made by the AI.
type Move struct {
	SymbolID int
	Card     domain.Card // the bot's active card, sent as the claimed card
}

// Brain is the interface that all bot strategies must implement.
type Brain interface {
	// Decide picks a symbol to claim. ok is false when the bot has nothing to play.
	Decide(table, top domain.Card, rng *rand.Rand) (move Move, ok bool)
	// ReactionTicks returns how many ticks the bot waits before acting on a new table card.
	ReactionTicks(rng *rand.Rand, minTicks, maxTicks int) int
}
