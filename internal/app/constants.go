package app

import (
	"time"

	"dobble/internal/domain"
)

// MinPlayersToStartGame defines the minimum number of admitted players required to start.
const MinPlayersToStartGame = 2

// DefaultSymbolsPerCard gives the 7-card deck with three symbols per card.
const DefaultSymbolsPerCard = 3

// Rules tunes a session. The zero value is not usable; start from DefaultRules.
type Rules struct {
	// SymbolsPerCard is the smallest card size to deal; larger tables get a larger deck.
	SymbolsPerCard int
	// BanBase is the length of a first ban.
	BanBase    time.Duration
	MinPlayers int
	// MaxPlayers caps admission; 0 means no cap.
	MaxPlayers int
	// TrustClaimedCard puts the card the mover sends on the table instead of the card
	// taken from their hand, and skips checking the symbol against that card.
	TrustClaimedCard bool
}

// DefaultRules returns the reference configuration: 3 symbols per card, 2s first ban,
// at least two players, and the client's claimed card trusted.
func DefaultRules() Rules {
	return Rules{
		SymbolsPerCard:   DefaultSymbolsPerCard,
		BanBase:          domain.DefaultBanBase,
		MinPlayers:       MinPlayersToStartGame,
		MaxPlayers:       8,
		TrustClaimedCard: true,
	}
}
