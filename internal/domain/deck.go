package domain

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrUnsatisfiableDeckSize is returned when no one-shared-symbol deck exists for the requested size.
	ErrUnsatisfiableDeckSize = errors.New("unsatisfiable deck size")
	ErrBrokenDeck            = errors.New("cards do not share exactly one symbol")
)

// DeckSize returns the number of cards in a complete deck with symbolsPerCard symbols per card.
// A deck of order n has n+1 symbols per card and n²+n+1 cards.
func DeckSize(symbolsPerCard int) int {
	n := symbolsPerCard - 1
	return n*n + n + 1
}

// SupportedSymbolsPerCard reports whether GenerateDeck can build decks with s symbols per card.
// Only prime orders (s-1) are constructed.
func SupportedSymbolsPerCard(s int) bool {
	return isPrime(s - 1)
}

// SymbolsForPlayers picks the smallest supported card size >= minSymbols whose deck,
// after reserving the table card, deals at least one card to each of the players.
func SymbolsForPlayers(players, minSymbols int) (int, error) {
	if !SupportedSymbolsPerCard(minSymbols) {
		return 0, fmt.Errorf("%w: %d symbols per card", ErrUnsatisfiableDeckSize, minSymbols)
	}
	order := minSymbols - 1
	for DeckSize(order+1)-1 < players {
		order = nextPrime(order)
	}
	return order + 1, nil
}

// GenerateDeck builds a shuffled deck in which every pair of distinct cards shares exactly
// one symbol. Cards come from the finite projective plane of prime order symbolsPerCard-1,
// so numCards must equal DeckSize(symbolsPerCard).
func GenerateDeck(numCards, symbolsPerCard int, rng *rand.Rand) ([]Card, error) {
	if !SupportedSymbolsPerCard(symbolsPerCard) || numCards != DeckSize(symbolsPerCard) {
		return nil, fmt.Errorf("%w: %d cards with %d symbols", ErrUnsatisfiableDeckSize, numCards, symbolsPerCard)
	}

	deck := projectivePlane(symbolsPerCard - 1)
	for _, card := range deck {
		Shuffle(rng, card)
	}
	return Shuffle(rng, deck), nil
}

// VerifyDeck checks that every pair of distinct cards shares exactly one symbol
// and that no card repeats a symbol or appears twice.
func VerifyDeck(deck []Card) error {
	for i, card := range deck {
		seen := make(map[int]bool, len(card))
		for _, s := range card {
			if seen[s] {
				return fmt.Errorf("%w: card %d repeats symbol %d", ErrBrokenDeck, i, s)
			}
			seen[s] = true
		}
		for j := i + 1; j < len(deck); j++ {
			if card.Equal(deck[j]) {
				return fmt.Errorf("%w: cards %d and %d are the same card", ErrBrokenDeck, i, j)
			}
			if common := CommonSymbols(card, deck[j]); len(common) != 1 {
				return fmt.Errorf("%w: cards %d and %d share %v", ErrBrokenDeck, i, j, common)
			}
		}
	}
	return nil
}

// projectivePlane returns the n²+n+1 lines of the plane of prime order n as cards.
func projectivePlane(n int) []Card {
	deck := make([]Card, 0, n*n+n+1)

	// Line at infinity.
	card := make(Card, 0, n+1)
	for i := 0; i <= n; i++ {
		card = append(card, i)
	}
	deck = append(deck, card)

	// Vertical lines through the point at infinity 0.
	for j := 0; j < n; j++ {
		card = make(Card, 0, n+1)
		card = append(card, 0)
		for k := 0; k < n; k++ {
			card = append(card, n+1+n*j+k)
		}
		deck = append(deck, card)
	}

	// Lines of slope i, offset j.
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			card = make(Card, 0, n+1)
			card = append(card, i+1)
			for k := 0; k < n; k++ {
				card = append(card, n+1+n*k+(i*k+j)%n)
			}
			deck = append(deck, card)
		}
	}

	return deck
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func nextPrime(n int) int {
	for p := n + 1; ; p++ {
		if isPrime(p) {
			return p
		}
	}
}
