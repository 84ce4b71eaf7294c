package bot

import (
	"math/rand"

	"dobble/internal/domain"
)

type pace int

const (
	paceFast pace = iota // lower half of the reaction window
	paceFull             // whole window
	paceSlow             // upper half
)

// EyeBot scans its card for the symbol it shares with the table and sometimes
// grabs a wrong one.
type EyeBot struct {
	MistakeRate float64
	Pace        pace
}

func (b *EyeBot) Decide(table, top domain.Card, rng *rand.Rand) (Move, bool) {
	if len(top) == 0 || len(table) == 0 {
		return Move{}, false
	}

	if b.MistakeRate > 0 && rng.Float64() < b.MistakeRate {
		if wrong, ok := symbolNotOn(top, table, rng); ok {
			return Move{SymbolID: wrong, Card: top.Clone()}, true
		}
	}

	if common := domain.CommonSymbols(top, table); len(common) > 0 {
		return Move{SymbolID: common[0], Card: top.Clone()}, true
	}
	// Cards from one deck always share a symbol; a foreign table card still has
	// symbols of its own to claim.
	return Move{SymbolID: table[rng.Intn(len(table))], Card: top.Clone()}, true
}

func (b *EyeBot) ReactionTicks(rng *rand.Rand, minTicks, maxTicks int) int {
	if maxTicks < minTicks {
		maxTicks = minTicks
	}
	mid := minTicks + (maxTicks-minTicks)/2
	lo, hi := minTicks, maxTicks
	switch b.Pace {
	case paceFast:
		hi = mid
	case paceSlow:
		lo = mid
	}
	return lo + rng.Intn(hi-lo+1)
}

// symbolNotOn picks a symbol of card that is absent from other.
func symbolNotOn(card, other domain.Card, rng *rand.Rand) (int, bool) {
	var candidates []int
	for _, s := range card {
		if !other.Has(s) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}
