package domain

// Card is a fixed-size set of symbol identifiers. Symbol order carries no meaning.
// Cards are treated as immutable once generated; copy with Clone before handing one out.
type Card []int

// Has reports whether the card carries the symbol.
func (c Card) Has(symbol int) bool {
	for _, s := range c {
		if s == symbol {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the card.
func (c Card) Clone() Card {
	if c == nil {
		return nil
	}
	out := make(Card, len(c))
	copy(out, c)
	return out
}

// Equal reports set equality, ignoring symbol order.
func (c Card) Equal(other Card) bool {
	if len(c) != len(other) {
		return false
	}
	for _, s := range c {
		if !other.Has(s) {
			return false
		}
	}
	return true
}

// CommonSymbols returns the symbols present on both cards, in the order of a.
func CommonSymbols(a, b Card) []int {
	var common []int
	for _, s := range a {
		if b.Has(s) {
			common = append(common, s)
		}
	}
	return common
}
