package domain

import "math/rand"

// Shuffle permutes items in place with a uniform Fisher-Yates pass and returns the same slice.
// The result is reproducible when rng is seeded with a fixed value.
func Shuffle[T any](rng *rand.Rand, items []T) []T {
	rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	return items
}
