// Command deckgen prints a generated deck and checks that every pair of cards
// shares exactly one symbol.
package main

import (
	"flag"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"dobble/internal/domain"
)

func main() {
	symbols := flag.Int("symbols", 3, "symbols per card (a prime plus one)")
	players := flag.Int("players", 0, "grow the card size until every player gets a card")
	seed := flag.Int64("seed", 0, "shuffle seed; 0 picks one from the clock")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	perCard := *symbols
	if *players > 0 {
		n, err := domain.SymbolsForPlayers(*players, *symbols)
		if err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
		perCard = n
	}

	deck, err := domain.GenerateDeck(domain.DeckSize(perCard), perCard, rand.New(rand.NewSource(*seed)))
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	pterm.DefaultSection.Printfln("%d cards, %d symbols per card (seed %d)", len(deck), perCard, *seed)
	data := pterm.TableData{{"#", "Symbols"}}
	for i, card := range deck {
		data = append(data, []string{strconv.Itoa(i), formatCard(card)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if err := domain.VerifyDeck(deck); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	pterm.Success.Printfln("every pair of the %d cards shares exactly one symbol", len(deck))
}

func formatCard(card domain.Card) string {
	parts := make([]string, len(card))
	for i, s := range card {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, " ")
}
