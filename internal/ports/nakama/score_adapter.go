package nakama

import (
	"context"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"dobble/internal/bot"
	"dobble/internal/ports"
)

// Wallet counters kept per user.
const (
	walletWins  = "wins"
	walletGames = "games"
)

// walletUpdater is the slice of runtime.NakamaModule the score adapter needs.
type walletUpdater interface {
	WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error)
}

// NakamaScoreAdapter implements ports.ScorePort with Nakama wallet counters.
type NakamaScoreAdapter struct {
	nk walletUpdater
}

// NewNakamaScoreAdapter creates a new score adapter.
func NewNakamaScoreAdapter(nk runtime.NakamaModule) *NakamaScoreAdapter {
	return &NakamaScoreAdapter{nk: nk}
}

// RecordResults bumps the games counter of every human and the wins counter of the winner.
func (a *NakamaScoreAdapter) RecordResults(ctx context.Context, matchID string, outcomes []ports.Outcome) error {
	for _, o := range outcomes {
		if bot.IsBot(o.UserID) {
			continue
		}

		changes := map[string]int64{walletGames: 1}
		if o.Won {
			changes[walletWins] = 1
		}
		metadata := map[string]interface{}{
			"match_id": matchID,
			"reason":   "game_result",
		}

		if _, _, err := a.nk.WalletUpdate(ctx, o.UserID, changes, metadata, true); err != nil {
			return fmt.Errorf("failed to update wallet for user %s: %w", o.UserID, err)
		}
	}
	return nil
}

var _ ports.ScorePort = (*NakamaScoreAdapter)(nil)
