package ports

import "context"

// Outcome is one player's result in a finished session.
type Outcome struct {
	UserID string
	Won    bool
}

// ScorePort records finished sessions.
type ScorePort interface {
	// RecordResults stores the outcome of every player of a match.
	// It is called once per session, after the result events are sent.
	RecordResults(ctx context.Context, matchID string, outcomes []Outcome) error
}

// Standing is one leaderboard row.
type Standing struct {
	UserID string `json:"user_id"`
	Wins   int64  `json:"wins"`
	Games  int64  `json:"games"`
}

// LeaderboardPort lists the players with the most wins.
type LeaderboardPort interface {
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)
}

// Outcomes turns a session outcome into per-player results.
func Outcomes(winnerID string, playerIDs []string) []Outcome {
	out := make([]Outcome, 0, len(playerIDs))
	for _, id := range playerIDs {
		out = append(out, Outcome{UserID: id, Won: id == winnerID})
	}
	return out
}

// NopScore discards results. It stands in when no store is configured.
type NopScore struct{}

func (NopScore) RecordResults(context.Context, string, []Outcome) error { return nil }

func (NopScore) Leaderboard(context.Context, int) ([]Standing, error) { return nil, nil }
