// Package redisstore keeps per-player win tallies and a leaderboard in redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"dobble/internal/ports"
)

const (
	leaderboardKey = "dobble:leaderboard"
	matchKeyPrefix = "dobble:match:"
)

var ErrAlreadyRecorded = errors.New("match results already recorded")

// Store implements ports.ScorePort and ports.LeaderboardPort.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Dial connects and pings the server.
func Dial(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb), nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func playerKey(userID string) string {
	return fmt.Sprintf("dobble:player:%s", userID)
}

// RecordResults bumps games for every player and wins for the winner.
// A match id is recorded once; repeats return ErrAlreadyRecorded.
func (s *Store) RecordResults(ctx context.Context, matchID string, outcomes []ports.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	fresh, err := s.rdb.SetNX(ctx, matchKeyPrefix+matchID, len(outcomes), 0).Result()
	if err != nil {
		return fmt.Errorf("mark match %s: %w", matchID, err)
	}
	if !fresh {
		return ErrAlreadyRecorded
	}

	pipe := s.rdb.TxPipeline()
	for _, o := range outcomes {
		key := playerKey(o.UserID)
		pipe.HIncrBy(ctx, key, "games", 1)
		if o.Won {
			pipe.HIncrBy(ctx, key, "wins", 1)
			pipe.ZIncrBy(ctx, leaderboardKey, 1, o.UserID)
		} else {
			// keep every player on the board
			pipe.ZIncrBy(ctx, leaderboardKey, 0, o.UserID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record match %s: %w", matchID, err)
	}
	return nil
}

// Leaderboard returns up to limit players ordered by wins.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]ports.Standing, error) {
	if limit <= 0 {
		return nil, nil
	}
	top, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	pipe := s.rdb.Pipeline()
	games := make([]*redis.StringCmd, len(top))
	for i, z := range top {
		userID, _ := z.Member.(string)
		games[i] = pipe.HGet(ctx, playerKey(userID), "games")
	}
	// A player without a games field reads as redis.Nil.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read games: %w", err)
	}

	out := make([]ports.Standing, 0, len(top))
	for i, z := range top {
		userID, _ := z.Member.(string)
		n, err := games[i].Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read games for %s: %w", userID, err)
		}
		out = append(out, ports.Standing{
			UserID: userID,
			Wins:   int64(z.Score),
			Games:  n,
		})
	}
	return out, nil
}
