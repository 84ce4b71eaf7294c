package bot

import (
	"math/rand"

	"dobble/internal/domain"
)

// Agent represents an autonomous bot player.
type Agent struct {
	ID       string
	Name     string
	Level    BotLevel
	Strategy Brain

	rng     *rand.Rand
	readyAt int64
	armed   bool
}

// NewAgent builds an agent for the identity at the given level.
func NewAgent(identity BotIdentity, level BotLevel, rng *rand.Rand) (*Agent, error) {
	brain, err := NewBrain(level)
	if err != nil {
		return nil, err
	}
	return &Agent{
		ID:       identity.UserID,
		Name:     identity.DisplayName,
		Level:    level,
		Strategy: brain,
		rng:      rng,
	}, nil
}

// Schedule arms the agent to act after its reaction time, counted from tick.
func (a *Agent) Schedule(tick int64, minTicks, maxTicks int) {
	a.readyAt = tick + int64(a.Strategy.ReactionTicks(a.rng, minTicks, maxTicks))
	a.armed = true
}

// Ready reports whether a scheduled action is due.
func (a *Agent) Ready(tick int64) bool {
	return a.armed && tick >= a.readyAt
}

// Play asks the agent for its move and disarms it until the next Schedule.
func (a *Agent) Play(table, top domain.Card) (Move, bool) {
	a.armed = false
	return a.Strategy.Decide(table, top, a.rng)
}
