package bot

import (
	"fmt"
	"strings"
)

type BotLevel int

const (
	BotLevelEasy BotLevel = iota
	BotLevelNormal
	BotLevelHard
)

// ParseLevel maps a difficulty name to a level; unknown names are an error.
func ParseLevel(name string) (BotLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "easy":
		return BotLevelEasy, nil
	case "", "normal", "medium":
		return BotLevelNormal, nil
	case "hard":
		return BotLevelHard, nil
	default:
		return BotLevelNormal, fmt.Errorf("unknown bot difficulty: %q", name)
	}
}

func (l BotLevel) String() string {
	switch l {
	case BotLevelEasy:
		return "easy"
	case BotLevelHard:
		return "hard"
	default:
		return "normal"
	}
}

// NewBrain creates a new AI brain based on the specified level.
func NewBrain(level BotLevel) (Brain, error) {
	switch level {
	case BotLevelEasy:
		return &EyeBot{MistakeRate: 0.25, Pace: paceSlow}, nil
	case BotLevelNormal:
		return &EyeBot{MistakeRate: 0.1, Pace: paceFull}, nil
	case BotLevelHard:
		return &EyeBot{MistakeRate: 0, Pace: paceFast}, nil
	default:
		return nil, fmt.Errorf("unknown bot level: %d", level)
	}
}
