package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// IDPrefix marks every bot user id.
const IDPrefix = "bot-"

type BotIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Difficulty  string `json:"difficulty"` // "easy", "normal", "hard"; empty follows the table setting
}

var builtinIdentities = []BotIdentity{
	{UserID: "bot-owl", DisplayName: "Owl", Difficulty: "hard"},
	{UserID: "bot-fox", DisplayName: "Fox"},
	{UserID: "bot-cat", DisplayName: "Cat"},
	{UserID: "bot-sloth", DisplayName: "Sloth", Difficulty: "easy"},
}

var (
	identMu         sync.RWMutex
	botIdentities   = builtinIdentities
	botDisplayNames = indexNames(builtinIdentities)
)

func indexNames(ids []BotIdentity) map[string]string {
	m := make(map[string]string, len(ids))
	for _, identity := range ids {
		m[identity.UserID] = identity.DisplayName
	}
	return m
}

// LoadIdentities replaces the bot pool with the profiles in a JSON file.
// Every user id must carry IDPrefix.
func LoadIdentities(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read bot identities: %w", err)
	}
	var ids []BotIdentity
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to unmarshal bot identities: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("bot identities file %s is empty", path)
	}
	for _, identity := range ids {
		if !strings.HasPrefix(identity.UserID, IDPrefix) {
			return fmt.Errorf("bot identity %q lacks the %q prefix", identity.UserID, IDPrefix)
		}
		if _, err := ParseLevel(identity.Difficulty); err != nil {
			return fmt.Errorf("bot identity %q: %w", identity.UserID, err)
		}
	}

	identMu.Lock()
	defer identMu.Unlock()
	botIdentities = ids
	botDisplayNames = indexNames(ids)
	return nil
}

// LevelFor returns the identity's own difficulty, or fallback when it has none.
func LevelFor(identity BotIdentity, fallback BotLevel) BotLevel {
	if identity.Difficulty == "" {
		return fallback
	}
	level, err := ParseLevel(identity.Difficulty)
	if err != nil {
		return fallback
	}
	return level
}

// NextIdentity returns the first pool identity whose id is not taken.
func NextIdentity(taken func(userID string) bool) (BotIdentity, bool) {
	identMu.RLock()
	defer identMu.RUnlock()
	for _, identity := range botIdentities {
		if !taken(identity.UserID) {
			return identity, true
		}
	}
	return BotIdentity{}, false
}

// GetBotDisplayName returns the display name for a bot ID, or an empty string if not a bot.
func GetBotDisplayName(userID string) string {
	identMu.RLock()
	defer identMu.RUnlock()
	return botDisplayNames[userID]
}

// IsBot reports whether the given user ID belongs to a bot.
func IsBot(userID string) bool {
	return strings.HasPrefix(userID, IDPrefix)
}
