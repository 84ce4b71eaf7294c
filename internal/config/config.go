package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dobble/internal/app"
	"dobble/internal/domain"
)

// Env keys read from the Nakama runtime environment.
const (
	EnvSymbolsPerCard   = "dobble_symbols_per_card"
	EnvBanBaseMs        = "dobble_ban_base_ms"
	EnvMinPlayers       = "dobble_min_players"
	EnvMaxPlayers       = "dobble_max_players"
	EnvTrustClientCard  = "dobble_trust_client_card"
	EnvBotsEnabled      = "dobble_bots_enabled"
	EnvBotAutoFillDelay = "dobble_bot_auto_fill_delay_sec"
	EnvBotMinTicks      = "dobble_bot_min_reaction_ticks"
	EnvBotMaxTicks      = "dobble_bot_max_reaction_ticks"
	EnvBotDifficulty    = "dobble_bot_difficulty"
	EnvBotIdentities    = "dobble_bot_identities"
)

var ErrInvalidConfig = errors.New("invalid config")

type GameConfig struct {
	SymbolsPerCard  int  `yaml:"symbols_per_card"`
	BanBaseMs       int  `yaml:"ban_base_ms"`
	MinPlayers      int  `yaml:"min_players"`
	MaxPlayers      int  `yaml:"max_players"` // 0 means no cap
	TrustClientCard bool `yaml:"trust_client_card"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	// ChooseRPS and ChooseBurst bound how fast one peer may send choose frames.
	ChooseRPS   float64 `yaml:"choose_rps"`
	ChooseBurst int     `yaml:"choose_burst"`
}

// RedisConfig points at the results store. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BotConfig struct {
	Enabled bool `yaml:"enabled"`
	// AutoFillDelaySec configures how many seconds to wait before adding a bot to a solo human lobby.
	AutoFillDelaySec int    `yaml:"auto_fill_delay_sec"`
	MinReactionTicks int    `yaml:"min_reaction_ticks"`
	MaxReactionTicks int    `yaml:"max_reaction_ticks"`
	Difficulty       string `yaml:"difficulty"`
	// IdentitiesPath optionally replaces the built-in bot names with a JSON file.
	IdentitiesPath string `yaml:"identities_path"`
}

type Config struct {
	Game   GameConfig   `yaml:"game"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Bots   BotConfig    `yaml:"bots"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	rules := app.DefaultRules()
	return Config{
		Game: GameConfig{
			SymbolsPerCard:  rules.SymbolsPerCard,
			BanBaseMs:       int(rules.BanBase.Milliseconds()),
			MinPlayers:      rules.MinPlayers,
			MaxPlayers:      rules.MaxPlayers,
			TrustClientCard: rules.TrustClaimedCard,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
			ChooseRPS:    10,
			ChooseBurst:  5,
		},
		Bots: BotConfig{
			Enabled:          true,
			AutoFillDelaySec: 5,
			MinReactionTicks: 5,
			MaxReactionTicks: 15,
			Difficulty:       "normal",
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from the Nakama runtime env map.
// Unparseable values are reported; absent keys keep their default.
func FromEnv(env map[string]string) (Config, error) {
	cfg := Default()
	var errs []error

	intVal := func(key string, dst *int) {
		val, ok := env[key]
		if !ok {
			return
		}
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = i
	}
	boolVal := func(key string, dst *bool) {
		val, ok := env[key]
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	intVal(EnvSymbolsPerCard, &cfg.Game.SymbolsPerCard)
	intVal(EnvBanBaseMs, &cfg.Game.BanBaseMs)
	intVal(EnvMinPlayers, &cfg.Game.MinPlayers)
	intVal(EnvMaxPlayers, &cfg.Game.MaxPlayers)
	boolVal(EnvTrustClientCard, &cfg.Game.TrustClientCard)
	boolVal(EnvBotsEnabled, &cfg.Bots.Enabled)
	intVal(EnvBotAutoFillDelay, &cfg.Bots.AutoFillDelaySec)
	intVal(EnvBotMinTicks, &cfg.Bots.MinReactionTicks)
	intVal(EnvBotMaxTicks, &cfg.Bots.MaxReactionTicks)
	if val, ok := env[EnvBotDifficulty]; ok {
		cfg.Bots.Difficulty = strings.TrimSpace(val)
	}
	if val, ok := env[EnvBotIdentities]; ok {
		cfg.Bots.IdentitiesPath = strings.TrimSpace(val)
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no session could run with.
func (c Config) Validate() error {
	switch {
	case !domain.SupportedSymbolsPerCard(c.Game.SymbolsPerCard):
		return fmt.Errorf("%w: symbols_per_card %d is not a prime plus one", ErrInvalidConfig, c.Game.SymbolsPerCard)
	case c.Game.BanBaseMs <= 0:
		return fmt.Errorf("%w: ban_base_ms must be positive", ErrInvalidConfig)
	case c.Game.MinPlayers < 1:
		return fmt.Errorf("%w: min_players must be at least 1", ErrInvalidConfig)
	case c.Game.MaxPlayers < 0:
		return fmt.Errorf("%w: max_players must not be negative", ErrInvalidConfig)
	case c.Game.MaxPlayers > 0 && c.Game.MaxPlayers < c.Game.MinPlayers:
		return fmt.Errorf("%w: max_players %d below min_players %d", ErrInvalidConfig, c.Game.MaxPlayers, c.Game.MinPlayers)
	case c.Server.ChooseRPS < 0 || c.Server.ChooseBurst < 0:
		return fmt.Errorf("%w: choose rate must not be negative", ErrInvalidConfig)
	case c.Bots.MinReactionTicks < 0 || c.Bots.MaxReactionTicks < c.Bots.MinReactionTicks:
		return fmt.Errorf("%w: bot reaction ticks %d..%d", ErrInvalidConfig, c.Bots.MinReactionTicks, c.Bots.MaxReactionTicks)
	}
	return nil
}

// Rules converts the game section into session rules.
func (g GameConfig) Rules() app.Rules {
	return app.Rules{
		SymbolsPerCard:   g.SymbolsPerCard,
		BanBase:          time.Duration(g.BanBaseMs) * time.Millisecond,
		MinPlayers:       g.MinPlayers,
		MaxPlayers:       g.MaxPlayers,
		TrustClaimedCard: g.TrustClientCard,
	}
}
