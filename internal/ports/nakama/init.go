package nakama

import (
	"context"
	"database/sql"

	"dobble/internal/config"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs and match handlers for Nakama runtime.
// A runtime env that does not parse stops the module from loading.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.FromEnv(env)
	if err != nil {
		logger.Error("InitModule: Invalid runtime env: %v", err)
		return err
	}

	if err := RegisterRPCs(initializer); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameDobble, NewMatch); err != nil {
		return err
	}

	logger.Info("Dobble Go module loaded (symbols_per_card=%d, max_players=%d, bots=%t).",
		cfg.Game.SymbolsPerCard, cfg.Game.MaxPlayers, cfg.Bots.Enabled)
	return nil
}
