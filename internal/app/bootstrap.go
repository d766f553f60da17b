package app

import (
	"context"

	"github.com/rs/zerolog"

	"smc-lab/internal/config"
	"smc-lab/internal/logging"
)

// Bootstrap loads .env, the config file and the environment, then builds
// the root logger tagged with the command name.
func Bootstrap(ctx context.Context, command, configPath string) (*config.Config, zerolog.Logger, error) {
	config.LoadEnvFile(".env")

	cfg, err := config.Load(ctx, configPath, nil)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Logging.Options())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.With().Str("cmd", command).Logger(), nil
}
