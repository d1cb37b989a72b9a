package cli

import (
	"context"
	"time"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/database"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

func RunMigrate(configPath string) {
	log := logger.Get()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migrations completed successfully")
}
