package cli

import (
	"context"
	"time"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/credits"
	"github.com/fluxhive/fluxhive/internal/database"
	"github.com/fluxhive/fluxhive/internal/database/repositories"
	"github.com/fluxhive/fluxhive/internal/providers/prediction"
	"github.com/fluxhive/fluxhive/internal/providers/workflow"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/internal/storage/artifacts"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// RunSweep executes a single synchronization sweep and exits. Useful from a
// cron job or for catching up after downtime without starting the server.
func RunSweep(configPath string) {
	log := logger.Get()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	taskRepo := repositories.NewRetryingTaskRepository(repositories.NewTaskRepository(db))
	ledger := credits.NewPostgresLedger(db)
	predictionClient := prediction.NewClient(cfg.Providers.Prediction)
	workflowClient := workflow.NewClient(cfg.Providers.Workflow)
	store := artifacts.NewIPFSStore(cfg.Storage)

	generationService := services.NewGenerationService(taskRepo, ledger, predictionClient, workflowClient, store)
	sweeper := services.NewSweeper(taskRepo, generationService, cfg.Sweep)

	result := sweeper.Run(ctx)
	log.Info().
		Int("total", result.Total).
		Int("updated", result.Updated).
		Int("still_processing", result.StillProcessing).
		Int("errors", len(result.Errors)).
		Msg("Sweep finished")
}
