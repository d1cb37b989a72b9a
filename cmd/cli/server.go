package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fluxhive/fluxhive/internal/api"
	"github.com/fluxhive/fluxhive/internal/api/handlers"
	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/credits"
	"github.com/fluxhive/fluxhive/internal/database"
	"github.com/fluxhive/fluxhive/internal/database/repositories"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/providers/prediction"
	"github.com/fluxhive/fluxhive/internal/providers/workflow"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/internal/storage/artifacts"
	"github.com/fluxhive/fluxhive/internal/telemetry"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// verifyPortAvailable checks if the given port is available for use
func verifyPortAvailable(host string, port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, portNum))
	if err != nil {
		return fmt.Errorf("port %s is not available: %w", port, err)
	}
	ln.Close()
	return nil
}

func RunServer(configPath string) {
	log := logger.Get()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Successfully connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	taskRepo := repositories.NewRetryingTaskRepository(repositories.NewTaskRepository(db))
	ledger := credits.NewPostgresLedger(db)
	predictionClient := prediction.NewClient(cfg.Providers.Prediction)
	workflowClient := workflow.NewClient(cfg.Providers.Workflow)
	store := artifacts.NewIPFSStore(cfg.Storage)

	generationService := services.NewGenerationService(taskRepo, ledger, predictionClient, workflowClient, store)

	sweeper := services.NewSweeper(taskRepo, generationService, cfg.Sweep)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweeper")
	}

	taskHandler := handlers.NewTaskHandler(generationService, taskRepo)
	webhookHandler := handlers.NewWebhookHandler(
		taskRepo,
		generationService.ProviderFor(models.ModelClothingTryon),
		services.RelocationHook(store),
	)
	healthHandler := handlers.NewHealthHandler(db)

	router := api.NewRouter(api.RouterDeps{
		TaskHandler:    taskHandler,
		WebhookHandler: webhookHandler,
		HealthHandler:  healthHandler,
		Redis:          redisClient,
		JWTSecret:      cfg.Auth.JWTSecret,
	}, cfg.Server.Endpoint)

	if err := verifyPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatal().
			Err(err).
			Str("host", cfg.Server.Host).
			Str("port", cfg.Server.Port).
			Msg("Server port is not available")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Info().
			Str("address", server.Addr).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-stopChan
	log.Info().Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	} else {
		log.Info().Msg("Server HTTP connections gracefully closed")
	}

	sweeper.Stop()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Telemetry shutdown error")
	}

	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close redis client")
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database connection")
	}

	log.Info().Msg("Shutdown complete")
}
