package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/monitoring/metrics"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// Sweeper periodically reconciles Processing tasks that have an accepted
// provider job, catching completions whose webhook was lost and tasks nobody
// is polling.
type Sweeper struct {
	repo    TaskRepository
	service *GenerationService
	cfg     config.SweepConfig
	cron    *cron.Cron
}

func NewSweeper(repo TaskRepository, service *GenerationService, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{
		repo:    repo,
		service: service,
		cfg:     cfg,
		cron:    cron.New(),
	}
}

// Start schedules the sweep. The schedule accepts standard cron expressions
// and @every intervals.
func (s *Sweeper) Start() error {
	log := logger.WithComponent("sweeper")

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Run(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Info().Str("schedule", s.cfg.Schedule).Msg("Sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Run executes one sweep: load the recent Processing window, partition by
// provider routing, and batch-synchronize each partition.
func (s *Sweeper) Run(ctx context.Context) tasksync.BatchResult {
	log := logger.WithComponent("sweeper")
	metrics.SweepRuns.Inc()

	since := time.Now().Add(-s.cfg.Window)
	tasks, err := s.repo.ListProcessing(ctx, since, s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load processing tasks")
		return tasksync.BatchResult{Errors: []string{err.Error()}}
	}

	var workflowTasks, predictionTasks []*models.Task
	for _, task := range tasks {
		if models.UsesWorkflowProvider(task.Model) {
			workflowTasks = append(workflowTasks, task)
		} else {
			predictionTasks = append(predictionTasks, task)
		}
	}

	total := tasksync.BatchResult{Total: len(tasks), Errors: []string{}}

	if len(workflowTasks) > 0 {
		result := tasksync.SyncBatch(ctx, workflowTasks,
			s.service.ProviderFor(models.ModelClothingTryon), s.repo,
			s.service.SyncOptionsFor(models.ModelClothingTryon))
		merge(&total, result)
	}
	if len(predictionTasks) > 0 {
		result := tasksync.SyncBatch(ctx, predictionTasks,
			s.service.ProviderFor(models.ModelPro), s.repo,
			s.service.SyncOptionsFor(models.ModelPro))
		merge(&total, result)
	}

	log.Info().
		Int("total", total.Total).
		Int("updated", total.Updated).
		Int("succeeded", total.Succeeded).
		Int("failed", total.Failed).
		Int("still_processing", total.StillProcessing).
		Int("errors", len(total.Errors)).
		Msg("Sweep completed")
	return total
}

func merge(into *tasksync.BatchResult, from tasksync.BatchResult) {
	into.Updated += from.Updated
	into.Succeeded += from.Succeeded
	into.Failed += from.Failed
	into.StillProcessing += from.StillProcessing
	into.Errors = append(into.Errors, from.Errors...)
}
