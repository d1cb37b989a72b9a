package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxhive/fluxhive/internal/credits"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/providers/prediction"
	"github.com/fluxhive/fluxhive/internal/providers/workflow"
	"github.com/fluxhive/fluxhive/internal/storage/artifacts"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

var (
	ErrInvalidRequest     = errors.New("invalid generation request")
	ErrUnknownModel       = errors.New("unknown model")
	ErrInsufficientCredit = credits.ErrInsufficientCredit
	ErrFreeTierExhausted  = errors.New("free tier monthly limit reached")
)

// TaskRepository is the persistence surface the service layer depends on.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id int64) (*models.Task, error)
	GetForUser(ctx context.Context, id int64, userID string) (*models.Task, error)
	ListForUser(ctx context.Context, userID, model string, page, pageSize int) ([]*models.Task, int, error)
	Update(ctx context.Context, id int64, update tasksync.TaskUpdate) error
	FindByExternalID(ctx context.Context, model, externalID string) (*models.Task, error)
	ListProcessing(ctx context.Context, since time.Time, limit int) ([]*models.Task, error)
	CountForUserModelSince(ctx context.Context, userID, model string, since time.Time) (int, error)
	Delete(ctx context.Context, id int64) error
}

// GenerateRequest is one generation submission. Text-to-image models need a
// prompt; the try-on model needs a user photo and at least one garment URL.
type GenerateRequest struct {
	Model            string `json:"model"`
	Prompt           string `json:"prompt,omitempty"`
	AspectRatio      string `json:"aspect_ratio,omitempty"`
	LoraName         string `json:"lora_name,omitempty"`
	InputImageURL    string `json:"input_image_url,omitempty"`
	UserPhotoURL     string `json:"user_photo_url,omitempty"`
	TopClothesURL    string `json:"top_clothes_url,omitempty"`
	BottomClothesURL string `json:"bottom_clothes_url,omitempty"`
}

func (r GenerateRequest) validate() error {
	if !models.KnownModel(r.Model) {
		return ErrUnknownModel
	}
	if models.UsesWorkflowProvider(r.Model) {
		if r.UserPhotoURL == "" {
			return fmt.Errorf("%w: user photo is required", ErrInvalidRequest)
		}
		if r.TopClothesURL == "" && r.BottomClothesURL == "" {
			return fmt.Errorf("%w: at least one garment is required", ErrInvalidRequest)
		}
		return nil
	}
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	return nil
}

// GenerationService owns the submission flow: meter credits, record the task,
// dispatch it to the routed provider, and record the provider's job id.
type GenerationService struct {
	repo       TaskRepository
	ledger     credits.Ledger
	prediction *prediction.Client
	workflow   *workflow.Client
	predAdapt  tasksync.Provider
	wfAdapt    tasksync.Provider
	store      artifacts.Store
}

func NewGenerationService(
	repo TaskRepository,
	ledger credits.Ledger,
	predictionClient *prediction.Client,
	workflowClient *workflow.Client,
	store artifacts.Store,
) *GenerationService {
	return &GenerationService{
		repo:       repo,
		ledger:     ledger,
		prediction: predictionClient,
		workflow:   workflowClient,
		predAdapt:  prediction.NewAdapter(predictionClient),
		wfAdapt:    workflow.NewAdapter(workflowClient),
		store:      store,
	}
}

// ProviderFor routes a task to its status provider adapter by model tag. The
// routing decision lives here at the entry-point layer; the sync engine stays
// provider-agnostic.
func (s *GenerationService) ProviderFor(model string) tasksync.Provider {
	if models.UsesWorkflowProvider(model) {
		return s.wfAdapt
	}
	return s.predAdapt
}

// SyncOptionsFor returns the sync options matching the model's provider.
// Workflow results need a second fetch plus relocation into our storage;
// prediction results are embedded in the status response and need neither.
func (s *GenerationService) SyncOptionsFor(model string) tasksync.Options {
	if models.UsesWorkflowProvider(model) {
		return tasksync.Options{
			FetchResultOnSuccess: true,
			OnResultFetched:      RelocationHook(s.store),
		}
	}
	return tasksync.Options{}
}

// RelocationHook adapts an artifact store into the engine's result hook.
func RelocationHook(store artifacts.Store) tasksync.ResultHook {
	return func(ctx context.Context, result tasksync.Result, task *models.Task) (string, error) {
		src := result.FirstOutput()
		if src == "" {
			return "", errors.New("provider returned no output files")
		}
		return store.Relocate(ctx, src, task.ID)
	}
}

// Generate meters, records, and submits one generation request. On a
// submission failure the record is deleted and the charge refunded; the task
// never reaches the sync engine without an accepted provider job behind it.
func (s *GenerationService) Generate(ctx context.Context, userID string, req GenerateRequest) (*models.Task, error) {
	log := logger.WithComponent("generation")

	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.Model == models.ModelFreeSchnell {
		monthStart := startOfMonth(time.Now())
		count, err := s.repo.CountForUserModelSince(ctx, userID, req.Model, monthStart)
		if err != nil {
			return nil, err
		}
		if count >= models.FreeMonthlyLimit {
			return nil, ErrFreeTierExhausted
		}
	}

	cost := int64(models.CreditCost[req.Model])
	account, err := s.ledger.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cost > 0 && account.Credit < cost {
		return nil, ErrInsufficientCredit
	}

	input := req.Prompt
	if models.UsesWorkflowProvider(req.Model) {
		input = req.UserPhotoURL
	}
	task := &models.Task{
		UserID:   &userID,
		Model:    req.Model,
		Status:   models.TaskStatusProcessing,
		InputURL: &input,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.ledger.Charge(ctx, userID, task.ID, cost); err != nil {
		if delErr := s.repo.Delete(ctx, task.ID); delErr != nil {
			log.Error().Err(delErr).Int64("task_id", task.ID).Msg("Failed to delete task after charge failure")
		}
		return nil, err
	}

	externalID, err := s.submit(ctx, req)
	if err != nil {
		log.Warn().Err(err).Int64("task_id", task.ID).Str("model", req.Model).Msg("Submission failed, rolling back")
		if refundErr := s.ledger.Refund(ctx, userID, task.ID); refundErr != nil {
			log.Error().Err(refundErr).Int64("task_id", task.ID).Msg("Failed to refund after submission failure")
		}
		if delErr := s.repo.Delete(ctx, task.ID); delErr != nil {
			log.Error().Err(delErr).Int64("task_id", task.ID).Msg("Failed to delete task after submission failure")
		}
		return nil, fmt.Errorf("submission failed: %w", err)
	}

	if err := s.repo.Update(ctx, task.ID, tasksync.TaskUpdate{ExternalTaskID: &externalID}); err != nil {
		return nil, err
	}
	task.ExternalTaskID = externalID

	log.Info().
		Int64("task_id", task.ID).
		Str("external_id", externalID).
		Str("model", req.Model).
		Msg("Generation submitted")
	return task, nil
}

func (s *GenerationService) submit(ctx context.Context, req GenerateRequest) (string, error) {
	if models.UsesWorkflowProvider(req.Model) {
		return s.workflow.CreateTryonTask(ctx, workflow.TryonRequest{
			UserPhotoURL:     req.UserPhotoURL,
			TopClothesURL:    req.TopClothesURL,
			BottomClothesURL: req.BottomClothesURL,
		})
	}
	return s.prediction.Generate(ctx, prediction.GenerateRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		LoraName:    req.LoraName,
		InputImage:  req.InputImageURL,
	})
}

// PollTask answers a user's status poll. Terminal tasks are answered straight
// from the repository; processing tasks with an accepted provider job are
// synchronized first. A provider fault leaves the stored state untouched and
// the caller simply sees the task as still processing.
func (s *GenerationService) PollTask(ctx context.Context, userID string, taskID int64) (*models.Task, error) {
	log := logger.WithComponent("generation")

	task, err := s.repo.GetForUser(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	if task.Status.IsTerminal() || task.ExternalTaskID == "" {
		return task, nil
	}

	outcome, err := tasksync.SyncOne(ctx, task, s.ProviderFor(task.Model), s.repo, s.SyncOptionsFor(task.Model))
	if err != nil {
		log.Warn().Err(err).Int64("task_id", task.ID).Msg("Status sync failed, returning stored state")
		return task, nil
	}
	if !outcome.Changed {
		return task, nil
	}

	return s.repo.Get(ctx, task.ID)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
