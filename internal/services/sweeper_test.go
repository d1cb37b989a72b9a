package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/internal/tasksync"
)

func sweepConfig() config.SweepConfig {
	return config.SweepConfig{
		Schedule:  "@every 5m",
		Window:    time.Hour,
		BatchSize: 50,
	}
}

func TestSweeperRunListFailure(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid", "http://unused.invalid")
	f.repo.On("ListProcessing", mock.Anything, mock.Anything, 50).
		Return(nil, errors.New("db down"))

	sweeper := services.NewSweeper(f.repo, f.service, sweepConfig())
	result := sweeper.Run(context.Background())

	assert.Zero(t, result.Total)
	assert.Len(t, result.Errors, 1)
}

func TestSweeperRunPartitionsByProvider(t *testing.T) {
	predictionServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "succeeded", "output": "https://cdn.example.com/done.png",
		})
	}))
	defer predictionServer.Close()

	workflowServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Status endpoint: still running, so the workflow task stays untouched.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "msg": "success", "data": json.RawMessage(`"RUNNING"`),
		})
	}))
	defer workflowServer.Close()

	f := newServiceFixture(t, predictionServer.URL, workflowServer.URL)

	userID := "user-1"
	tasks := []*models.Task{
		{ID: 1, UserID: &userID, Model: models.ModelPro, Status: models.TaskStatusProcessing, ExternalTaskID: "pred-1"},
		{ID: 2, UserID: &userID, Model: models.ModelClothingTryon, Status: models.TaskStatusProcessing, ExternalTaskID: "wf-1"},
	}

	f.repo.On("ListProcessing", mock.Anything, mock.Anything, 50).Return(tasks, nil)
	f.repo.On("Update", mock.Anything, int64(1), mock.MatchedBy(func(u tasksync.TaskUpdate) bool {
		return u.Status != nil && *u.Status == models.TaskStatusSucceeded
	})).Return(nil)

	sweeper := services.NewSweeper(f.repo, f.service, sweepConfig())
	result := sweeper.Run(context.Background())

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.StillProcessing)
	assert.Empty(t, result.Errors)
	f.repo.AssertExpectations(t)
}

func TestSweeperStartAndStop(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid", "http://unused.invalid")

	sweeper := services.NewSweeper(f.repo, f.service, sweepConfig())
	assert.NoError(t, sweeper.Start())
	sweeper.Stop()
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid", "http://unused.invalid")

	sweeper := services.NewSweeper(f.repo, f.service, config.SweepConfig{
		Schedule:  "not a schedule",
		Window:    time.Hour,
		BatchSize: 50,
	})
	assert.Error(t, sweeper.Start())
}
