package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluxhive/fluxhive/internal/api/handlers"
	"github.com/fluxhive/fluxhive/internal/api/middleware"
	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/credits"
	"github.com/fluxhive/fluxhive/internal/database/repositories"
	"github.com/fluxhive/fluxhive/internal/mocks"
	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/providers/prediction"
	"github.com/fluxhive/fluxhive/internal/providers/workflow"
	"github.com/fluxhive/fluxhive/internal/services"
	"github.com/fluxhive/fluxhive/internal/tasksync"
)

const testSecret = "test-secret"

type handlerFixture struct {
	repo   *mocks.MockTaskRepository
	ledger *mocks.MockLedger
	router *mux.Router
}

// newHandlerFixture wires the task handler behind the auth middleware the way
// the real router does.
func newHandlerFixture(t *testing.T, predictionURL string) *handlerFixture {
	t.Helper()

	repo := new(mocks.MockTaskRepository)
	ledger := new(mocks.MockLedger)
	store := new(mocks.MockArtifactStore)

	predictionClient := prediction.NewClient(config.PredictionConfig{
		GatewayURL:    predictionURL,
		StatusTimeout: 5 * time.Second,
	})
	workflowClient := workflow.NewClient(config.WorkflowConfig{
		BaseURL:       predictionURL,
		StatusTimeout: 5 * time.Second,
	})

	service := services.NewGenerationService(repo, ledger, predictionClient, workflowClient, store)
	handler := handlers.NewTaskHandler(service, repo)

	router := mux.NewRouter()
	authed := router.PathPrefix("/api").Subrouter()
	authed.Use(middleware.Auth(testSecret))
	authed.HandleFunc("/generate", handler.Generate).Methods("POST")
	authed.HandleFunc("/tasks", handler.ListTasks).Methods("GET")
	authed.HandleFunc("/tasks/status", handler.PollStatus).Methods("POST")
	authed.HandleFunc("/tasks/{id}", handler.GetTask).Methods("GET")

	return &handlerFixture{repo: repo, ledger: ledger, router: router}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *handlerFixture) do(t *testing.T, method, path string, payload interface{}, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGenerateRequiresAuth(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	rec := f.do(t, http.MethodPost, "/api/generate", map[string]string{"model": models.ModelPro}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/generate", nil, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateReturnsCreatedTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "pred-1"})
	}))
	defer server.Close()

	f := newHandlerFixture(t, server.URL)

	f.ledger.On("GetOrCreateAccount", mock.Anything, "user-1").
		Return(&credits.Account{UserID: "user-1", Credit: 100}, nil)
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Task")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Task).ID = 42
		}).Return(nil)
	f.ledger.On("Charge", mock.Anything, "user-1", int64(42), mock.AnythingOfType("int64")).Return(nil)
	f.repo.On("Update", mock.Anything, int64(42), mock.Anything).Return(nil)

	rec := f.do(t, http.MethodPost, "/api/generate",
		map[string]string{"model": models.ModelPro, "prompt": "a cat"}, bearerToken(t, "user-1"))

	require.Equal(t, http.StatusCreated, rec.Code)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, float64(42), view["id"])
	// Statuses are presented lower-case.
	assert.Equal(t, "processing", view["status"])
}

func TestGenerateMapsServiceErrors(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	t.Run("unknown model is 400", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/generate",
			map[string]string{"model": "made-up", "prompt": "a cat"}, bearerToken(t, "user-1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insufficient credit is 402", func(t *testing.T) {
		f.ledger.On("GetOrCreateAccount", mock.Anything, "user-1").
			Return(&credits.Account{UserID: "user-1", Credit: 0}, nil)

		rec := f.do(t, http.MethodPost, "/api/generate",
			map[string]string{"model": models.ModelPro, "prompt": "a cat"}, bearerToken(t, "user-1"))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}

func TestPollStatusValidatesTaskID(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	rec := f.do(t, http.MethodPost, "/api/tasks/status",
		map[string]interface{}{}, bearerToken(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollStatusReturnsSynchronizedTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "succeeded", "output": "https://cdn.example.com/out.png",
		})
	}))
	defer server.Close()

	f := newHandlerFixture(t, server.URL)

	userID := "user-1"
	stored := &models.Task{ID: 7, UserID: &userID, Model: models.ModelPro, Status: models.TaskStatusProcessing, ExternalTaskID: "ext-7"}
	done := &models.Task{ID: 7, UserID: &userID, Model: models.ModelPro, Status: models.TaskStatusSucceeded, ExternalTaskID: "ext-7"}

	f.repo.On("GetForUser", mock.Anything, int64(7), "user-1").Return(stored, nil)
	f.repo.On("Update", mock.Anything, int64(7), mock.MatchedBy(func(u tasksync.TaskUpdate) bool {
		return u.Status != nil && *u.Status == models.TaskStatusSucceeded
	})).Return(nil)
	f.repo.On("Get", mock.Anything, int64(7)).Return(done, nil)

	rec := f.do(t, http.MethodPost, "/api/tasks/status",
		map[string]int64{"task_id": 7}, bearerToken(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "succeeded", view["status"])
}

func TestPollStatusUnknownTaskIs404(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	f.repo.On("GetForUser", mock.Anything, int64(99), "user-1").
		Return(nil, repositories.ErrTaskNotFound)

	rec := f.do(t, http.MethodPost, "/api/tasks/status",
		map[string]int64{"task_id": 99}, bearerToken(t, "user-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskReturnsStoredRecord(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	userID := "user-1"
	output := "https://ipfs.io/ipfs/QmDone"
	task := &models.Task{
		ID: 8, UserID: &userID, Model: models.ModelClothingTryon,
		Status: models.TaskStatusSucceeded, ExternalTaskID: "wf-8", OutputURL: &output,
	}
	f.repo.On("GetForUser", mock.Anything, int64(8), "user-1").Return(task, nil)

	rec := f.do(t, http.MethodGet, "/api/tasks/8", nil, bearerToken(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "succeeded", view["status"])
	assert.Equal(t, output, view["output_url"])
}

func TestListTasksReturnsPage(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	userID := "user-1"
	tasks := []*models.Task{
		{ID: 12, UserID: &userID, Model: models.ModelPro, Status: models.TaskStatusSucceeded},
		{ID: 11, UserID: &userID, Model: models.ModelPro, Status: models.TaskStatusFailed},
	}
	f.repo.On("ListForUser", mock.Anything, "user-1", "", 2, 10).Return(tasks, 23, nil)

	rec := f.do(t, http.MethodGet, "/api/tasks?page=2&pageSize=10", nil, bearerToken(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Total    int                      `json:"total"`
		Page     int                      `json:"page"`
		PageSize int                      `json:"page_size"`
		Data     []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 23, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, float64(12), resp.Data[0]["id"])
	assert.Equal(t, "succeeded", resp.Data[0]["status"])
}

func TestListTasksAppliesModelFilterAndDefaults(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	f.repo.On("ListForUser", mock.Anything, "user-1", models.ModelClothingTryon, 1, 10).
		Return([]*models.Task{}, 0, nil)

	rec := f.do(t, http.MethodGet, "/api/tasks?model=clothing-tryon", nil, bearerToken(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	f.repo.AssertExpectations(t)
}

func TestListTasksRejectsUnknownModel(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	rec := f.do(t, http.MethodGet, "/api/tasks?model=made-up", nil, bearerToken(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.repo.AssertNotCalled(t, "ListForUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetTaskRejectsBadID(t *testing.T) {
	f := newHandlerFixture(t, "http://unused.invalid")

	rec := f.do(t, http.MethodGet, "/api/tasks/not-a-number", nil, bearerToken(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
