// Package workflow talks to the workflow-graph execution provider used for
// the clothing try-on pipeline. Unlike the prediction API, a successful
// status here does not imply the artifact is ready: outputs are fetched with
// a second call that can itself report the task as still running.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

const providerName = "workflow"

// taskRunningCode is the provider's "success reported but outputs not ready"
// sentinel on the outputs endpoint.
const (
	taskRunningCode = 804
	taskRunningMsg  = "APIKEY_TASK_IS_RUNNING"
)

var ErrQueueNotReady = errors.New("task not yet queued by provider")

type Client struct {
	baseURL        string
	apiKey         string
	cfg            config.WorkflowConfig
	statusClient   *http.Client
	transferClient *http.Client
}

func NewClient(cfg config.WorkflowConfig) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		cfg:            cfg,
		statusClient:   &http.Client{Timeout: cfg.StatusTimeout},
		transferClient: &http.Client{Timeout: cfg.TransferTimeout},
	}
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, client *http.Client, endpoint string, payload interface{}) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, tasksync.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, tasksync.Unavailable(providerName, fmt.Errorf("%s returned %d", endpoint, resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, tasksync.Unavailable(providerName, fmt.Errorf("malformed response from %s: %v", endpoint, err))
	}
	return &env, nil
}

// statusData is the status endpoint's object form. The provider sometimes
// answers with a bare status string instead; GetTaskStatus handles both.
type statusData struct {
	TaskID     string `json:"taskId"`
	TaskStatus string `json:"taskStatus"`
	Error      string `json:"error,omitempty"`
}

// GetTaskStatus returns the raw provider status string and any carried error
// text for the given job.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (string, string, error) {
	env, err := c.post(ctx, c.statusClient, "/task/openapi/status", map[string]string{
		"apiKey": c.apiKey,
		"taskId": taskID,
	})
	if err != nil {
		return "", "", err
	}
	if env.Code != 0 {
		return "", "", tasksync.Unavailable(providerName, fmt.Errorf("status call failed: %s", env.Msg))
	}

	var raw string
	if err := json.Unmarshal(env.Data, &raw); err == nil {
		return raw, "", nil
	}
	var data statusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", "", tasksync.Unavailable(providerName, fmt.Errorf("malformed status data: %v", err))
	}
	return data.TaskStatus, data.Error, nil
}

// OutputFile is one entry of the outputs endpoint.
type OutputFile struct {
	FileURL string `json:"fileUrl"`
}

// GetTaskOutputs fetches the result file list. pending is true when the
// provider answers with its task-running sentinel, meaning the success signal
// arrived before the artifacts were ready.
func (c *Client) GetTaskOutputs(ctx context.Context, taskID string) (files []OutputFile, pending bool, err error) {
	env, err := c.post(ctx, c.statusClient, "/task/openapi/outputs", map[string]string{
		"apiKey": c.apiKey,
		"taskId": taskID,
	})
	if err != nil {
		return nil, false, err
	}
	if env.Code == taskRunningCode && env.Msg == taskRunningMsg {
		return nil, true, nil
	}
	if env.Code != 0 {
		return nil, false, tasksync.Unavailable(providerName, fmt.Errorf("outputs call failed: %s", env.Msg))
	}

	if err := json.Unmarshal(env.Data, &files); err != nil {
		return nil, false, tasksync.Unavailable(providerName, fmt.Errorf("malformed outputs data: %v", err))
	}
	return files, false, nil
}

type uploadData struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// UploadFromURL downloads an input artifact and uploads it to the provider,
// returning the provider-side file name. Transient transfer failures are
// retried with a linear backoff.
func (c *Client) UploadFromURL(ctx context.Context, srcURL, fileType string) (string, error) {
	log := logger.WithComponent(providerName)

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(2*attempt) * time.Second
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying input upload")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		name, err := c.uploadOnce(ctx, srcURL, fileType)
		if err == nil {
			return name, nil
		}
		lastErr = err
		if !errors.Is(err, tasksync.ErrProviderUnavailable) {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) uploadOnce(ctx context.Context, srcURL, fileType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.transferClient.Do(req)
	if err != nil {
		return "", tasksync.Unavailable(providerName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("input download returned %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("apiKey", c.apiKey); err != nil {
		return "", fmt.Errorf("failed to write upload field: %w", err)
	}
	if err := writer.WriteField("fileType", fileType); err != nil {
		return "", fmt.Errorf("failed to write upload field: %w", err)
	}
	part, err := writer.CreateFormFile("file", fileNameFromURL(srcURL))
	if err != nil {
		return "", fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := io.Copy(part, resp.Body); err != nil {
		return "", tasksync.Unavailable(providerName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload body: %w", err)
	}

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/task/openapi/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	uploadReq.Header.Set("Content-Type", writer.FormDataContentType())

	uploadResp, err := c.transferClient.Do(uploadReq)
	if err != nil {
		return "", tasksync.Unavailable(providerName, err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusOK {
		return "", tasksync.Unavailable(providerName, fmt.Errorf("upload returned %d", uploadResp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(uploadResp.Body).Decode(&env); err != nil {
		return "", tasksync.Unavailable(providerName, fmt.Errorf("malformed upload response: %v", err))
	}
	if env.Code != 0 {
		return "", fmt.Errorf("upload rejected: %s", env.Msg)
	}
	var data uploadData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.FileName == "" {
		return "", tasksync.Unavailable(providerName, errors.New("upload response missing file name"))
	}
	return data.FileName, nil
}

type nodeInfo struct {
	NodeID     string `json:"nodeId"`
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

type createData struct {
	TaskID     string `json:"taskId"`
	TaskStatus string `json:"taskStatus"`
}

// TryonRequest carries the input image URLs for one clothing try-on job. The
// user photo is required plus at least one garment.
type TryonRequest struct {
	UserPhotoURL     string
	TopClothesURL    string
	BottomClothesURL string
}

func (r TryonRequest) validate() error {
	if r.UserPhotoURL == "" {
		return errors.New("user photo is required")
	}
	if r.TopClothesURL == "" && r.BottomClothesURL == "" {
		return errors.New("at least one of top or bottom clothes is required")
	}
	return nil
}

// CreateTryonTask uploads the inputs and starts the try-on workflow. The
// workflow graph is chosen by how many garments were supplied.
func (c *Client) CreateTryonTask(ctx context.Context, req TryonRequest) (string, error) {
	log := logger.WithComponent(providerName)

	if err := req.validate(); err != nil {
		return "", err
	}

	userPhoto, err := c.UploadFromURL(ctx, req.UserPhotoURL, "image")
	if err != nil {
		return "", fmt.Errorf("failed to upload user photo: %w", err)
	}

	var topName, bottomName string
	if req.TopClothesURL != "" {
		if topName, err = c.UploadFromURL(ctx, req.TopClothesURL, "image"); err != nil {
			return "", fmt.Errorf("failed to upload top clothes: %w", err)
		}
	}
	if req.BottomClothesURL != "" {
		if bottomName, err = c.UploadFromURL(ctx, req.BottomClothesURL, "image"); err != nil {
			return "", fmt.Errorf("failed to upload bottom clothes: %w", err)
		}
	}

	hasBoth := topName != "" && bottomName != ""
	workflowID := c.cfg.SingleItemWorkflowID
	if hasBoth {
		workflowID = c.cfg.TopBottomWorkflowID
	}

	nodes := []nodeInfo{{NodeID: c.cfg.NodeUserPhoto, FieldName: "image", FieldValue: userPhoto}}
	if hasBoth {
		nodes = append(nodes,
			nodeInfo{NodeID: c.cfg.NodeTopClothes, FieldName: "image", FieldValue: topName},
			nodeInfo{NodeID: c.cfg.NodeBottomClothes, FieldName: "image", FieldValue: bottomName},
		)
	} else {
		// The single-item workflow takes either garment on the same node.
		garment := topName
		if garment == "" {
			garment = bottomName
		}
		nodes = append(nodes, nodeInfo{NodeID: c.cfg.NodeTopClothes, FieldName: "image", FieldValue: garment})
	}

	payload := map[string]interface{}{
		"apiKey":       c.apiKey,
		"workflowId":   workflowID,
		"nodeInfoList": nodes,
	}
	if c.cfg.WebhookURL != "" {
		payload["webhookUrl"] = c.cfg.WebhookURL
	}

	env, err := c.post(ctx, c.statusClient, "/task/openapi/create", payload)
	if err != nil {
		return "", err
	}
	if env.Code != 0 {
		return "", fmt.Errorf("create task rejected: %s", env.Msg)
	}
	var data createData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return "", tasksync.Unavailable(providerName, errors.New("create response missing task id"))
	}

	log.Info().
		Str("task_id", data.TaskID).
		Str("workflow_id", workflowID).
		Bool("both_garments", hasBoth).
		Msg("Workflow task created")
	return data.TaskID, nil
}

// WaitUntilQueued polls the just-created job until the provider reports it
// queued or running. The provider rejects new submissions while the previous
// one has not entered its queue, so batch dispatch waits between creations.
// The poll constants are empirically tuned, not a provider contract.
func (c *Client) WaitUntilQueued(ctx context.Context, taskID string) error {
	for attempt := 0; attempt < c.cfg.QueuePollAttempts; attempt++ {
		raw, _, err := c.GetTaskStatus(ctx, taskID)
		if err == nil {
			switch tasksync.MapRawStatus(raw) {
			case tasksync.StatusProcessing, tasksync.StatusSucceeded, tasksync.StatusFailed:
				return nil
			}
		}
		select {
		case <-time.After(c.cfg.QueuePollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrQueueNotReady
}

// SubmitRetryDelay is the wait between retried batch submissions.
func (c *Client) SubmitRetryDelay() time.Duration { return c.cfg.SubmitRetryDelay }

// SubmitMaxRetries bounds retried batch submissions.
func (c *Client) SubmitMaxRetries() int { return c.cfg.SubmitMaxRetries }

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "upload.jpg"
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "upload.jpg"
	}
	return name
}
