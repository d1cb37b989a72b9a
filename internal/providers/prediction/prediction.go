// Package prediction talks to the AI gateway fronting the prediction-style
// inference provider. A prediction carries a single status and embeds its
// output in the status response, so result fetching is a pass-through.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/internal/tasksync"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

const providerName = "prediction"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.PredictionConfig) *Client {
	return &Client{
		baseURL:    cfg.GatewayURL,
		httpClient: &http.Client{Timeout: cfg.StatusTimeout},
	}
}

// GenerateRequest is a text-to-image submission.
type GenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	Steps       int     `json:"num_inference_steps,omitempty"`
	Guidance    float64 `json:"guidance_scale,omitempty"`
	LoraName    string  `json:"lora_trigger_word,omitempty"`
	InputImage  string  `json:"input_image,omitempty"`
}

type generateResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Generate submits a prediction and returns the provider's job id.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	log := logger.WithComponent(providerName)

	body, err := json.Marshal(map[string]interface{}{
		"model": req.Model,
		"input": req,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", tasksync.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", tasksync.Unavailable(providerName, fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", tasksync.Unavailable(providerName, fmt.Errorf("malformed generate response: %v", err))
	}
	if resp.StatusCode >= 400 || out.ID == "" {
		if out.Error == "" {
			out.Error = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return "", fmt.Errorf("prediction rejected: %s", out.Error)
	}

	log.Debug().Str("prediction_id", out.ID).Str("model", req.Model).Msg("Prediction submitted")
	return out.ID, nil
}

// statusResponse is the gateway's prediction status blob. Output may be a
// single URL or an array of URLs depending on the model.
type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (s *statusResponse) firstOutput() string {
	if len(s.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(s.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(s.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (c *Client) getTaskStatus(ctx context.Context, externalID string) (*statusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/task/"+externalID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, tasksync.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, tasksync.Unavailable(providerName, fmt.Errorf("status call returned %d", resp.StatusCode))
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, tasksync.Unavailable(providerName, fmt.Errorf("malformed status response: %v", err))
	}
	return &out, nil
}

// Adapter normalizes the prediction API into the sync engine's provider shape.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) GetStatus(ctx context.Context, externalID string) (tasksync.StatusInfo, error) {
	blob, err := a.client.getTaskStatus(ctx, externalID)
	if err != nil {
		return tasksync.StatusInfo{}, err
	}
	return tasksync.StatusInfo{
		Status:   tasksync.MapRawStatus(blob.Status),
		Output:   blob.firstOutput(),
		ErrorMsg: blob.Error,
	}, nil
}

// GetResult is a pass-through over the status call: the output is embedded in
// the status response itself.
func (a *Adapter) GetResult(ctx context.Context, externalID string) (tasksync.Result, error) {
	blob, err := a.client.getTaskStatus(ctx, externalID)
	if err != nil {
		return tasksync.Result{}, err
	}
	if tasksync.MapRawStatus(blob.Status) != tasksync.StatusSucceeded {
		return tasksync.Result{State: tasksync.ResultPending}, nil
	}
	output := blob.firstOutput()
	if output == "" {
		return tasksync.Result{State: tasksync.ResultUnavailable}, nil
	}
	return tasksync.Result{State: tasksync.ResultReady, OutputURLs: []string{output}}, nil
}

var _ tasksync.Provider = (*Adapter)(nil)
