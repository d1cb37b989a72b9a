package workflow

import (
	"context"

	"github.com/fluxhive/fluxhive/internal/tasksync"
)

// Adapter normalizes the workflow-graph API into the sync engine's provider
// shape. The outputs endpoint's task-running sentinel surfaces as a pending
// result, not an error: a success signal without a ready artifact keeps the
// local task processing.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) GetStatus(ctx context.Context, externalID string) (tasksync.StatusInfo, error) {
	raw, errMsg, err := a.client.GetTaskStatus(ctx, externalID)
	if err != nil {
		return tasksync.StatusInfo{}, err
	}
	return tasksync.StatusInfo{
		Status:   tasksync.MapRawStatus(raw),
		ErrorMsg: errMsg,
	}, nil
}

func (a *Adapter) GetResult(ctx context.Context, externalID string) (tasksync.Result, error) {
	files, pending, err := a.client.GetTaskOutputs(ctx, externalID)
	if err != nil {
		return tasksync.Result{}, err
	}
	if pending {
		return tasksync.Result{State: tasksync.ResultPending}, nil
	}
	if len(files) == 0 {
		return tasksync.Result{State: tasksync.ResultUnavailable}, nil
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		if f.FileURL != "" {
			urls = append(urls, f.FileURL)
		}
	}
	if len(urls) == 0 {
		return tasksync.Result{State: tasksync.ResultUnavailable}, nil
	}
	return tasksync.Result{State: tasksync.ResultReady, OutputURLs: urls}, nil
}

var _ tasksync.Provider = (*Adapter)(nil)
