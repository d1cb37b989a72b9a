// Package artifacts relocates provider-hosted results into storage the
// application controls. Provider URLs expire; the relocated URL is what gets
// persisted on the task record.
package artifacts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/fluxhive/fluxhive/internal/config"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

// Store relocates one result artifact and returns its new URL.
type Store interface {
	Relocate(ctx context.Context, srcURL string, taskID int64) (string, error)
}

// IPFSStore pins downloaded artifacts to an IPFS node and serves them through
// a gateway.
type IPFSStore struct {
	shell      *shell.Shell
	gatewayURL string
	httpClient *http.Client
}

func NewIPFSStore(cfg config.StorageConfig) *IPFSStore {
	return &IPFSStore{
		shell:      shell.NewShell(cfg.IPFSAPIURL),
		gatewayURL: strings.TrimRight(cfg.IPFSGatewayURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *IPFSStore) Relocate(ctx context.Context, srcURL string, taskID int64) (string, error) {
	log := logger.WithComponent("artifact_store")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("result download returned %d", resp.StatusCode)
	}

	cid, err := s.shell.Add(resp.Body, shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("failed to add result to ipfs: %w", err)
	}

	relocated := fmt.Sprintf("%s/ipfs/%s", s.gatewayURL, cid)
	log.Debug().
		Int64("task_id", taskID).
		Str("cid", cid).
		Str("url", relocated).
		Msg("Result relocated")
	return relocated, nil
}

var _ Store = (*IPFSStore)(nil)
