package tasksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status is the engine's common status vocabulary. Providers map their raw
// wire statuses onto it through MapRawStatus.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	StatusCanceled   Status = "Canceled"
	// StatusUnknown means the raw status was not recognized. The engine
	// treats it as still processing and leaves the record untouched.
	StatusUnknown Status = "Unknown"
)

// StatusInfo is the normalized view of one provider status response.
type StatusInfo struct {
	Status Status
	// Output is set when the provider embeds the result reference in the
	// status response itself (prediction-style APIs).
	Output   string
	ErrorMsg string
}

type ResultState int

const (
	// ResultReady means the result payload is available.
	ResultReady ResultState = iota
	// ResultPending means the provider reported success but the artifact is
	// not ready yet. The engine treats this like a still-processing status.
	ResultPending
	// ResultUnavailable means the provider has no result for a task it
	// reported as succeeded.
	ResultUnavailable
)

// Result is the normalized view of one provider result-fetch response.
type Result struct {
	State      ResultState
	OutputURLs []string
}

// FirstOutput returns the first output URL, or empty when there is none.
func (r Result) FirstOutput() string {
	if len(r.OutputURLs) == 0 {
		return ""
	}
	return r.OutputURLs[0]
}

// Provider normalizes one external provider's task-status and result-fetch
// calls into the engine's common shape. Implementations wrap network and
// malformed-response failures with ErrProviderUnavailable so the engine can
// tell a transient fault from a provider-reported job failure.
type Provider interface {
	Name() string
	GetStatus(ctx context.Context, externalID string) (StatusInfo, error)
	GetResult(ctx context.Context, externalID string) (Result, error)
}

// ErrProviderUnavailable marks transient network or provider failures. The
// engine leaves the local record unchanged and lets the next poll or sweep
// retry; it never converts this into a Failed status.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Unavailable wraps err as a provider-unavailable failure.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
}

// MapRawStatus maps a provider's raw status string onto the common
// vocabulary. Matching is case-insensitive and by substring containment,
// because providers emit inconsistent casing and synonyms (RUNNING, Queued,
// SUCCESS, SUCCEEDED, FAILED, FAILURE, ...). Unrecognized values map to
// StatusUnknown, which the engine treats as a no-op.
func MapRawStatus(raw string) Status {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return StatusUnknown
	}

	switch {
	case strings.Contains(upper, "CANCEL"):
		return StatusCanceled
	case strings.Contains(upper, "FAIL"):
		return StatusFailed
	case strings.Contains(upper, "SUCCE") || strings.Contains(upper, "COMPLETE"):
		return StatusSucceeded
	case strings.Contains(upper, "RUNNING") || strings.Contains(upper, "QUEUE") ||
		strings.Contains(upper, "PENDING") || strings.Contains(upper, "PROCESS") ||
		strings.Contains(upper, "START"):
		return StatusProcessing
	default:
		return StatusUnknown
	}
}
