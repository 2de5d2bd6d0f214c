package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// stateStore is the part of the state backend the sync uses.
type stateStore interface {
	GetKey(ctx context.Context, key string) (string, error)
	SetKey(ctx context.Context, key string, value string) error
	Flush(ctx context.Context) error
}

// PendingJob records a submitted download job so an interrupted sync can pick
// it up instead of submitting a new one.
type PendingJob struct {
	RequestID   string    `json:"request_id"`
	TrackingID  string    `json:"tracking_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// LastSyncKey returns the state backend key for an account's last sync time.
func LastSyncKey(accountID string) string {
	return fmt.Sprintf("bulk/%s/last_sync_time", accountID)
}

// PendingJobKey returns the state backend key for an account's pending job.
func PendingJobKey(accountID string) string {
	return fmt.Sprintf("bulk/%s/pending_download", accountID)
}

// GetLastSync retrieves the time of the last successful sync of an account.
// Returns zero-time if none is stored or the value cannot be parsed.
func GetLastSync(ctx context.Context, sc stateStore, accountID string) (time.Time, error) {
	val, err := sc.GetKey(ctx, LastSyncKey(accountID))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time for %s: %w", accountID, err)
	}
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastSync stores the time of the last successful sync of an account.
func SetLastSync(ctx context.Context, sc stateStore, accountID string, t time.Time) error {
	return sc.SetKey(ctx, LastSyncKey(accountID), t.UTC().Format(time.RFC3339Nano))
}

// GetPendingJob returns the pending job of an account, or nil when there is none.
func GetPendingJob(ctx context.Context, sc stateStore, accountID string) (*PendingJob, error) {
	val, err := sc.GetKey(ctx, PendingJobKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending job for %s: %w", accountID, err)
	}
	if val == "" {
		return nil, nil
	}
	var job PendingJob
	if err := json.Unmarshal([]byte(val), &job); err != nil || job.RequestID == "" {
		return nil, nil
	}
	return &job, nil
}

// SetPendingJob stores the pending job of an account.
func SetPendingJob(ctx context.Context, sc stateStore, accountID string, job PendingJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode pending job: %w", err)
	}
	return sc.SetKey(ctx, PendingJobKey(accountID), string(b))
}

// ClearPendingJob forgets the pending job of an account.
func ClearPendingJob(ctx context.Context, sc stateStore, accountID string) error {
	return sc.SetKey(ctx, PendingJobKey(accountID), "")
}
