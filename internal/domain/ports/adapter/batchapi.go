package adapter

import (
	"context"
	"time"

	"ocr-batch-sync/internal/domain/model"
)

// RemoteJob is the remote service's view of one batch job. Raw carries the
// untouched response payload for diagnostics; Status is the service's
// casing, normalization happens in the synchronizer.
type RemoteJob struct {
	ID            string
	Status        string
	CreatedAt     *time.Time
	CompletedAt   *time.Time
	OutputFileRef string
	Errors        []string
	Metadata      map[string]string
	TotalRequests int
	Raw           []byte
}

// BatchAPIAdapter is the port to the vendor's asynchronous OCR batch
// service. Any call may fail with a *domain.RemoteError; CreateJob carries
// no idempotency guarantee across retries.
type BatchAPIAdapter interface {
	// CreateJob uploads one batch of files and opens a remote job for it.
	CreateJob(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (RemoteJob, error)
	// GetJob fetches the current remote state of a single job.
	GetJob(ctx context.Context, jobID string) (RemoteJob, error)
	// ListJobs fetches the complete remote listing in one call.
	ListJobs(ctx context.Context) ([]RemoteJob, error)
	// CancelJob asks the service to cancel; the returned job carries the
	// status the service settled on.
	CancelJob(ctx context.Context, jobID string) (RemoteJob, error)
}
