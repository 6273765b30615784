package mistral

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
)

// Sequence hands out deterministic ascending ids for offline runs. It is
// injected rather than process-global so each test harness owns its own
// counter.
type Sequence struct {
	mu sync.Mutex
	n  int
}

func NewSequence() *Sequence { return &Sequence{} }

func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

var _ adapter.BatchAPIAdapter = (*NoopClient)(nil)

// NoopClient implements the batch API port without network access.
// CreateJob mints sequenced ids in the fixture format (job_001, ...);
// reads answer with a terminal status so offline flows finish immediately.
type NoopClient struct {
	seq *Sequence
	log *zerolog.Logger
}

func NewNoopClient(seq *Sequence, log *zerolog.Logger) *NoopClient {
	if seq == nil {
		seq = NewSequence()
	}
	return &NoopClient{seq: seq, log: log}
}

func (c *NoopClient) CreateJob(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
	id := fmt.Sprintf("job_%03d", c.seq.Next())
	now := time.Now().UTC()
	c.log.Info().Str("job_id", id).Int("files", len(files)).Str("model", ocrModel).Msg("mock batch job created")
	raw, _ := json.Marshal(map[string]interface{}{"id": id, "status": "pending", "mock": true})
	return adapter.RemoteJob{
		ID:            id,
		Status:        string(model.JobStatusPending),
		CreatedAt:     &now,
		Metadata:      metadata,
		TotalRequests: len(files),
		Raw:           raw,
	}, nil
}

func (c *NoopClient) GetJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	now := time.Now().UTC()
	return adapter.RemoteJob{ID: jobID, Status: string(model.JobStatusCompleted), CompletedAt: &now}, nil
}

func (c *NoopClient) ListJobs(ctx context.Context) ([]adapter.RemoteJob, error) {
	return nil, nil
}

func (c *NoopClient) CancelJob(ctx context.Context, jobID string) (adapter.RemoteJob, error) {
	c.log.Info().Str("job_id", jobID).Msg("mock batch job cancelled")
	return adapter.RemoteJob{ID: jobID, Status: string(model.JobStatusCancelled)}, nil
}
