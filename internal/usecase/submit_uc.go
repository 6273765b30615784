package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
	"ocr-batch-sync/internal/domain/ports/repository"
	"ocr-batch-sync/internal/infra/logging"
	"ocr-batch-sync/internal/infra/metrics"
	"ocr-batch-sync/internal/infra/retry"
)

// SubmitOptions selects which document the submitted jobs belong to.
// DocumentID wins over DocumentName; with neither set a fresh document
// is created.
type SubmitOptions struct {
	DocumentID   string
	DocumentName string
	Model        string
}

// SubmitResult reports what one submission produced. Reference is a ULID
// shared by every job of the submission, recorded in job metadata so a
// multi-batch submission can be traced end to end.
type SubmitResult struct {
	Document  *model.Document
	Jobs      []*model.Job
	Reference string
}

// SubmitUseCase partitions a file set into batch jobs and registers them
// with the remote service.
type SubmitUseCase interface {
	// Submit splits files into batches of at most the configured size and
	// creates one remote job per batch, sequentially. On a mid-sequence
	// failure the jobs created so far stay persisted and the error is
	// returned alongside them.
	Submit(ctx context.Context, files []model.FileRef, opts SubmitOptions) (*SubmitResult, error)
}

type submitUC struct {
	jobs       repository.JobRepository
	docs       repository.DocumentRepository
	api        adapter.BatchAPIAdapter
	policy     retry.Policy
	batchLimit int
	ocrModel   string
	log        *zerolog.Logger
}

var _ SubmitUseCase = (*submitUC)(nil)

func NewSubmitUseCase(
	jobs repository.JobRepository,
	docs repository.DocumentRepository,
	api adapter.BatchAPIAdapter,
	policy retry.Policy,
	batchLimit int,
	ocrModel string,
	log *zerolog.Logger,
) *submitUC {
	return &submitUC{
		jobs:       jobs,
		docs:       docs,
		api:        api,
		policy:     policy,
		batchLimit: batchLimit,
		ocrModel:   ocrModel,
		log:        log,
	}
}

func (u *submitUC) Submit(ctx context.Context, files []model.FileRef, opts SubmitOptions) (*SubmitResult, error) {
	defer logging.TraceDuration(u.log, "SubmitUC.Submit")()

	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}

	doc, err := u.resolveDocument(ctx, opts)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithDocumentID(ctx, doc.ID)
	log := logging.With(ctx, u.log)

	ocrModel := opts.Model
	if ocrModel == "" {
		ocrModel = u.ocrModel
	}

	ref := ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
	batches := model.SplitBatches(files, u.batchLimit)
	log.Info().
		Str("submission", ref).
		Int("files", len(files)).
		Int("batches", len(batches)).
		Msg("submitting batch jobs")

	result := &SubmitResult{Document: doc, Reference: ref}
	for i, batch := range batches {
		metadata := map[string]string{
			"job_type":    "ocr_batch",
			"document_id": doc.ID,
			"submission":  ref,
			"batch_index": strconv.Itoa(i),
		}
		remote, err := retry.Do(ctx, u.policy, log, "create_job", func(ctx context.Context) (adapter.RemoteJob, error) {
			return u.api.CreateJob(ctx, batch, ocrModel, metadata)
		})
		if err != nil {
			// Earlier batches are already live remote jobs; keep their
			// records and let the caller decide whether to retry the rest.
			log.Error().
				Int("batch_index", i).
				Err(err).
				Msg("batch submission failed")
			return result, fmt.Errorf("submit batch %d of %d: %w", i+1, len(batches), err)
		}

		job := &model.Job{
			ID:          remote.ID,
			DocumentID:  doc.ID,
			Status:      model.NormalizeStatus(remote.Status),
			FileCount:   len(batch),
			SubmittedAt: time.Now(),
			RawResponse: remote.Raw,
		}
		if job.Status == "" {
			job.Status = model.JobStatusPending
		}
		if err := u.jobs.Upsert(ctx, nil, job); err != nil {
			return result, fmt.Errorf("persist job %s: %w", job.ID, err)
		}
		result.Jobs = append(result.Jobs, job)
		metrics.IncJobSubmitted(string(job.Status))
		log.Info().
			Str("job_id", job.ID).
			Int("files", len(batch)).
			Msg("batch job created")
	}
	return result, nil
}

func (u *submitUC) resolveDocument(ctx context.Context, opts SubmitOptions) (*model.Document, error) {
	if opts.DocumentID != "" {
		return u.docs.Get(ctx, nil, opts.DocumentID)
	}

	if opts.DocumentName != "" {
		doc, err := u.docs.FindRecentByName(ctx, nil, opts.DocumentName)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, err
		}
		doc = &model.Document{ID: uuid.NewString(), Name: opts.DocumentName, CreatedAt: time.Now()}
		if err := u.docs.Create(ctx, nil, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	id := uuid.NewString()
	doc := &model.Document{
		ID:        id,
		Name:      "Document_" + id[:8],
		CreatedAt: time.Now(),
	}
	if err := u.docs.Create(ctx, nil, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
