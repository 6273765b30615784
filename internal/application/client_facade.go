package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/infra/worker"
	"ocr-batch-sync/internal/usecase"
)

// ClientFacade composes usecases into high-level operator commands.
// Keep the facade methods returning strings so callers (CLI, admin
// endpoints) just forward them to the user.
type ClientFacade struct {
	SubmitUC usecase.SubmitUseCase
	SyncUC   usecase.JobSyncUseCase
}

func NewClientFacade(submitUC usecase.SubmitUseCase, syncUC usecase.JobSyncUseCase) *ClientFacade {
	return &ClientFacade{SubmitUC: submitUC, SyncUC: syncUC}
}

// HandleSubmit submits files as one or more batch jobs under a document.
func (f *ClientFacade) HandleSubmit(ctx context.Context, files []model.FileRef, opts usecase.SubmitOptions) (string, error) {
	if f.SubmitUC == nil {
		return "", fmt.Errorf("submit usecase not available")
	}
	res, err := f.SubmitUC.Submit(ctx, files, opts)
	if err != nil {
		if res != nil && len(res.Jobs) > 0 {
			return "", fmt.Errorf("submitted %d of %d files before failing: %w", countFiles(res.Jobs), len(files), err)
		}
		return "", fmt.Errorf("submit: %w", err)
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Submitted %d files as %d job(s) for document %q.\n", len(files), len(res.Jobs), res.Document.Name))
	for _, j := range res.Jobs {
		sb.WriteString(fmt.Sprintf("- %s (%d files, %s)\n", j.ID, j.FileCount, j.Status))
	}
	sb.WriteString("Reference: " + res.Reference)
	return sb.String(), nil
}

// HandleStatus reports a single job's live status.
func (f *ClientFacade) HandleStatus(ctx context.Context, jobID string) (string, error) {
	if f.SyncUC == nil {
		return "", fmt.Errorf("sync usecase not available")
	}
	status, err := f.SyncUC.CheckStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJobID) {
			return "", fmt.Errorf("invalid job id %q", jobID)
		}
		return "", fmt.Errorf("check status: %w", err)
	}
	return fmt.Sprintf("Job %s: %s", jobID, status), nil
}

// HandleCancel asks the service to cancel a job.
func (f *ClientFacade) HandleCancel(ctx context.Context, jobID string) string {
	if f.SyncUC == nil {
		return "Cancellation is not available."
	}
	if f.SyncUC.Cancel(ctx, jobID) {
		return fmt.Sprintf("Job %s cancelled.", jobID)
	}
	return fmt.Sprintf("Job %s could not be cancelled.", jobID)
}

// HandleList renders the reconciled job listing.
func (f *ClientFacade) HandleList(ctx context.Context) (string, error) {
	if f.SyncUC == nil {
		return "", fmt.Errorf("sync usecase not available")
	}
	jobs, err := f.SyncUC.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		return "No jobs found.", nil
	}
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%d job(s):\n", len(jobs)))
	for _, j := range jobs {
		sb.WriteString(fmt.Sprintf("- %s  %-10s  %d files  submitted %s\n",
			j.ID, j.Status, j.FileCount, j.SubmittedAt.Format(time.RFC3339)))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleDetails renders the full record of one job.
func (f *ClientFacade) HandleDetails(ctx context.Context, jobID string) (string, error) {
	if f.SyncUC == nil {
		return "", fmt.Errorf("sync usecase not available")
	}
	job, err := f.SyncUC.GetDetails(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return fmt.Sprintf("Job %s is not known.", jobID), nil
		}
		return "", fmt.Errorf("job details: %w", err)
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Job %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("  Status:    %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("  Document:  %s\n", job.DocumentID))
	sb.WriteString(fmt.Sprintf("  Files:     %d\n", job.FileCount))
	sb.WriteString(fmt.Sprintf("  Submitted: %s\n", job.SubmittedAt.Format(time.RFC3339)))
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339)))
	}
	if job.LastRefreshAt != nil {
		sb.WriteString(fmt.Sprintf("  Refreshed: %s\n", job.LastRefreshAt.Format(time.RFC3339)))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleDocumentQuery reports the status of every job under a document,
// addressed by id or display name.
func (f *ClientFacade) HandleDocumentQuery(ctx context.Context, nameOrID string) (string, error) {
	if f.SyncUC == nil {
		return "", fmt.Errorf("sync usecase not available")
	}
	statuses, err := f.SyncUC.QueryByDocument(ctx, nameOrID)
	if err != nil {
		return "", fmt.Errorf("query document: %w", err)
	}
	if len(statuses) == 0 {
		return fmt.Sprintf("No jobs found for %q.", nameOrID), nil
	}
	counts := map[model.JobStatus]int{}
	for _, s := range statuses {
		counts[s]++
	}
	parts := make([]string, 0, len(counts))
	for s, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", s, n))
	}
	return fmt.Sprintf("%d job(s) for %q: %s", len(statuses), nameOrID, strings.Join(parts, ", ")), nil
}

// HandleRefreshAll re-queries every refreshable job and reports progress.
func (f *ClientFacade) HandleRefreshAll(ctx context.Context, progress worker.ProgressFunc) (string, error) {
	if f.SyncUC == nil {
		return "", fmt.Errorf("sync usecase not available")
	}
	jobs, err := f.SyncUC.RefreshAll(ctx, progress)
	if err != nil {
		return "", fmt.Errorf("refresh jobs: %w", err)
	}
	terminal := 0
	for _, j := range jobs {
		if j.Status.Terminal() {
			terminal++
		}
	}
	return fmt.Sprintf("Refreshed. %d job(s) tracked, %d terminal.", len(jobs), terminal), nil
}

func countFiles(jobs []*model.Job) int {
	n := 0
	for _, j := range jobs {
		n += j.FileCount
	}
	return n
}
