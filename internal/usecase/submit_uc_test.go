//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
)

func newSubmitUC(jobs *memJobRepo, docs *memDocumentRepo, api *fakeBatchAPI) *submitUC {
	return NewSubmitUseCase(jobs, docs, api, fastPolicy(), 100, "mistral-ocr-latest", testLogger())
}

func fileSet(n int) []model.FileRef {
	files := make([]model.FileRef, n)
	for i := range files {
		files[i] = model.FileRef{
			Path: fmt.Sprintf("/scans/page_%04d.png", i),
			Name: fmt.Sprintf("page_%04d.png", i),
		}
	}
	return files
}

func TestSubmitUC_PartitionsIntoBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := newMemJobRepo()
	docs := newMemDocumentRepo()

	api := &fakeBatchAPI{}
	var sizes []int
	var submissions, indexes []string
	n := 0
	api.CreateJobFunc = func(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
		n++
		sizes = append(sizes, len(files))
		submissions = append(submissions, metadata["submission"])
		indexes = append(indexes, metadata["batch_index"])
		if ocrModel != "mistral-ocr-latest" {
			t.Errorf("unexpected model %q", ocrModel)
		}
		return adapter.RemoteJob{ID: fmt.Sprintf("batch-%d", n), Status: "pending"}, nil
	}

	uc := newSubmitUC(jobs, docs, api)
	res, err := uc.Submit(ctx, fileSet(250), SubmitOptions{DocumentName: "Ledger 2026"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(res.Jobs) != 3 {
		t.Fatalf("expected 3 jobs for 250 files, got %d", len(res.Jobs))
	}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
	for i, s := range submissions {
		if s == "" || s != res.Reference {
			t.Fatalf("batch %d missing shared submission reference: %q vs %q", i, s, res.Reference)
		}
	}
	for i, idx := range indexes {
		if idx != strconv.Itoa(i) {
			t.Fatalf("batch %d carried index %q", i, idx)
		}
	}

	if res.Document == nil || res.Document.Name != "Ledger 2026" {
		t.Fatalf("expected named document, got %+v", res.Document)
	}
	// All three jobs belong to the same (single) document.
	ids, err := jobs.ListByDocument(ctx, nil, res.Document.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 jobs under document, got %d", len(ids))
	}
	for _, j := range res.Jobs {
		if !j.Status.Is(model.JobStatusPending) {
			t.Fatalf("expected pending job, got %q", j.Status)
		}
	}
}

func TestSubmitUC_ReusesRecentDocumentByName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := newMemJobRepo()
	docs := newMemDocumentRepo()
	old := &model.Document{ID: "doc-old", Name: "Ledger", CreatedAt: time.Now().Add(-time.Hour)}
	recent := &model.Document{ID: "doc-recent", Name: "Ledger", CreatedAt: time.Now()}
	for _, d := range []*model.Document{old, recent} {
		if err := docs.Create(ctx, nil, d); err != nil {
			t.Fatalf("create doc: %v", err)
		}
	}

	api := &fakeBatchAPI{}
	api.CreateJobFunc = func(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
		return adapter.RemoteJob{ID: "batch-1", Status: "pending"}, nil
	}

	uc := newSubmitUC(jobs, docs, api)
	res, err := uc.Submit(ctx, fileSet(3), SubmitOptions{DocumentName: "Ledger"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Document.ID != "doc-recent" {
		t.Fatalf("expected most recent document, got %q", res.Document.ID)
	}
}

func TestSubmitUC_ExplicitDocumentIDMustExist(t *testing.T) {
	t.Parallel()

	uc := newSubmitUC(newMemJobRepo(), newMemDocumentRepo(), &fakeBatchAPI{})
	_, err := uc.Submit(context.Background(), fileSet(1), SubmitOptions{DocumentID: "ghost"})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSubmitUC_NoFiles(t *testing.T) {
	t.Parallel()

	uc := newSubmitUC(newMemJobRepo(), newMemDocumentRepo(), &fakeBatchAPI{})
	if _, err := uc.Submit(context.Background(), nil, SubmitOptions{}); !errors.Is(err, domain.ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
}

func TestSubmitUC_MidSequenceFailureKeepsEarlierJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	jobs := newMemJobRepo()
	docs := newMemDocumentRepo()

	api := &fakeBatchAPI{}
	calls := 0
	api.CreateJobFunc = func(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
		calls++
		if calls == 1 {
			return adapter.RemoteJob{ID: "batch-one", Status: "pending"}, nil
		}
		// Non-retryable client error so the failure is immediate.
		return adapter.RemoteJob{}, &domain.RemoteError{Op: "create_job", StatusCode: 422, Err: errors.New("unprocessable")}
	}

	uc := newSubmitUC(jobs, docs, api)
	res, err := uc.Submit(ctx, fileSet(150), SubmitOptions{})
	if err == nil {
		t.Fatalf("expected error on second batch")
	}
	var ex *domain.ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected exhaustion wrapper, got %v", err)
	}

	if len(res.Jobs) != 1 || res.Jobs[0].ID != "batch-one" {
		t.Fatalf("expected first job retained, got %+v", res.Jobs)
	}
	if _, e := jobs.Get(ctx, nil, "batch-one"); e != nil {
		t.Fatalf("first job must stay persisted: %v", e)
	}
	if calls != 2 {
		t.Fatalf("422 must not be retried, got %d create calls", calls)
	}
}

func TestSubmitUC_AutoDocumentWhenNothingGiven(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	docs := newMemDocumentRepo()
	api := &fakeBatchAPI{}
	api.CreateJobFunc = func(ctx context.Context, files []model.FileRef, ocrModel string, metadata map[string]string) (adapter.RemoteJob, error) {
		return adapter.RemoteJob{ID: "batch-auto", Status: "pending"}, nil
	}

	uc := newSubmitUC(newMemJobRepo(), docs, api)
	res, err := uc.Submit(ctx, fileSet(2), SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Document == nil || len(res.Document.Name) != len("Document_")+8 {
		t.Fatalf("expected generated document name, got %+v", res.Document)
	}
	if _, err := docs.Get(ctx, nil, res.Document.ID); err != nil {
		t.Fatalf("generated document must be persisted: %v", err)
	}
}
