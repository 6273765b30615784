package repository

import (
	"context"

	"ocr-batch-sync/internal/domain/model"
)

// JobRepository is the local persisted view of remote batch jobs.
// Writes are single-row upserts keyed by job id: concurrent writers to
// different ids never conflict, and the synchronizer never issues two
// concurrent writes to the same id.
type JobRepository interface {
	// Get returns the job or domain.ErrJobNotFound.
	Get(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// Upsert inserts or fully replaces the row for job.ID.
	Upsert(ctx context.Context, tx Tx, job *model.Job) error
	// ListAll returns every stored job ordered by submission time.
	ListAll(ctx context.Context, tx Tx) ([]*model.Job, error)
	// ListByDocument returns the job ids owned by a document.
	ListByDocument(ctx context.Context, tx Tx, documentID string) ([]string, error)
}

// DocumentRepository stores the documents that own jobs. Documents are
// immutable after creation.
type DocumentRepository interface {
	// Create stores a new document; inserting an existing id is a no-op.
	Create(ctx context.Context, tx Tx, doc *model.Document) error
	// Get returns the document or domain.ErrDocumentNotFound.
	Get(ctx context.Context, tx Tx, id string) (*model.Document, error)
	// FindRecentByName resolves a name to the document with the latest
	// creation timestamp, or domain.ErrDocumentNotFound.
	FindRecentByName(ctx context.Context, tx Tx, name string) (*model.Document, error)
}
