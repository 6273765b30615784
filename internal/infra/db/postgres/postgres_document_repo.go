package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*documentRepo)(nil)

type documentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *documentRepo {
	return &documentRepo{pool: pool}
}

func (r *documentRepo) Create(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	// Documents are immutable: re-inserting an existing id is a no-op so
	// placeholder synthesis during listing stays idempotent.
	const q = `
INSERT INTO documents (id, name, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q, doc.ID, doc.Name, doc.CreatedAt)
	return err
}

func (r *documentRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	const q = `SELECT id, name, created_at FROM documents WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanDocument(row)
}

func (r *documentRepo) FindRecentByName(ctx context.Context, tx repository.Tx, name string) (*model.Document, error) {
	// Latest creation timestamp wins; id breaks ties deterministically.
	const q = `
SELECT id, name, created_at FROM documents
WHERE name = $1
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, name)
	if err != nil {
		return nil, err
	}
	return scanDocument(row)
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.Name, &doc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &doc, nil
}
