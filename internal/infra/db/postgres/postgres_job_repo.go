package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, document_id, status, file_count, submitted_at, completed_at, last_refresh_at, raw_response`

func (r *jobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM batch_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return job, nil
}

func (r *jobRepo) Upsert(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	const q = `
INSERT INTO batch_jobs (id, document_id, status, file_count, submitted_at, completed_at, last_refresh_at, raw_response)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  file_count = EXCLUDED.file_count,
  completed_at = EXCLUDED.completed_at,
  last_refresh_at = EXCLUDED.last_refresh_at,
  raw_response = EXCLUDED.raw_response;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.DocumentID, string(model.NormalizeStatus(string(job.Status))), job.FileCount,
		job.SubmittedAt, job.CompletedAt, job.LastRefreshAt, job.RawResponse)
	return err
}

func (r *jobRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM batch_jobs ORDER BY submitted_at, id;`
	rows, err := pickRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) ListByDocument(ctx context.Context, tx repository.Tx, documentID string) ([]string, error) {
	const q = `SELECT id FROM batch_jobs WHERE document_id = $1 ORDER BY submitted_at, id;`
	rows, err := pickRows(ctx, r.pool, tx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job       model.Job
		statusStr string
	)
	err := row.Scan(
		&job.ID, &job.DocumentID, &statusStr, &job.FileCount,
		&job.SubmittedAt, &job.CompletedAt, &job.LastRefreshAt, &job.RawResponse,
	)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(statusStr)
	return &job, nil
}
