package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/document-export-api/internal/database"
	"github.com/document-export-api/internal/models"
	"github.com/lib/pq"
)

const jobColumns = `id, status, formats, idempotency_key, request, results, total_rows,
	error, duration_ms, created_at, started_at, completed_at`

// jobRepo is the concrete implementation of JobRepository
type jobRepo struct {
	db *database.DB
}

// NewJobRepo creates a new job repository
func NewJobRepo(db *database.DB) JobRepository {
	return &jobRepo{db: db}
}

// Create inserts a new job
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO export_jobs (id, status, formats, idempotency_key, request, total_rows, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, pq.Array(job.Formats), nullString(job.IdempotencyKey),
		[]byte(job.Request), job.TotalRows, job.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateIdempotencyKey
	}
	return err
}

// Update stores status, results and timings
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return fmt.Errorf("failed to encode job results: %w", err)
	}

	query := `
		UPDATE export_jobs SET
			status = $1, results = $2, total_rows = $3, error = $4, duration_ms = $5,
			started_at = $6, completed_at = $7
		WHERE id = $8
	`
	_, err = r.db.ExecContext(ctx, query,
		job.Status, results, job.TotalRows, nullString(job.Error), job.DurationMs,
		job.StartedAt, job.CompletedAt, job.ID,
	)
	return err
}

// GetByID retrieves a job by ID
func (r *jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetByIdempotencyKey retrieves a job by idempotency key
func (r *jobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE idempotency_key = $1`, key)
	return scanJob(row)
}

// GetPendingJobs retrieves the oldest pending jobs
func (r *jobRepo) GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM export_jobs WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkJobAsProcessing atomically moves a pending job to processing.
// It reports false when another worker claimed the job first.
func (r *jobRepo) MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE export_jobs SET status = 'processing', started_at = $1
		WHERE id = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), jobID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*models.Job, error) {
	var job models.Job
	var idempotencyKey, jobErr sql.NullString
	var request, results []byte
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&job.ID, &job.Status, pq.Array(&job.Formats), &idempotencyKey, &request, &results,
		&job.TotalRows, &jobErr, &job.DurationMs, &job.CreatedAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.IdempotencyKey = idempotencyKey.String
	job.Error = jobErr.String
	job.Request = request
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of job %s: %w", job.ID, err)
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
