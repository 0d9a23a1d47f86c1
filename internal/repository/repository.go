package repository

import (
	"context"
	"errors"

	"github.com/document-export-api/internal/database"
	"github.com/document-export-api/internal/models"
)

// ErrDuplicateIdempotencyKey is returned when a job with the same key exists
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// JobRepository defines the interface for export job persistence
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error)
	GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error)
	MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Job JobRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Job: NewJobRepo(db),
	}
}
