package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/repository"
)

// MockJobRepository is an in-memory JobRepository. Jobs are copied on the
// way in and out so callers never share state with the store.
type MockJobRepository struct {
	mu              sync.Mutex
	Jobs            map[string]*models.Job
	IdempotencyJobs map[string]string
	CreateError     error
	UpdateError     error
	PendingError    error
	UpdateCalls     int
}

// Verify interface compliance
var _ repository.JobRepository = (*MockJobRepository)(nil)

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		Jobs:            make(map[string]*models.Job),
		IdempotencyJobs: make(map[string]string),
	}
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	if job.IdempotencyKey != "" {
		if _, exists := m.IdempotencyJobs[job.IdempotencyKey]; exists {
			return repository.ErrDuplicateIdempotencyKey
		}
		m.IdempotencyJobs[job.IdempotencyKey] = job.ID
	}
	m.Jobs[job.ID] = copyJob(job)
	return nil
}

func (m *MockJobRepository) Update(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.Jobs[job.ID] = copyJob(job)
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyJob(m.Jobs[id]), nil
}

func (m *MockJobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.IdempotencyJobs[key]
	if !ok {
		return nil, nil
	}
	return copyJob(m.Jobs[id]), nil
}

func (m *MockJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PendingError != nil {
		return nil, m.PendingError
	}
	var pending []*models.Job
	for _, job := range m.Jobs {
		if job.Status == models.JobStatusPending {
			pending = append(pending, copyJob(job))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MockJobRepository) MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, exists := m.Jobs[jobID]
	if !exists || job.Status != models.JobStatusPending {
		return false, nil
	}
	job.Status = models.JobStatusProcessing
	return true, nil
}

// Status returns the stored status of a job
func (m *MockJobRepository) Status(id string) models.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.Jobs[id]; ok {
		return job.Status
	}
	return ""
}

func copyJob(job *models.Job) *models.Job {
	if job == nil {
		return nil
	}
	c := *job
	c.Formats = append([]string(nil), job.Formats...)
	c.Results = append([]*models.ExportResult(nil), job.Results...)
	return &c
}
