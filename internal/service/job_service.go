package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/document-export-api/internal/config"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/repository"
	"github.com/rs/zerolog"
)

// jobService is the concrete implementation of JobService
type jobService struct {
	jobRepo       repository.JobRepository
	exportService ExportService
	metrics       *metrics.Metrics
	log           zerolog.Logger
	pollInterval  time.Duration
	jobTimeout    time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool
	mu            sync.Mutex
	// Semaphore: buffered channel to limit concurrent job processing
	sem chan struct{}
}

// newJobService creates a new JobService. Rendering is CPU-bound, so the
// default pool is sized to the core count.
func newJobService(jobRepo repository.JobRepository, cfg config.ExportConfig, m *metrics.Metrics, log zerolog.Logger) *jobService {
	maxWorkers := cfg.Workers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
		if maxWorkers < 2 {
			maxWorkers = 2
		}
		if maxWorkers > 16 {
			maxWorkers = 16
		}
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	log.Info().Int("max_workers", maxWorkers).Msg("Initializing export job worker pool")

	return &jobService{
		jobRepo:      jobRepo,
		metrics:      m,
		log:          log.With().Str("service", "job").Logger(),
		pollInterval: pollInterval,
		jobTimeout:   cfg.JobTimeout,
		sem:          make(chan struct{}, maxWorkers),
	}
}

// SetExportService sets the export service used to run jobs
func (s *jobService) SetExportService(exportService ExportService) {
	s.exportService = exportService
}

// StartProcessor polls for pending jobs until ctx ends or StopProcessor
// is called. It blocks, so run it in its own goroutine.
func (s *jobService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info().Dur("poll_interval", s.pollInterval).Msg("Job processor started")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Job processor stopping")
			return
		case <-ticker.C:
			s.processPendingJobs()
		}
	}
}

// StopProcessor cancels polling and waits for running jobs
func (s *jobService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Job processor stopped")
}

// processPendingJobs claims pending jobs and runs them on the pool
func (s *jobService) processPendingJobs() {
	jobs, err := s.jobRepo.GetPendingJobs(s.ctx, cap(s.sem))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get pending jobs")
		return
	}

	for _, job := range jobs {
		// Acquire a slot; blocks while all workers are busy
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		marked, err := s.jobRepo.MarkJobAsProcessing(s.ctx, job.ID)
		if err != nil || !marked {
			<-s.sem
			continue // another worker already picked it up
		}

		s.wg.Add(1)
		s.metrics.JobStarted()
		go func(j *models.Job) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Interface("panic", r).
						Str("job_id", j.ID).
						Msg("Job processing panicked - recovered")
					j.Status = models.JobStatusFailed
					j.Error = fmt.Sprintf("internal error: %v", r)
					if err := s.jobRepo.Update(context.Background(), j); err != nil {
						s.log.Error().Err(err).Str("job_id", j.ID).Msg("Failed to store failed job")
					}
				}
				s.metrics.JobFinished(string(j.Status))
			}()
			s.processJob(j)
		}(job)
	}
}

// processJob runs a single job under the job timeout
func (s *jobService) processJob(job *models.Job) {
	select {
	case <-s.ctx.Done():
		s.log.Warn().Str("job_id", job.ID).Msg("Job processing cancelled due to shutdown")
		s.releaseJob(job)
		return
	default:
	}

	if s.exportService == nil {
		s.log.Error().Str("job_id", job.ID).Msg("No export service configured")
		job.Status = models.JobStatusFailed
		job.Error = "no export service configured"
		if err := s.jobRepo.Update(context.Background(), job); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to store failed job")
		}
		return
	}

	ctx := s.ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.jobTimeout)
		defer cancel()
	}

	s.log.Info().Str("job_id", job.ID).Msg("Processing job")
	if err := s.exportService.ProcessExport(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Export processing failed")
	}
}

// releaseJob returns a claimed but unstarted job to the queue
func (s *jobService) releaseJob(job *models.Job) {
	job.Status = models.JobStatusPending
	job.StartedAt = nil
	if err := s.jobRepo.Update(context.Background(), job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to release job")
	}
}

// GetJob retrieves a job by ID
func (s *jobService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}
