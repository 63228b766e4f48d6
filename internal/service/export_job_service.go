package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/jobs"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// CreateExportRequest describes a new background export.
type CreateExportRequest struct {
	DepartmentCode string              `json:"department_code"`
	Semester       int                 `json:"semester"`
	Format         models.ExportFormat `json:"format"`
}

// ExportJobStatus is the client-facing view of a job.
type ExportJobStatus struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobService orchestrates the export job lifecycle: persistence, queue
// dispatch, generation and token-guarded download.
type ExportJobService struct {
	repo     exportJobStore
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ExportJobConfig
}

// ExportJobConfig governs queue recovery and cleanup.
type ExportJobConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// NewExportJobService constructs the service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{repo: repo, queue: queue, exporter: exporter, logger: logger, cfg: cfg}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ExportJobService) CreateJob(ctx context.Context, req CreateExportRequest, actorID string) (*ExportJobStatus, error) {
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	job := &models.ExportJob{
		Type:      models.ExportTypeTranscripts,
		Params:    models.ExportJobParams{DepartmentCode: req.DepartmentCode, Semester: req.Semester, Format: req.Format},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &ExportJobStatus{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*ExportJobStatus, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	status := &ExportJobStatus{ID: job.ID, Status: job.Status, Progress: job.Progress, ResultURL: job.ResultURL}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		status.Error = job.ErrorMessage
	}
	return status, nil
}

// Process is the queue handler. It regenerates the export for the referenced
// job and records the outcome on the job row.
func (s *ExportJobService) Process(ctx context.Context, queued jobs.Job) error {
	job, err := s.repo.GetByID(ctx, queued.ID)
	if err != nil {
		return err
	}
	if job.Status == models.ExportStatusFinished {
		return nil
	}

	processing := models.ExportStatusProcessing
	progress := 10
	_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &progress})

	result, err := s.exporter.Generate(ctx, job)
	if err != nil {
		s.markFailed(ctx, job.ID, err.Error())
		return err
	}

	finished := models.ExportStatusFinished
	done := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:     &finished,
		Progress:   &done,
		ResultURL:  &result.URL,
		FinishedAt: &now,
	}); err != nil {
		return err
	}
	s.logger.Info("export job finished",
		zap.String("job_id", job.ID),
		zap.String("format", string(result.Format)),
		zap.String("path", result.RelativePath),
	)
	return nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue pending export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range finished {
		if job.ResultURL == nil {
			continue
		}
		token := (*job.ResultURL)[strings.LastIndex(*job.ResultURL, "/")+1:]
		_, relPath, _, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(relPath); err != nil {
			s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}

func (s *ExportJobService) markFailed(ctx context.Context, jobID, message string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	_ = s.repo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &message,
		FinishedAt:   &now,
	})
}
