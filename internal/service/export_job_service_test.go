package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/jobs"
)

type mockExportJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ExportJob
	seq  int
}

func newMockExportJobStore() *mockExportJobStore {
	return &mockExportJobStore{jobs: map[string]*models.ExportJob{}}
}

func (m *mockExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportJobStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var queued []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *mockExportJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type mockDispatcher struct {
	mu       sync.Mutex
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func newExportJobFixture(t *testing.T) (*ExportJobService, *mockExportJobStore, *mockDispatcher) {
	t.Helper()
	exporter, _ := newExportServiceForTest(t)
	store := newMockExportJobStore()
	dispatcher := &mockDispatcher{}
	svc := NewExportJobService(store, dispatcher, exporter, zap.NewNop(), ExportJobConfig{ResultTTL: time.Hour})
	return svc, store, dispatcher
}

func TestExportJobCreateQueuesJob(t *testing.T) {
	svc, store, dispatcher := newExportJobFixture(t)

	status, err := svc.CreateJob(context.Background(), CreateExportRequest{DepartmentCode: "IF", Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, status.Status)

	stored, err := store.GetByID(context.Background(), status.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", stored.CreatedBy)
	assert.Equal(t, models.ExportTypeTranscripts, stored.Type)

	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, status.ID, dispatcher.enqueued[0].ID)
}

func TestExportJobCreateRejectsUnknownFormat(t *testing.T) {
	svc, _, dispatcher := newExportJobFixture(t)

	_, err := svc.CreateJob(context.Background(), CreateExportRequest{Format: models.ExportFormat("xlsx")}, "admin-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, dispatcher.enqueued)
}

func TestExportJobCreateEnqueueFailureMarksFailed(t *testing.T) {
	svc, store, dispatcher := newExportJobFixture(t)
	dispatcher.err = fmt.Errorf("queue full")

	_, err := svc.CreateJob(context.Background(), CreateExportRequest{Format: models.ExportFormatCSV}, "admin-1")
	require.Error(t, err)

	queued, err := store.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestExportJobProcessFinishesAndDownloads(t *testing.T) {
	svc, store, dispatcher := newExportJobFixture(t)

	status, err := svc.CreateJob(context.Background(), CreateExportRequest{Format: models.ExportFormatCSV}, "admin-1")
	require.NoError(t, err)

	err = svc.Process(context.Background(), dispatcher.enqueued[0])
	require.NoError(t, err)

	stored, err := store.GetByID(context.Background(), status.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)

	token := (*stored.ResultURL)[strings.LastIndex(*stored.ResultURL, "/")+1:]
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ExportFormatCSV, download.Format)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))
}

func TestExportJobProcessFailureRecorded(t *testing.T) {
	svc, store, _ := newExportJobFixture(t)

	job := &models.ExportJob{
		Type:   models.ExportTypeTranscripts,
		Params: models.ExportJobParams{Format: models.ExportFormat("xlsx")},
		Status: models.ExportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	err := svc.Process(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.NotEmpty(t, *stored.ErrorMessage)
}

func TestExportJobResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _, _ := newExportJobFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestExportJobStatusNotFound(t *testing.T) {
	svc, _, _ := newExportJobFixture(t)

	_, err := svc.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportJobRecoverPendingJobs(t *testing.T) {
	svc, store, dispatcher := newExportJobFixture(t)

	job := &models.ExportJob{
		Type:   models.ExportTypeTranscripts,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
		Status: models.ExportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}
