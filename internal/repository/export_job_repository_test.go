package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func exportJobColumns() []string {
	return []string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}
}

func TestExportJobRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO export_jobs")).
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewExportJobRepository(db)
	job := &models.ExportJob{
		Type:      models.ExportTypeTranscripts,
		Params:    models.ExportJobParams{DepartmentCode: "IF", Format: models.ExportFormatCSV},
		CreatedBy: "admin-1",
	}
	err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	created := time.Now().UTC()
	rows := sqlmock.NewRows(exportJobColumns()).
		AddRow("job-1", "transcripts", []byte(`{"departmentCode":"IF","format":"csv"}`), "QUEUED", 0, nil, "admin-1", created, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	repo := NewExportJobRepository(db)
	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportTypeTranscripts, job.Type)
	assert.Equal(t, "IF", job.Params.DepartmentCode)
	assert.Equal(t, models.ExportFormatCSV, job.Params.Format)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdateBuildsSetClause(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs("PROCESSING", 10, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewExportJobRepository(db)
	status := models.ExportStatusProcessing
	progress := 10
	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{Status: &status, Progress: &progress})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdateNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExportJobRepository(db)
	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows(exportJobColumns()).
		AddRow("job-1", "transcripts", []byte(`{"format":"csv"}`), "QUEUED", 0, nil, "admin-1", time.Now().UTC(), nil, nil).
		AddRow("job-2", "transcripts", []byte(`{"format":"pdf"}`), "QUEUED", 0, nil, "admin-1", time.Now().UTC(), nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(50).
		WillReturnRows(rows)

	repo := NewExportJobRepository(db)
	jobs, err := repo.ListQueued(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.ExportFormatPDF, jobs[1].Params.Format)
	require.NoError(t, mock.ExpectationsWereMet())
}
