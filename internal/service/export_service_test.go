package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/pkg/export"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

type rosterStudentsStub struct {
	students []models.StudentDetail
}

func (s rosterStudentsStub) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	if filter.Page > 1 {
		return nil, len(s.students), nil
	}
	return s.students, len(s.students), nil
}

type rosterGradesStub struct {
	grades map[string][]models.Grade
}

func (s rosterGradesStub) ListByStudent(ctx context.Context, studentID string) ([]models.Grade, error) {
	return s.grades[studentID], nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)

	students := rosterStudentsStub{students: []models.StudentDetail{
		{Student: models.Student{ID: "stu-1", NIM: "2311001", FullName: "Siti Rahma", DepartmentCode: "IF", Semester: 3}},
		{Student: models.Student{ID: "stu-2", NIM: "2311002", FullName: "Budi Santoso", DepartmentCode: "IF", Semester: 3}},
	}}
	grades := rosterGradesStub{grades: map[string][]models.Grade{
		"stu-1": {{
			StudentID:        "stu-1",
			CourseCode:       "CS101",
			AssignmentScores: []float64{10, 10},
			AssignmentMaxima: []float64{10, 10},
			QuizScores:       []float64{15},
			QuizMaxima:       []float64{15},
			MidScore:         25,
			MidMax:           25,
			FinalScore:       50,
			FinalMax:         50,
		}},
	}}

	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(students, grades, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ExportJob{
		ID:        "job-1",
		Type:      models.ExportTypeTranscripts,
		Params:    models.ExportJobParams{DepartmentCode: "IF", Format: models.ExportFormatCSV},
		CreatedBy: "admin",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.URL, "/api/v1/exports/download/")
	require.NotEmpty(t, result.Token)

	raw, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(raw)
	require.Contains(t, content, "NIM")
	require.Contains(t, content, "2311001")
	require.Contains(t, content, "4.00")
	require.Contains(t, content, "Students: 2")
	require.True(t, strings.HasSuffix(result.RelativePath, ".csv"))
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ExportJob{
		ID:     "job-2",
		Type:   models.ExportTypeTranscripts,
		Params: models.ExportJobParams{Format: models.ExportFormatPDF},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatPDF, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ExportJob{
		ID:     "job-3",
		Type:   models.ExportTypeTranscripts,
		Params: models.ExportJobParams{Format: models.ExportFormat("xlsx")},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}

func TestExportServiceRoundTripToken(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ExportJob{
		ID:     "job-4",
		Type:   models.ExportTypeTranscripts,
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-4", jobID)
	require.Equal(t, result.RelativePath, relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}
