package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/scoring"
	"github.com/noah-isme/uni-registrar-api/pkg/export"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

type exportStudentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type exportGradeReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Grade, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders cohort-level academic datasets and persists the files.
// The only dataset today is the transcript roster: one row per student with the
// graded-course count and CGPA, derived from raw marks at generation time.
type ExportService struct {
	students exportStudentLister
	grades   exportGradeReader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(students exportStudentLister, grades exportGradeReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		students: students,
		grades:   grades,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := sanitizeFilename(job.Params.DepartmentCode)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeTranscripts:
		return s.buildTranscriptRoster(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildTranscriptRoster(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	filter := models.StudentFilter{
		DepartmentCode: params.DepartmentCode,
		Semester:       params.Semester,
		PageSize:       100,
		SortBy:         "nim",
		SortOrder:      "ASC",
	}

	headers := []string{"NIM", "Name", "Department", "Semester", "Graded Courses", "CGPA"}
	var rows []map[string]string
	cgpaSum := 0.0
	graded := 0

	for page := 1; ; page++ {
		filter.Page = page
		students, total, err := s.students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, student := range students {
			grades, err := s.grades.ListByStudent(ctx, student.ID)
			if err != nil {
				return export.Dataset{}, "", err
			}
			cgpa := scoring.CGPA(grades)
			if len(grades) > 0 {
				cgpaSum += cgpa
				graded++
			}
			rows = append(rows, map[string]string{
				"NIM":            student.NIM,
				"Name":           student.FullName,
				"Department":     student.DepartmentCode,
				"Semester":       fmt.Sprintf("%d", student.Semester),
				"Graded Courses": fmt.Sprintf("%d", len(grades)),
				"CGPA":           fmt.Sprintf("%.2f", cgpa),
			})
		}
		if len(rows) >= total || len(students) == 0 {
			break
		}
	}

	summary := []string{fmt.Sprintf("Students: %d", len(rows))}
	if graded > 0 {
		summary = append(summary, fmt.Sprintf("Mean CGPA: %.2f", scoring.Round2(cgpaSum/float64(graded))))
	}

	title := "Transcript Roster"
	if params.DepartmentCode != "" {
		title = fmt.Sprintf("Transcript Roster - %s", params.DepartmentCode)
	}
	return export.Dataset{Headers: headers, Rows: rows, Summary: summary}, title, nil
}
