package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/scoring"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/export"
)

type transcriptGradeReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Grade, error)
}

type transcriptStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type transcriptCourseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// TranscriptService assembles a student's graded courses into a transcript
// and renders it as a PDF. All grade values are derived at render time.
type TranscriptService struct {
	grades   transcriptGradeReader
	students transcriptStudentReader
	courses  transcriptCourseReader
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(grades transcriptGradeReader, students transcriptStudentReader, courses transcriptCourseReader, pdf pdfRenderer, logger *zap.Logger) *TranscriptService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{grades: grades, students: students, courses: courses, pdf: pdf, logger: logger}
}

// Build assembles the transcript for a student.
func (s *TranscriptService) Build(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	rows := make([]models.TranscriptRow, 0, len(grades))
	for _, grade := range grades {
		row := models.TranscriptRow{CourseCode: grade.CourseCode}
		if course, err := s.courses.FindByCode(ctx, grade.CourseCode); err == nil {
			row.CourseTitle = course.Title
			row.CreditHours = course.CreditHours
		}
		total := scoring.Total(grade)
		row.Total = scoring.Round2(total)
		row.Letter = scoring.Letter(total)
		row.GradePoint = scoring.GradePoint(total)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CourseCode < rows[j].CourseCode })

	return &models.Transcript{
		Student: *student,
		Rows:    rows,
		CGPA:    scoring.CGPA(grades),
	}, nil
}

// RenderPDF builds the transcript and renders it into PDF bytes.
func (s *TranscriptService) RenderPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Build(ctx, studentID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Title", "Credits", "Total", "Letter", "Grade Point"},
		Summary: []string{fmt.Sprintf("CGPA: %.2f", transcript.CGPA)},
	}
	for _, row := range transcript.Rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":      row.CourseCode,
			"Title":       row.CourseTitle,
			"Credits":     fmt.Sprintf("%d", row.CreditHours),
			"Total":       fmt.Sprintf("%.2f", row.Total),
			"Letter":      row.Letter,
			"Grade Point": fmt.Sprintf("%.2f", row.GradePoint),
		})
	}

	title := fmt.Sprintf("Academic Transcript - %s (%s)", transcript.Student.FullName, transcript.Student.NIM)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	return payload, nil
}
