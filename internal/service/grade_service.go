package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/scoring"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type gradeStore interface {
	FindByPair(ctx context.Context, studentID, courseCode string) (*models.Grade, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, studentID, courseCode string) (bool, error)
}

type enrollmentPairReader interface {
	FindByPair(ctx context.Context, studentID, courseCode string) ([]models.Enrollment, error)
}

type gradeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type gradeCourseReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

// UpsertMarksRequest carries the raw assessment marks for one course.
type UpsertMarksRequest struct {
	StudentID        string    `json:"student_id" validate:"required"`
	CourseCode       string    `json:"course_code" validate:"required"`
	AssignmentScores []float64 `json:"assignment_scores"`
	AssignmentMaxima []float64 `json:"assignment_maxima"`
	QuizScores       []float64 `json:"quiz_scores"`
	QuizMaxima       []float64 `json:"quiz_maxima"`
	MidScore         float64   `json:"mid_score" validate:"gte=0"`
	MidMax           float64   `json:"mid_max" validate:"gte=0"`
	FinalScore       float64   `json:"final_score" validate:"gte=0"`
	FinalMax         float64   `json:"final_max" validate:"gte=0"`
}

// CGPAResult is the cached cumulative GPA view for a student.
type CGPAResult struct {
	StudentID    string  `json:"student_id"`
	GradedCourse int     `json:"graded_courses"`
	CGPA         float64 `json:"cgpa"`
}

// GradeService stores raw marks and serves derived grade views. Totals and
// grade points are recomputed from raw marks on every read; only the CGPA is
// cached, and every mark write invalidates it.
type GradeService struct {
	grades      gradeStore
	enrollments enrollmentPairReader
	students    gradeStudentReader
	courses     gradeCourseReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeStore, enrollments enrollmentPairReader, students gradeStudentReader, courses gradeCourseReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:      grades,
		enrollments: enrollments,
		students:    students,
		courses:     courses,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

func cgpaCacheKey(studentID string) string {
	return fmt.Sprintf("cgpa:%s", studentID)
}

func validateMarkVectors(req UpsertMarksRequest) error {
	if len(req.AssignmentScores) != len(req.AssignmentMaxima) {
		return appErrors.Clone(appErrors.ErrValidation, "assignment scores and maxima must pair up")
	}
	if len(req.QuizScores) != len(req.QuizMaxima) {
		return appErrors.Clone(appErrors.ErrValidation, "quiz scores and maxima must pair up")
	}
	check := func(label string, scores, maxima []float64) error {
		for i := range scores {
			if scores[i] < 0 || maxima[i] < 0 {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s marks must be non-negative", label))
			}
			if maxima[i] > 0 && scores[i] > maxima[i] {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s score exceeds its maximum", label))
			}
		}
		return nil
	}
	if err := check("assignment", req.AssignmentScores, req.AssignmentMaxima); err != nil {
		return err
	}
	if err := check("quiz", req.QuizScores, req.QuizMaxima); err != nil {
		return err
	}
	if req.MidMax > 0 && req.MidScore > req.MidMax {
		return appErrors.Clone(appErrors.ErrValidation, "mid-term score exceeds its maximum")
	}
	if req.FinalMax > 0 && req.FinalScore > req.FinalMax {
		return appErrors.Clone(appErrors.ErrValidation, "final score exceeds its maximum")
	}
	return nil
}

// UpsertMarks creates or updates the raw marks for a (student, course) pair.
// Marks require an APPROVED or COMPLETED enrollment for the pair.
func (s *GradeService) UpsertMarks(ctx context.Context, req UpsertMarksRequest) (*models.GradeBreakdown, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}
	if err := validateMarkVectors(req); err != nil {
		return nil, err
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.courses.FindByCode(ctx, req.CourseCode); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	records, err := s.enrollments.FindByPair(ctx, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	gradable := false
	for _, rec := range records {
		if rec.Status == models.EnrollmentStatusApproved || rec.Status == models.EnrollmentStatusCompleted {
			gradable = true
			break
		}
	}
	if !gradable {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student has no gradable enrollment for course")
	}

	grade := &models.Grade{
		StudentID:        req.StudentID,
		CourseCode:       req.CourseCode,
		AssignmentScores: req.AssignmentScores,
		AssignmentMaxima: req.AssignmentMaxima,
		QuizScores:       req.QuizScores,
		QuizMaxima:       req.QuizMaxima,
		MidScore:         req.MidScore,
		MidMax:           req.MidMax,
		FinalScore:       req.FinalScore,
		FinalMax:         req.FinalMax,
	}
	if err := s.grades.Upsert(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store marks")
	}
	s.invalidateCGPA(ctx, req.StudentID)

	breakdown := scoring.Breakdown(*grade)
	return &breakdown, nil
}

// Detail returns the derived grade view for a (student, course) pair. The
// breakdown is recomputed from raw marks on every call.
func (s *GradeService) Detail(ctx context.Context, studentID, courseCode string) (*models.GradeBreakdown, error) {
	grade, err := s.grades.FindByPair(ctx, studentID, courseCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	breakdown := scoring.Breakdown(*grade)
	return &breakdown, nil
}

// StudentCGPA aggregates the grade point across every graded course for the
// student. A student with no graded courses has a CGPA of 0.00.
func (s *GradeService) StudentCGPA(ctx context.Context, studentID string) (*CGPAResult, error) {
	key := cgpaCacheKey(studentID)
	var cached CGPAResult
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}

	result := &CGPAResult{
		StudentID:    studentID,
		GradedCourse: len(grades),
		CGPA:         scoring.CGPA(grades),
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// DeleteMarks removes the raw marks for a (student, course) pair.
func (s *GradeService) DeleteMarks(ctx context.Context, studentID, courseCode string) error {
	deleted, err := s.grades.Delete(ctx, studentID, courseCode)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete marks")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}
	s.invalidateCGPA(ctx, studentID)
	return nil
}

func (s *GradeService) invalidateCGPA(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, cgpaCacheKey(studentID)); err != nil {
		s.logger.Warn("cgpa cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}
