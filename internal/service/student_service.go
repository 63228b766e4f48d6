package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	SetSemesterAndCreditHours(ctx context.Context, id string, semester, hours int) error
}

type enrollmentCompleter interface {
	CompleteAllApproved(ctx context.Context, studentID string) (int, error)
}

// PromotionResult summarises a semester promotion.
type PromotionResult struct {
	StudentID            string `json:"student_id"`
	Semester             int    `json:"semester"`
	CompletedEnrollments int    `json:"completed_enrollments"`
}

// StudentService serves student reads and the semester promotion flow.
type StudentService struct {
	repo        studentRepository
	enrollments enrollmentCompleter
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, enrollments enrollmentCompleter, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, enrollments: enrollments, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student with department context and credit balance.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// Promote moves the student to the next semester: every APPROVED enrollment is
// completed, then the credit-hour balance is reset to zero alongside the
// semester bump. The reset is deliberate and happens here rather than inside
// CompleteAllApproved, so bulk completion stays usable on its own.
func (s *StudentService) Promote(ctx context.Context, studentID string) (*PromotionResult, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	completed, err := s.enrollments.CompleteAllApproved(ctx, studentID)
	if err != nil {
		return nil, err
	}

	nextSemester := student.Semester + 1
	if err := s.repo.SetSemesterAndCreditHours(ctx, studentID, nextSemester, 0); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote student")
	}
	s.logger.Info("student promoted",
		zap.String("student_id", studentID),
		zap.Int("semester", nextSemester),
		zap.Int("completed_enrollments", completed),
	)
	return &PromotionResult{StudentID: studentID, Semester: nextSemester, CompletedEnrollments: completed}, nil
}
