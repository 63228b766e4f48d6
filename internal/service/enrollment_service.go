package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByPair(ctx context.Context, studentID, courseCode string) ([]models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string, status models.EnrollmentStatus) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, decidedAt *time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateCreditHours(ctx context.Context, id string, hours int) error
}

type courseStore interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

// RequestEnrollmentRequest describes an enrollment request payload.
type RequestEnrollmentRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseCode string `json:"course_code" validate:"required"`
}

// SetEnrollmentStatusRequest carries a lifecycle decision.
type SetEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// EnrollmentResult is the outcome of a lifecycle operation. Warning is set
// when the primary write succeeded but the credit-hour adjustment did not.
type EnrollmentResult struct {
	Enrollment *models.Enrollment `json:"enrollment,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

// EnrollmentService enforces the enrollment state machine and the credit-hour
// accounting that rides on its transitions.
type EnrollmentService struct {
	repo      enrollmentStore
	students  studentStore
	courses   courseStore
	locks     *studentLocks
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, students studentStore, courses courseStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		courses:   courses,
		locks:     newStudentLocks(),
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// allowedTransitions is the enrollment state machine. Writing the current
// status again is always permitted as an idempotent no-op and is handled
// separately.
var allowedTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusPending: {
		models.EnrollmentStatusApproved,
		models.EnrollmentStatusRejected,
	},
	models.EnrollmentStatusApproved: {
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusDropped,
		models.EnrollmentStatusWithdrawn,
	},
}

func transitionAllowed(from, to models.EnrollmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authoritative picks the record the system treats as current among possible
// duplicates, by the explicit status priority with stable order tie-break.
func authoritative(records []models.Enrollment) *models.Enrollment {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]models.Enrollment, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Status.Priority() < sorted[j].Status.Priority()
	})
	return &sorted[0]
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Request files a new PENDING enrollment for a (student, course) pair. Stale
// terminal records for the pair are cleared first; an APPROVED or PENDING
// record blocks the request. Credit hours are only reserved on approval, but
// the capacity check happens here so a request that could never be approved
// fails fast with diagnostics.
func (s *EnrollmentService) Request(ctx context.Context, req RequestEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}

	unlock := s.locks.Lock(req.StudentID)
	defer unlock()

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	course, err := s.courses.FindByCode(ctx, req.CourseCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	records, err := s.repo.FindByPair(ctx, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing enrollments")
	}
	if current := authoritative(records); current != nil {
		switch {
		case current.Status == models.EnrollmentStatusApproved:
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		case current.Status == models.EnrollmentStatusPending:
			return nil, appErrors.Clone(appErrors.ErrRequestPending, "")
		default:
			// Terminal records are stale; clear every physical record for the
			// pair before filing the fresh request.
			ids := make([]string, 0, len(records))
			for _, rec := range records {
				ids = append(ids, rec.ID)
			}
			if err := s.repo.DeleteMany(ctx, ids); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stale enrollments")
			}
		}
	}

	available := student.AvailableCreditHours()
	if course.CreditHours > available {
		msg := fmt.Sprintf("course requires %d credit hours but only %d are available", course.CreditHours, available)
		return nil, appErrors.WithDetails(appErrors.ErrInsufficientCredit, msg, map[string]interface{}{
			"required":  course.CreditHours,
			"available": available,
		})
	}

	enrollment := &models.Enrollment{
		StudentID:   req.StudentID,
		CourseCode:  req.CourseCode,
		Status:      models.EnrollmentStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.logger.Info("enrollment requested",
		zap.String("student_id", req.StudentID),
		zap.String("course_code", req.CourseCode),
	)
	return enrollment, nil
}

// SetStatus moves the authoritative enrollment for a pair into newStatus and
// applies the credit-hour side effect keyed on the previous status: entering
// APPROVED reserves hours, leaving APPROVED releases them (floored at zero),
// anything else leaves the balance alone. Re-applying the current status is a
// no-op, so repeated approvals never double-reserve. Approval re-checks
// capacity against the balance held right now: the request-time check can be
// stale by the time a decision lands, and the reserve must never push the
// balance past the student's maximum.
func (s *EnrollmentService) SetStatus(ctx context.Context, studentID, courseCode string, newStatus models.EnrollmentStatus) (*EnrollmentResult, error) {
	if !newStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enrollment status %q", newStatus))
	}

	unlock := s.locks.Lock(studentID)
	defer unlock()

	records, err := s.repo.FindByPair(ctx, studentID, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	current := authoritative(records)
	if current == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}

	previous := current.Status
	if previous == newStatus {
		return &EnrollmentResult{Enrollment: current}, nil
	}
	if !transitionAllowed(previous, newStatus) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition enrollment from %s to %s", previous, newStatus))
	}

	if newStatus == models.EnrollmentStatusApproved {
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		course, err := s.courses.FindByCode(ctx, courseCode)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		available := student.AvailableCreditHours()
		if course.CreditHours > available {
			msg := fmt.Sprintf("course requires %d credit hours but only %d are available", course.CreditHours, available)
			return nil, appErrors.WithDetails(appErrors.ErrInsufficientCredit, msg, map[string]interface{}{
				"required":  course.CreditHours,
				"available": available,
			})
		}
	}

	// Primary write first; the credit-hour adjustment below is best effort.
	decidedAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, current.ID, newStatus, &decidedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	current.Status = newStatus
	current.DecidedAt = &decidedAt
	if s.metrics != nil {
		s.metrics.RecordEnrollmentTransition(string(previous), string(newStatus))
	}

	result := &EnrollmentResult{Enrollment: current}
	delta := 0
	switch {
	case newStatus == models.EnrollmentStatusApproved:
		delta = 1
	case previous == models.EnrollmentStatusApproved:
		delta = -1
	}
	if delta != 0 {
		if warning := s.adjustCreditHours(ctx, studentID, courseCode, delta); warning != "" {
			result.Warning = warning
		}
	}
	return result, nil
}

// adjustCreditHours applies a reserve (+1) or release (-1) of the course's
// credit hours against the student's running balance. Failures after the
// committed status write are reported as warnings, never as operation errors;
// there is no cross-record transaction to roll back.
func (s *EnrollmentService) adjustCreditHours(ctx context.Context, studentID, courseCode string, direction int) string {
	fail := func(err error) string {
		s.logger.Warn("credit-hour adjustment failed after status write",
			zap.String("student_id", studentID),
			zap.String("course_code", courseCode),
			zap.Int("direction", direction),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordCreditHourInconsistency()
		}
		return "enrollment status updated but credit-hour balance could not be adjusted"
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return fail(err)
	}
	course, err := s.courses.FindByCode(ctx, courseCode)
	if err != nil {
		return fail(err)
	}

	hours := student.CurrentCreditHours + direction*course.CreditHours
	if hours < 0 {
		hours = 0
	}
	if err := s.students.UpdateCreditHours(ctx, studentID, hours); err != nil {
		return fail(err)
	}
	return ""
}

// Delete removes every physical record for the pair. If any of them is
// APPROVED the reserved hours are released exactly once, no matter how many
// duplicate APPROVED records exist.
func (s *EnrollmentService) Delete(ctx context.Context, studentID, courseCode string) (*EnrollmentResult, error) {
	unlock := s.locks.Lock(studentID)
	defer unlock()

	records, err := s.repo.FindByPair(ctx, studentID, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}

	hadApproved := false
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		if rec.Status == models.EnrollmentStatusApproved {
			hadApproved = true
		}
	}
	if err := s.repo.DeleteMany(ctx, ids); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.logger.Info("enrollment deleted",
		zap.String("student_id", studentID),
		zap.String("course_code", courseCode),
		zap.Int("records", len(records)),
	)

	result := &EnrollmentResult{}
	if hadApproved {
		if warning := s.adjustCreditHours(ctx, studentID, courseCode, -1); warning != "" {
			result.Warning = warning
		}
	}
	return result, nil
}

// CompleteAllApproved moves every APPROVED enrollment for the student to
// COMPLETED. The credit-hour balance is intentionally untouched here; the
// semester promotion flow resets it explicitly.
func (s *EnrollmentService) CompleteAllApproved(ctx context.Context, studentID string) (int, error) {
	unlock := s.locks.Lock(studentID)
	defer unlock()

	approved, err := s.repo.ListByStudent(ctx, studentID, models.EnrollmentStatusApproved)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved enrollments")
	}
	decidedAt := time.Now().UTC()
	for _, enrollment := range approved {
		if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusCompleted, &decidedAt); err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
		}
		if s.metrics != nil {
			s.metrics.RecordEnrollmentTransition(string(models.EnrollmentStatusApproved), string(models.EnrollmentStatusCompleted))
		}
	}
	return len(approved), nil
}
