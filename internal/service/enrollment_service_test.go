package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	mu      sync.Mutex
	records []models.Enrollment
	nextID  int

	updateStatusErr error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	details := make([]models.EnrollmentDetail, 0, len(m.records))
	for _, rec := range m.records {
		details = append(details, models.EnrollmentDetail{Enrollment: rec})
	}
	return details, len(details), nil
}

func (m *mockEnrollmentRepo) FindByPair(ctx context.Context, studentID, courseCode string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollment
	for _, rec := range m.records {
		if rec.StudentID == studentID && rec.CourseCode == courseCode {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollment
	for _, rec := range m.records {
		if rec.StudentID != studentID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if enrollment.ID == "" {
		enrollment.ID = string(rune('a' + m.nextID - 1))
	}
	m.records = append(m.records, *enrollment)
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, decidedAt *time.Time) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = status
			m.records[i].DecidedAt = decidedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	return m.DeleteMany(ctx, []string{id})
}

func (m *mockEnrollmentRepo) DeleteMany(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.records[:0]
	for _, rec := range m.records {
		if _, ok := drop[rec.ID]; !ok {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return nil
}

type mockStudentRepo struct {
	mu       sync.Mutex
	students map[string]*models.Student

	updateErr   error
	findErr     error
	updateCalls int
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) UpdateCreditHours(ctx context.Context, id string, hours int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.CurrentCreditHours = hours
	return nil
}

type mockCourseRepo struct {
	courses map[string]*models.Course
}

func (m *mockCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	if c, ok := m.courses[code]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockStudentRepo, *mockCourseRepo) {
	enrollments := &mockEnrollmentRepo{}
	students := &mockStudentRepo{students: map[string]*models.Student{
		"stu1": {ID: "stu1", NIM: "2311001", FullName: "Siti Rahma", Semester: 3, CurrentCreditHours: 0, MaxCreditHours: 18, Active: true},
	}}
	courses := &mockCourseRepo{courses: map[string]*models.Course{
		"CS101": {Code: "CS101", Title: "Intro to Computing", CreditHours: 3},
		"CS405": {Code: "CS405", Title: "Distributed Systems", CreditHours: 4},
	}}
	svc := NewEnrollmentService(enrollments, students, courses, nil, nil, nil)
	return svc, enrollments, students, courses
}

func TestEnrollmentRequestCreatesPending(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()

	enrollment, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Len(t, repo.records, 1)
	assert.Nil(t, enrollment.DecidedAt)
}

func TestEnrollmentRequestUnknownStudent(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "ghost", CourseCode: "CS101"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentRequestBlockedByApproved(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved}}

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyEnrolled))
	assert.Len(t, repo.records, 1)
}

func TestEnrollmentRequestBlockedByPending(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRequestPending))
}

func TestEnrollmentRequestReplacesStaleTerminalRecords(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{
		{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusRejected},
		{ID: "e2", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusDropped},
	}

	enrollment, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	// stale records were cleared, only the fresh request remains
	require.Len(t, repo.records, 1)
	assert.Equal(t, models.EnrollmentStatusPending, repo.records[0].Status)
}

func TestEnrollmentRequestInsufficientCredit(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 15 // 3 of 18 remaining

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS405"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientCredit))

	appErr := appErrors.FromError(err)
	assert.Equal(t, 4, appErr.Details["required"])
	assert.Equal(t, 3, appErr.Details["available"])
	assert.Empty(t, repo.records, "no record may be created for a rejected request")
}

func TestEnrollmentRequestExactCapacity(t *testing.T) {
	svc, _, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 15 // exactly 3 remaining

	enrollment, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
}

func TestSetStatusApproveReservesCreditHours(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	result, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Equal(t, models.EnrollmentStatusApproved, result.Enrollment.Status)
	assert.NotNil(t, result.Enrollment.DecidedAt)
	assert.Equal(t, 3, students.students["stu1"].CurrentCreditHours)
}

func TestSetStatusApproveRechecksCapacity(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].MaxCreditHours = 4

	// both requests pass the request-time check while the balance is zero
	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS405"})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 3, students.students["stu1"].CurrentCreditHours)

	// the second approval would reserve 4 more hours against a cap of 4
	_, err = svc.SetStatus(context.Background(), "stu1", "CS405", models.EnrollmentStatusApproved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientCredit))

	appErr := appErrors.FromError(err)
	assert.Equal(t, 4, appErr.Details["required"])
	assert.Equal(t, 1, appErr.Details["available"])

	// balance untouched, blocked enrollment still PENDING
	assert.Equal(t, 3, students.students["stu1"].CurrentCreditHours)
	for _, rec := range repo.records {
		if rec.CourseCode == "CS405" {
			assert.Equal(t, models.EnrollmentStatusPending, rec.Status)
		}
	}
}

func TestSetStatusIdempotentReapprove(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.NoError(t, err)
	result, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, result.Enrollment.Status)
	// the second approval must not reserve hours again
	assert.Equal(t, 3, students.students["stu1"].CurrentCreditHours)
	assert.Equal(t, 1, students.updateCalls)
}

func TestSetStatusDropReleasesCreditHours(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 3
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved}}

	result, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusDropped)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Equal(t, 0, students.students["stu1"].CurrentCreditHours)
}

func TestSetStatusReleaseFloorsAtZero(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 2 // less than the course's 3
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved}}

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusWithdrawn)
	require.NoError(t, err)
	assert.Equal(t, 0, students.students["stu1"].CurrentCreditHours)
}

func TestSetStatusRejectLeavesBalanceAlone(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 6
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, 6, students.students["stu1"].CurrentCreditHours)
	assert.Equal(t, 0, students.updateCalls)
}

func TestSetStatusInvalidTransition(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusRejected}}

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestSetStatusPendingCannotComplete(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusCompleted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestSetStatusUnknownStatus(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatus("ENROLLED"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSetStatusNotFound(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSetStatusPicksAuthoritativeAmongDuplicates(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	// duplicate records: the APPROVED one outranks the REJECTED one
	repo.records = []models.Enrollment{
		{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusRejected},
		{ID: "e2", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved},
	}
	students.students["stu1"].CurrentCreditHours = 3

	result, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, "e2", result.Enrollment.ID)
	assert.Equal(t, 0, students.students["stu1"].CurrentCreditHours)
}

func TestSetStatusCreditFailureYieldsWarning(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}
	students.updateErr = errors.New("connection reset")

	result, err := svc.SetStatus(context.Background(), "stu1", "CS101", models.EnrollmentStatusApproved)
	require.NoError(t, err, "the committed status write must not be reported as a failure")
	assert.Equal(t, models.EnrollmentStatusApproved, result.Enrollment.Status)
	assert.NotEmpty(t, result.Warning)
}

func TestDeleteReleasesApprovedOnce(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 3
	// two duplicate APPROVED records must still release only one course's hours
	repo.records = []models.Enrollment{
		{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved},
		{ID: "e2", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved},
	}

	result, err := svc.Delete(context.Background(), "stu1", "CS101")
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Empty(t, repo.records)
	assert.Equal(t, 0, students.students["stu1"].CurrentCreditHours)
	assert.Equal(t, 1, students.updateCalls)
}

func TestDeleteNonApprovedKeepsBalance(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 9
	repo.records = []models.Enrollment{{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusPending}}

	_, err := svc.Delete(context.Background(), "stu1", "CS101")
	require.NoError(t, err)
	assert.Empty(t, repo.records)
	assert.Equal(t, 9, students.students["stu1"].CurrentCreditHours)
}

func TestDeleteNotFound(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture()

	_, err := svc.Delete(context.Background(), "stu1", "CS999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCompleteAllApproved(t *testing.T) {
	svc, repo, students, _ := newEnrollmentFixture()
	students.students["stu1"].CurrentCreditHours = 7
	repo.records = []models.Enrollment{
		{ID: "e1", StudentID: "stu1", CourseCode: "CS101", Status: models.EnrollmentStatusApproved},
		{ID: "e2", StudentID: "stu1", CourseCode: "CS405", Status: models.EnrollmentStatusApproved},
		{ID: "e3", StudentID: "stu1", CourseCode: "CS202", Status: models.EnrollmentStatusPending},
	}

	count, err := svc.CompleteAllApproved(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	for _, rec := range repo.records {
		if rec.ID == "e3" {
			assert.Equal(t, models.EnrollmentStatusPending, rec.Status)
		} else {
			assert.Equal(t, models.EnrollmentStatusCompleted, rec.Status)
		}
	}
	// completion never touches the balance; promotion resets it separately
	assert.Equal(t, 7, students.students["stu1"].CurrentCreditHours)
}

func TestConcurrentRequestsSerializePerStudent(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Request(context.Background(), RequestEnrollmentRequest{StudentID: "stu1", CourseCode: "CS101"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "only one request may win the pair")
	assert.Len(t, repo.records, 1)
}
