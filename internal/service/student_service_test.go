package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type mockStudentStore struct {
	students map[string]*models.Student

	promoted struct {
		id       string
		semester int
		hours    int
	}
}

func (m *mockStudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, s := range m.students {
		out = append(out, models.StudentDetail{Student: *s})
	}
	return out, len(out), nil
}

func (m *mockStudentStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentStore) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: *s, DepartmentName: "Informatics"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentStore) SetSemesterAndCreditHours(ctx context.Context, id string, semester, hours int) error {
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Semester = semester
	s.CurrentCreditHours = hours
	m.promoted.id = id
	m.promoted.semester = semester
	m.promoted.hours = hours
	return nil
}

type mockCompleter struct {
	completed int
	err       error
	calls     []string
}

func (m *mockCompleter) CompleteAllApproved(ctx context.Context, studentID string) (int, error) {
	m.calls = append(m.calls, studentID)
	return m.completed, m.err
}

func TestStudentGet(t *testing.T) {
	store := &mockStudentStore{students: map[string]*models.Student{
		"stu1": {ID: "stu1", FullName: "Siti Rahma", Semester: 3},
	}}
	svc := NewStudentService(store, &mockCompleter{}, nil)

	detail, err := svc.Get(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Equal(t, "Informatics", detail.DepartmentName)

	_, err = svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentPromote(t *testing.T) {
	store := &mockStudentStore{students: map[string]*models.Student{
		"stu1": {ID: "stu1", Semester: 3, CurrentCreditHours: 16, MaxCreditHours: 18},
	}}
	completer := &mockCompleter{completed: 4}
	svc := NewStudentService(store, completer, nil)

	result, err := svc.Promote(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Equal(t, 4, result.CompletedEnrollments)
	assert.Equal(t, 4, result.Semester)
	assert.Equal(t, []string{"stu1"}, completer.calls)

	// the balance is reset alongside the semester bump
	assert.Equal(t, 4, store.students["stu1"].Semester)
	assert.Equal(t, 0, store.students["stu1"].CurrentCreditHours)
}

func TestStudentPromoteUnknownStudent(t *testing.T) {
	svc := NewStudentService(&mockStudentStore{}, &mockCompleter{}, nil)

	_, err := svc.Promote(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentPromoteCompletionFailureAborts(t *testing.T) {
	store := &mockStudentStore{students: map[string]*models.Student{
		"stu1": {ID: "stu1", Semester: 3, CurrentCreditHours: 12},
	}}
	completer := &mockCompleter{err: appErrors.Clone(appErrors.ErrInternal, "storage down")}
	svc := NewStudentService(store, completer, nil)

	_, err := svc.Promote(context.Background(), "stu1")
	require.Error(t, err)
	// the semester and balance stay untouched when completion fails
	assert.Equal(t, 3, store.students["stu1"].Semester)
	assert.Equal(t, 12, store.students["stu1"].CurrentCreditHours)
}
