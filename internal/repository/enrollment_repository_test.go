package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByPair(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_code", "status", "requested_at", "decided_at"}).
		AddRow("enr-1", "stu-1", "CS101", models.EnrollmentStatusRejected, time.Now(), nil).
		AddRow("enr-2", "stu-1", "CS101", models.EnrollmentStatusApproved, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND course_code = $2 ORDER BY requested_at, id")).
		WithArgs("stu-1", "CS101").
		WillReturnRows(rows)

	enrollments, err := repo.FindByPair(context.Background(), "stu-1", "CS101")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, models.EnrollmentStatusApproved, enrollments[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByStudentWithStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_code", "status", "requested_at", "decided_at"}).
		AddRow("enr-1", "stu-1", "CS101", models.EnrollmentStatusApproved, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY requested_at, id")).
		WithArgs("stu-1", models.EnrollmentStatusApproved).
		WillReturnRows(rows)

	enrollments, err := repo.ListByStudent(context.Background(), "stu-1", models.EnrollmentStatusApproved)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseCode: "CS101"}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	require.False(t, enrollment.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	decidedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, decided_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusApproved, &decidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusApproved, &decidedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteMany(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"enr-1", "enr-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.DeleteMany(context.Background(), []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteManyEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	err := repo.DeleteMany(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
