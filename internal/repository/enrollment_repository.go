package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollment records. The store
// does not enforce uniqueness of (student_id, course_code); duplicate physical
// records are resolved by the service layer and the reconciliation sweep.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.code = e.course_code`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"requested_at": "e.requested_at",
		"student_name": "s.full_name",
		"course_code":  "e.course_code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "requested_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.requested_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_code, e.status, e.requested_at, e.decided_at,
        s.full_name AS student_name, s.nim AS student_nim, c.title AS course_title, c.credit_hours
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByPair returns every physical record for the (student, course) logical
// key in stable creation order, duplicates included.
func (r *EnrollmentRepository) FindByPair(ctx context.Context, studentID, courseCode string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_code, status, requested_at, decided_at
        FROM enrollments WHERE student_id = $1 AND course_code = $2 ORDER BY requested_at, id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, courseCode); err != nil {
		return nil, fmt.Errorf("find enrollments for pair: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns enrollments for a student, optionally limited to one status.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := `SELECT id, student_id, course_code, status, requested_at, decided_at
        FROM enrollments WHERE student_id = $1`
	args := []interface{}{studentID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY requested_at, id"
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListAll returns every enrollment record in stable scan order, for the
// reconciliation sweep.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_code, status, requested_at, decided_at
        FROM enrollments ORDER BY requested_at, id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list all enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RequestedAt.IsZero() {
		enrollment.RequestedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (id, student_id, course_code, status, requested_at, decided_at)
        VALUES (:id, :student_id, :course_code, :status, :requested_at, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates status and the decision timestamp for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, decidedAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, decided_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, decidedAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// Delete removes a single enrollment record.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// DeleteMany removes a batch of enrollment records by ID.
func (r *EnrollmentRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM enrollments WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete enrollments: %w", err)
	}
	return nil
}
