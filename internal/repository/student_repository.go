package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.nim, s.full_name, s.department_code, s.semester,
        s.current_credit_hours, s.max_credit_hours, s.active, s.created_at, s.updated_at`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN departments d ON d.code = s.department_code"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.DepartmentCode != "" {
		conditions = append(conditions, fmt.Sprintf("s.department_code = $%d", len(args)+1))
		args = append(args, filter.DepartmentCode)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("s.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.nim) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":  "s.full_name",
		"nim":        "s.nim",
		"semester":   "s.semester",
		"created_at": "s.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
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

	query := fmt.Sprintf(`SELECT %s, COALESCE(d.name, '') AS department_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.student_id = s.id AND e.status = 'APPROVED') AS approved_enrollments
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, nim, full_name, department_code, semester, current_credit_hours,
        max_credit_hours, active, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID fetches a student with department context.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, COALESCE(d.name, '') AS department_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.student_id = s.id AND e.status = 'APPROVED') AS approved_enrollments
        FROM students s LEFT JOIN departments d ON d.code = s.department_code WHERE s.id = $1`, studentColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, nim, full_name, department_code, semester,
        current_credit_hours, max_credit_hours, active, created_at, updated_at)
        VALUES (:id, :nim, :full_name, :department_code, :semester,
        :current_credit_hours, :max_credit_hours, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateCreditHours sets the student's reserved credit-hour balance. The value
// is written absolutely; the lifecycle service is the single writer computing
// adjustments.
func (r *StudentRepository) UpdateCreditHours(ctx context.Context, id string, hours int) error {
	const query = `UPDATE students SET current_credit_hours = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, hours, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student credit hours: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update student credit hours: no student %s", id)
	}
	return nil
}

// SetSemesterAndCreditHours writes the next semester and credit balance in one
// statement, used by semester promotion.
func (r *StudentRepository) SetSemesterAndCreditHours(ctx context.Context, id string, semester, hours int) error {
	const query = `UPDATE students SET semester = $2, current_credit_hours = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, semester, hours, time.Now().UTC()); err != nil {
		return fmt.Errorf("promote student: %w", err)
	}
	return nil
}
