package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// CourseRepository manages persistence for course records.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByCode fetches a course by its identity code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	const query = `SELECT code, title, credit_hours, department_code, semester, created_at, updated_at
        FROM courses WHERE code = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses matching the provided filters.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.DepartmentCode != "" {
		conditions = append(conditions, fmt.Sprintf("c.department_code = $%d", len(args)+1))
		args = append(args, filter.DepartmentCode)
	}
	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"code":         "c.code",
		"title":        "c.title",
		"credit_hours": "c.credit_hours",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT c.code, c.title, c.credit_hours, c.department_code, c.semester, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (code, title, credit_hours, department_code, semester, created_at, updated_at)
        VALUES (:code, :title, :credit_hours, :department_code, :semester, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}
