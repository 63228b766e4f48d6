package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// GradeRepository persists raw assessment marks. Derived totals are never
// written here; only the mark vectors and exam scores are stored.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, student_id, course_code, assignment_scores, assignment_maxima,
        quiz_scores, quiz_maxima, mid_score, mid_max, final_score, final_max, created_at, updated_at`

// FindByPair fetches the marks record for a (student, course) pair.
func (r *GradeRepository) FindByPair(ctx context.Context, studentID, courseCode string) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE student_id = $1 AND course_code = $2`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, studentID, courseCode); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByStudent returns all marks records for a student.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE student_id = $1 ORDER BY course_code`, gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// Upsert creates or replaces the marks record for the grade's logical key.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, course_code, assignment_scores, assignment_maxima,
        quiz_scores, quiz_maxima, mid_score, mid_max, final_score, final_max, created_at, updated_at)
        VALUES (:id, :student_id, :course_code, :assignment_scores, :assignment_maxima,
        :quiz_scores, :quiz_maxima, :mid_score, :mid_max, :final_score, :final_max, :created_at, :updated_at)
        ON CONFLICT (student_id, course_code) DO UPDATE SET
        assignment_scores = EXCLUDED.assignment_scores,
        assignment_maxima = EXCLUDED.assignment_maxima,
        quiz_scores = EXCLUDED.quiz_scores,
        quiz_maxima = EXCLUDED.quiz_maxima,
        mid_score = EXCLUDED.mid_score,
        mid_max = EXCLUDED.mid_max,
        final_score = EXCLUDED.final_score,
        final_max = EXCLUDED.final_max,
        updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// Delete removes the marks record for a (student, course) pair.
func (r *GradeRepository) Delete(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `DELETE FROM grades WHERE student_id = $1 AND course_code = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, courseCode)
	if err != nil {
		return false, fmt.Errorf("delete grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete grade: %w", err)
	}
	return affected > 0, nil
}
