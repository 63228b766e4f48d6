package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// DepartmentRepository manages persistence for departments.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs a DepartmentRepository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// FindByCode fetches a department by its code.
func (r *DepartmentRepository) FindByCode(ctx context.Context, code string) (*models.Department, error) {
	const query = `SELECT code, name, created_at, updated_at FROM departments WHERE code = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, code); err != nil {
		return nil, err
	}
	return &department, nil
}

// List returns all departments ordered by code.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT code, name, created_at, updated_at FROM departments ORDER BY code`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}
