package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	ID                 string    `db:"id" json:"id"`
	NIM                string    `db:"nim" json:"nim"`
	FullName           string    `db:"full_name" json:"full_name"`
	DepartmentCode     string    `db:"department_code" json:"department_code"`
	Semester           int       `db:"semester" json:"semester"`
	CurrentCreditHours int       `db:"current_credit_hours" json:"current_credit_hours"`
	MaxCreditHours     int       `db:"max_credit_hours" json:"max_credit_hours"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableCreditHours returns the remaining enrollment capacity.
func (s Student) AvailableCreditHours() int {
	available := s.MaxCreditHours - s.CurrentCreditHours
	if available < 0 {
		return 0
	}
	return available
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search         string
	DepartmentCode string
	Semester       int
	Active         *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// StudentDetail contains student information with department context.
type StudentDetail struct {
	Student
	DepartmentName      string `db:"department_name" json:"department_name"`
	ApprovedEnrollments int    `db:"approved_enrollments" json:"approved_enrollments"`
}
