package models

import "time"

// Course represents an offered course identified by its code.
type Course struct {
	Code           string    `db:"code" json:"code"`
	Title          string    `db:"title" json:"title"`
	CreditHours    int       `db:"credit_hours" json:"credit_hours"`
	DepartmentCode string    `db:"department_code" json:"department_code"`
	Semester       int       `db:"semester" json:"semester"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Search         string
	DepartmentCode string
	Semester       int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
