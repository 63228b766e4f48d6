package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// statusPriority ranks duplicate records for the same (student, course) pair.
// The authoritative record is the one with the lowest rank. The ordering is
// deliberately an explicit table rather than enum declaration order.
var statusPriority = map[EnrollmentStatus]int{
	EnrollmentStatusApproved:  0,
	EnrollmentStatusPending:   1,
	EnrollmentStatusRejected:  2,
	EnrollmentStatusCompleted: 3,
	EnrollmentStatusDropped:   4,
	EnrollmentStatusWithdrawn: 5,
}

// Priority returns the conflict-resolution rank of a status. Unknown statuses
// sort last.
func (s EnrollmentStatus) Priority() int {
	if rank, ok := statusPriority[s]; ok {
		return rank
	}
	return len(statusPriority)
}

// Valid reports whether the status is one of the known lifecycle states.
func (s EnrollmentStatus) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// Terminal reports whether the status ends the lifecycle of its record. A new
// request for the same (student, course) pair is permitted once the existing
// record is terminal.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusRejected, EnrollmentStatusCompleted, EnrollmentStatusDropped, EnrollmentStatusWithdrawn:
		return true
	}
	return false
}

// Enrollment captures a student's registration request for a course. The
// logical key is (StudentID, CourseCode); duplicate physical records may exist
// until the reconciliation sweep collapses them.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseCode  string           `db:"course_code" json:"course_code"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt   *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentNIM  string `db:"student_nim" json:"student_nim"`
	CourseTitle string `db:"course_title" json:"course_title"`
	CreditHours int    `db:"credit_hours" json:"credit_hours"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	CourseCode string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
