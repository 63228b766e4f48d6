package models

import (
	"time"

	"github.com/lib/pq"
)

// Grade stores the raw assessment marks for a (student, course) pair. Totals,
// letter grades and grade points are derived on every read and never persisted,
// so edits to raw marks can never leave a stale aggregate behind.
type Grade struct {
	ID               string          `db:"id" json:"id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	CourseCode       string          `db:"course_code" json:"course_code"`
	AssignmentScores pq.Float64Array `db:"assignment_scores" json:"assignment_scores"`
	AssignmentMaxima pq.Float64Array `db:"assignment_maxima" json:"assignment_maxima"`
	QuizScores       pq.Float64Array `db:"quiz_scores" json:"quiz_scores"`
	QuizMaxima       pq.Float64Array `db:"quiz_maxima" json:"quiz_maxima"`
	MidScore         float64         `db:"mid_score" json:"mid_score"`
	MidMax           float64         `db:"mid_max" json:"mid_max"`
	FinalScore       float64         `db:"final_score" json:"final_score"`
	FinalMax         float64         `db:"final_max" json:"final_max"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// GradeBreakdown is the derived view of a Grade on the 0-100 scale.
type GradeBreakdown struct {
	StudentID           string  `json:"student_id"`
	CourseCode          string  `json:"course_code"`
	AssignmentComponent float64 `json:"assignment_component"`
	QuizComponent       float64 `json:"quiz_component"`
	MidComponent        float64 `json:"mid_component"`
	FinalComponent      float64 `json:"final_component"`
	Total               float64 `json:"total"`
	GradePoint          float64 `json:"grade_point"`
	Letter              string  `json:"letter"`
}

// TranscriptRow is one graded course on a student's transcript.
type TranscriptRow struct {
	CourseCode  string  `json:"course_code"`
	CourseTitle string  `json:"course_title"`
	CreditHours int     `json:"credit_hours"`
	Total       float64 `json:"total"`
	Letter      string  `json:"letter"`
	GradePoint  float64 `json:"grade_point"`
}

// Transcript summarises all graded courses for a student.
type Transcript struct {
	Student Student         `json:"student"`
	Rows    []TranscriptRow `json:"rows"`
	CGPA    float64         `json:"cgpa"`
}
