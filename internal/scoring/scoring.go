// Package scoring converts raw assessment marks into percentage totals, grade
// points and letter grades. Everything here is pure and derived; nothing in
// this package is ever persisted.
package scoring

import (
	"math"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// Component weights on the 0-100 total scale.
const (
	AssignmentWeight = 10.0
	QuizWeight       = 15.0
	MidWeight        = 25.0
	FinalWeight      = 50.0
)

// band maps a lower total bound (inclusive) to its grade point and letter.
type band struct {
	floor  float64
	point  float64
	letter string
}

// Bands are ordered highest first; lookup takes the first band whose floor the
// total reaches. The table is explicit so the mapping is testable on its own.
var bands = []band{
	{85, 4.00, "A"},
	{80, 3.66, "A-"},
	{75, 3.33, "B+"},
	{71, 3.00, "B"},
	{68, 2.66, "B-"},
	{64, 2.33, "C+"},
	{61, 2.00, "C"},
	{58, 1.66, "C-"},
	{55, 1.33, "D+"},
	{50, 1.00, "D"},
	{0, 0.00, "F"},
}

// Round2 rounds to two decimal places using banker's rounding.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// averagePercentage returns the mean of score/max percentages. Entries whose
// maximum is zero are skipped; an empty or unusable list yields zero, never
// NaN. Extra scores without a paired maximum are ignored.
func averagePercentage(scores, maxima []float64) float64 {
	n := len(scores)
	if len(maxima) < n {
		n = len(maxima)
	}
	var sum float64
	var counted int
	for i := 0; i < n; i++ {
		if maxima[i] <= 0 {
			continue
		}
		sum += scores[i] / maxima[i] * 100
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// ratio returns score/max, or zero when max is zero.
func ratio(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max
}

// AssignmentComponent scales the assignment average onto its weight.
func AssignmentComponent(g models.Grade) float64 {
	return averagePercentage(g.AssignmentScores, g.AssignmentMaxima) * AssignmentWeight / 100
}

// QuizComponent scales the quiz average onto its weight.
func QuizComponent(g models.Grade) float64 {
	return averagePercentage(g.QuizScores, g.QuizMaxima) * QuizWeight / 100
}

// MidComponent scales the mid-term score onto its weight.
func MidComponent(g models.Grade) float64 {
	return ratio(g.MidScore, g.MidMax) * MidWeight
}

// FinalComponent scales the final exam score onto its weight.
func FinalComponent(g models.Grade) float64 {
	return ratio(g.FinalScore, g.FinalMax) * FinalWeight
}

// Total computes the percentage total of a grade on the 0-100 scale.
func Total(g models.Grade) float64 {
	return AssignmentComponent(g) + QuizComponent(g) + MidComponent(g) + FinalComponent(g)
}

// GradePoint maps a percentage total onto the 0.00-4.00 scale. Band floors are
// inclusive: a total of exactly 50 earns 1.00.
func GradePoint(total float64) float64 {
	for _, b := range bands {
		if total >= b.floor {
			return b.point
		}
	}
	return 0
}

// Letter maps a percentage total onto the letter-grade scale.
func Letter(total float64) string {
	for _, b := range bands {
		if total >= b.floor {
			return b.letter
		}
	}
	return "F"
}

// Breakdown derives the full per-course view from raw marks.
func Breakdown(g models.Grade) models.GradeBreakdown {
	total := Total(g)
	return models.GradeBreakdown{
		StudentID:           g.StudentID,
		CourseCode:          g.CourseCode,
		AssignmentComponent: Round2(AssignmentComponent(g)),
		QuizComponent:       Round2(QuizComponent(g)),
		MidComponent:        Round2(MidComponent(g)),
		FinalComponent:      Round2(FinalComponent(g)),
		Total:               Round2(total),
		GradePoint:          GradePoint(total),
		Letter:              Letter(total),
	}
}

// CGPA returns the unweighted mean grade point across the given grades,
// rounded to two decimals. A student with no graded courses has a CGPA of
// 0.00; that is a value, not an error.
func CGPA(grades []models.Grade) float64 {
	if len(grades) == 0 {
		return 0
	}
	var sum float64
	for _, g := range grades {
		sum += GradePoint(Total(g))
	}
	return Round2(sum / float64(len(grades)))
}
