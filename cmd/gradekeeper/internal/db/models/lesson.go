package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

// Lesson is held in an academic year of a grade.
type Lesson struct {
	bun.BaseModel `bun:"table:lessons,alias:l"`

	ID             string    `bun:"id,pk,type:uuid" json:"id"`
	GradeID        string    `bun:"grade_id,notnull,type:uuid" json:"grade_id"`
	AcademicYearID string    `bun:"academic_year_id,notnull,type:uuid" json:"academic_year_id"`
	Topic          string    `bun:"topic,notnull" json:"topic"`
	HeldOn         time.Time `bun:"held_on,notnull" json:"held_on"`
	CreatedBy      string    `bun:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// HomeworkCheck records a pupil's homework scores for a lesson.
// Points is derived from Scores once, at write time.
type HomeworkCheck struct {
	bun.BaseModel `bun:"table:homework_checks,alias:hc"`

	ID        string         `bun:"id,pk,type:uuid" json:"id"`
	LessonID  string         `bun:"lesson_id,notnull,type:uuid" json:"lesson_id"`
	PupilID   string         `bun:"pupil_id,notnull" json:"pupil_id"`
	GradeID   string         `bun:"grade_id,notnull,type:uuid" json:"grade_id"`
	Scores    map[string]int `bun:"scores,type:jsonb" json:"scores"`
	Points    int            `bun:"points,notnull" json:"points"`
	CheckedBy string         `bun:"checked_by" json:"checked_by,omitempty"`
	CheckedAt time.Time      `bun:"checked_at,notnull,default:current_timestamp" json:"checked_at"`
}

// Bounds on homework category scores.
const (
	MaxCategoryScore   = 1000
	MaxScoreCategories = 64
)

// SumScores returns the total of all category scores. Negative scores count
// as zero and the total saturates at math.MaxInt.
func SumScores(scores map[string]int) int {
	total := 0
	for _, v := range scores {
		if v <= 0 {
			continue
		}
		if v > math.MaxInt-total {
			return math.MaxInt
		}
		total += v
	}
	return total
}
