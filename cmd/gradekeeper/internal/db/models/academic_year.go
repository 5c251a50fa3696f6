package models

import (
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// AcademicYearStatus is the lifecycle state of an academic year.
type AcademicYearStatus string

const (
	AcademicYearActive   AcademicYearStatus = "ACTIVE"
	AcademicYearFinished AcademicYearStatus = "FINISHED"
)

// Valid reports whether s is a known status.
func (s AcademicYearStatus) Valid() bool {
	return s == AcademicYearActive || s == AcademicYearFinished
}

// AcademicYear is a dated period scoped to one grade.
type AcademicYear struct {
	bun.BaseModel `bun:"table:academic_years,alias:ay"`

	ID        string             `bun:"id,pk,type:uuid" json:"id"`
	GradeID   string             `bun:"grade_id,notnull,type:uuid" json:"grade_id"`
	Name      string             `bun:"name,notnull" json:"name"`
	StartDate time.Time          `bun:"start_date,notnull" json:"start_date"`
	EndDate   time.Time          `bun:"end_date,notnull" json:"end_date"`
	Status    AcademicYearStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time          `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time          `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (y *AcademicYear) ValidateForCreate() error {
	if y.GradeID == "" {
		return errors.New("grade_id is required")
	}
	if strings.TrimSpace(y.Name) == "" {
		return errors.New("name is required")
	}
	if !y.Status.Valid() {
		return errors.New("status must be ACTIVE or FINISHED")
	}
	if y.StartDate.IsZero() || y.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if !y.EndDate.After(y.StartDate) {
		return errors.New("end_date must be after start_date")
	}
	return nil
}

// GradeActiveYear is the single-row-per-grade pointer to the active year.
// A grade has an active year exactly when this row exists.
type GradeActiveYear struct {
	bun.BaseModel `bun:"table:grade_active_years,alias:gay"`

	GradeID        string    `bun:"grade_id,pk,type:uuid"`
	AcademicYearID string    `bun:"academic_year_id,notnull,unique,type:uuid"`
	ClaimedAt      time.Time `bun:"claimed_at,notnull,default:current_timestamp"`
}
