package models

import (
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Grade is a cohort of pupils that owns academic years and teacher assignments.
type Grade struct {
	bun.BaseModel `bun:"table:grades,alias:g"`

	ID        string    `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	Active    bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (g *Grade) ValidateForCreate() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("name is required")
	}
	if len(g.Name) > 128 {
		return errors.New("name exceeds maximum length")
	}
	return nil
}

// TeacherGradeAssignment grants a teacher access to a grade.
// (user_id, grade_id) is unique.
type TeacherGradeAssignment struct {
	bun.BaseModel `bun:"table:teacher_grade_assignments,alias:tga"`

	ID         string    `bun:"id,pk,type:uuid" json:"id"`
	UserID     string    `bun:"user_id,notnull" json:"user_id"`
	GradeID    string    `bun:"grade_id,notnull,type:uuid" json:"grade_id"`
	AssignedAt time.Time `bun:"assigned_at,notnull,default:current_timestamp" json:"assigned_at"`
	AssignedBy string    `bun:"assigned_by" json:"assigned_by,omitempty"`
}
