package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/bunx"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/uptrace/bun"
)

// BunAssignmentRepository persists teacher-grade assignments using Bun ORM.
type BunAssignmentRepository struct {
	db *bun.DB
}

// NewBunAssignmentRepository constructs a repository backed by Bun.
func NewBunAssignmentRepository(db *bun.DB) *BunAssignmentRepository {
	return &BunAssignmentRepository{db: db}
}

// Create inserts an assignment. A repeated (user, grade) pair is ErrAlreadyExists.
func (r *BunAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherGradeAssignment) error {
	if assignment.UserID == "" || assignment.GradeID == "" {
		return fmt.Errorf("validation failed: user_id and grade_id are required")
	}
	if assignment.ID == "" {
		assignment.ID = bunx.NewUUIDv7()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(assignment).Exec(ctx); err != nil {
		switch {
		case bunx.IsUniqueViolation(err):
			return fmt.Errorf("assignment %s/%s: %w", assignment.UserID, assignment.GradeID, ErrAlreadyExists)
		case bunx.IsForeignKeyViolation(err):
			return fmt.Errorf("grade %s: %w", assignment.GradeID, ErrNotFound)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// Delete removes the (user, grade) assignment.
func (r *BunAssignmentRepository) Delete(ctx context.Context, userID, gradeID string) error {
	res, err := r.db.NewDelete().
		Model((*models.TeacherGradeAssignment)(nil)).
		Where("user_id = ?", userID).
		Where("grade_id = ?", gradeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("assignment %s/%s: %w", userID, gradeID, ErrNotFound)
	}
	return nil
}

// ListByUser returns the user's assignments, oldest first.
func (r *BunAssignmentRepository) ListByUser(ctx context.Context, userID string) ([]models.TeacherGradeAssignment, error) {
	return r.list(ctx, "tga.user_id = ?", userID)
}

// ListByGrade returns the grade's assignments, oldest first.
func (r *BunAssignmentRepository) ListByGrade(ctx context.Context, gradeID string) ([]models.TeacherGradeAssignment, error) {
	return r.list(ctx, "tga.grade_id = ?", gradeID)
}

func (r *BunAssignmentRepository) list(ctx context.Context, where string, arg string) ([]models.TeacherGradeAssignment, error) {
	var assignments []models.TeacherGradeAssignment
	err := r.db.NewSelect().
		Model(&assignments).
		Where(where, arg).
		Order("tga.assigned_at ASC", "tga.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if assignments == nil {
		assignments = []models.TeacherGradeAssignment{}
	}
	return assignments, nil
}
