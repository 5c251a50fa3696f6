package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/bunx"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// BunLessonRepository persists lessons and homework checks using Bun ORM.
type BunLessonRepository struct {
	db *bun.DB
}

// NewBunLessonRepository constructs a repository backed by Bun.
func NewBunLessonRepository(db *bun.DB) *BunLessonRepository {
	return &BunLessonRepository{db: db}
}

// Create inserts the lesson guarded by the grade's active year pointer, so a
// concurrent Complete cannot slip a lesson into a finished year.
func (r *BunLessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.GradeID == "" || lesson.AcademicYearID == "" || lesson.Topic == "" {
		return fmt.Errorf("validation failed: grade_id, academic_year_id and topic are required")
	}
	if lesson.ID == "" {
		lesson.ID = bunx.NewUUIDv7()
	}
	lesson.CreatedAt = time.Now().UTC()

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model((*models.GradeActiveYear)(nil)).
			Where("grade_id = ?", lesson.GradeID).
			Where("academic_year_id = ?", lesson.AcademicYearID)
		if tx.Dialect().Name() == dialect.PG {
			// blocks Complete from releasing the pointer until this insert commits
			q = q.For("SHARE")
		}
		active, err := q.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check active year: %w", err)
		}
		if !active {
			return ErrYearNotActive
		}
		if _, err := tx.NewInsert().Model(lesson).Exec(ctx); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
		return nil
	})
}

// GetByID fetches a lesson by id.
func (r *BunLessonRepository) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson := new(models.Lesson)
	err := r.db.NewSelect().Model(lesson).Where("l.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lesson %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query lesson: %w", err)
	}
	return lesson, nil
}

// ListByAcademicYear returns the year's lessons in the order they were held.
func (r *BunLessonRepository) ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := r.db.NewSelect().
		Model(&lessons).
		Where("l.academic_year_id = ?", academicYearID).
		Order("l.held_on ASC", "l.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	return lessons, nil
}

// countLessons counts lessons referencing the year. It runs inside the year
// deletion transaction so the count and the delete see the same rows.
func countLessons(ctx context.Context, db bun.IDB, academicYearID string) (int, error) {
	n, err := db.NewSelect().Model((*models.Lesson)(nil)).Where("academic_year_id = ?", academicYearID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return n, nil
}

// CreateHomeworkCheck inserts a check. One check per (lesson, pupil).
func (r *BunLessonRepository) CreateHomeworkCheck(ctx context.Context, check *models.HomeworkCheck) error {
	if check.ID == "" {
		check.ID = bunx.NewUUIDv7()
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(check).Exec(ctx); err != nil {
		switch {
		case bunx.IsUniqueViolation(err):
			return fmt.Errorf("homework check %s/%s: %w", check.LessonID, check.PupilID, ErrAlreadyExists)
		case bunx.IsForeignKeyViolation(err):
			return fmt.Errorf("lesson %s: %w", check.LessonID, ErrNotFound)
		}
		return fmt.Errorf("insert homework check: %w", err)
	}
	return nil
}

// ListHomeworkChecks returns the lesson's checks ordered by pupil.
func (r *BunLessonRepository) ListHomeworkChecks(ctx context.Context, lessonID string) ([]models.HomeworkCheck, error) {
	var checks []models.HomeworkCheck
	err := r.db.NewSelect().
		Model(&checks).
		Where("hc.lesson_id = ?", lessonID).
		Order("hc.pupil_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list homework checks: %w", err)
	}
	if checks == nil {
		checks = []models.HomeworkCheck{}
	}
	return checks, nil
}
