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
)

// BunAcademicYearRepository persists academic years and the per-grade active year pointer.
type BunAcademicYearRepository struct {
	db *bun.DB
}

// NewBunAcademicYearRepository constructs a repository backed by Bun.
func NewBunAcademicYearRepository(db *bun.DB) *BunAcademicYearRepository {
	return &BunAcademicYearRepository{db: db}
}

// Create inserts the year and, for an ACTIVE year, claims the grade pointer in the same transaction.
func (r *BunAcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if err := year.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if year.ID == "" {
		year.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(year).Exec(ctx); err != nil {
			switch {
			case bunx.IsForeignKeyViolation(err):
				return fmt.Errorf("grade %s: %w", year.GradeID, ErrNotFound)
			case bunx.IsUniqueViolation(err):
				// partial unique index on ACTIVE rows
				return ErrActiveYearExists
			}
			return fmt.Errorf("insert academic year: %w", err)
		}
		if year.Status == models.AcademicYearActive {
			return claimActivePointer(ctx, tx, year.GradeID, year.ID)
		}
		return nil
	})
}

// GetByID fetches an academic year by id.
func (r *BunAcademicYearRepository) GetByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	return getAcademicYear(ctx, r.db, id)
}

// GetActiveByGrade resolves the grade's active year through the pointer row.
func (r *BunAcademicYearRepository) GetActiveByGrade(ctx context.Context, gradeID string) (*models.AcademicYear, error) {
	year := new(models.AcademicYear)
	err := r.db.NewSelect().
		Model(year).
		Join("JOIN grade_active_years AS gay ON gay.academic_year_id = ay.id").
		Where("gay.grade_id = ?", gradeID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active year for grade %s: %w", gradeID, ErrNotFound)
		}
		return nil, fmt.Errorf("query active year: %w", err)
	}
	return year, nil
}

// Activate claims the grade pointer and flips FINISHED to ACTIVE atomically.
func (r *BunAcademicYearRepository) Activate(ctx context.Context, id string) (*models.AcademicYear, error) {
	var year *models.AcademicYear
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		year, err = getAcademicYear(ctx, tx, id)
		if err != nil {
			return err
		}
		if year.Status != models.AcademicYearFinished {
			return ErrStatusMismatch
		}
		if err := claimActivePointer(ctx, tx, year.GradeID, year.ID); err != nil {
			return err
		}
		return transitionStatus(ctx, tx, year, models.AcademicYearFinished, models.AcademicYearActive)
	})
	return year, err
}

// Complete flips ACTIVE to FINISHED and releases the grade pointer atomically.
func (r *BunAcademicYearRepository) Complete(ctx context.Context, id string) (*models.AcademicYear, error) {
	var year *models.AcademicYear
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		year, err = getAcademicYear(ctx, tx, id)
		if err != nil {
			return err
		}
		if year.Status != models.AcademicYearActive {
			return ErrStatusMismatch
		}
		if err := transitionStatus(ctx, tx, year, models.AcademicYearActive, models.AcademicYearFinished); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*models.GradeActiveYear)(nil)).
			Where("grade_id = ?", year.GradeID).
			Where("academic_year_id = ?", year.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("release active year pointer: %w", err)
		}
		return nil
	})
	return year, err
}

// Delete removes a year that owns no lessons, releasing its pointer if held.
func (r *BunAcademicYearRepository) Delete(ctx context.Context, id string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := getAcademicYear(ctx, tx, id); err != nil {
			return err
		}

		lessons, err := countLessons(ctx, tx, id)
		if err != nil {
			return err
		}
		if lessons > 0 {
			return &DependentsError{Lessons: lessons}
		}

		if _, err := tx.NewDelete().Model((*models.GradeActiveYear)(nil)).Where("academic_year_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("release active year pointer: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.AcademicYear)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			if bunx.IsForeignKeyViolation(err) {
				// a lesson landed between the count and the delete
				return &DependentsError{Lessons: 1}
			}
			return fmt.Errorf("delete academic year: %w", err)
		}
		return nil
	})
}

// ListByStatus returns one keyset page of years in the given status ordered by id.
func (r *BunAcademicYearRepository) ListByStatus(ctx context.Context, status models.AcademicYearStatus, page Page) ([]models.AcademicYear, error) {
	var years []models.AcademicYear
	q := r.db.NewSelect().
		Model(&years).
		Where("ay.status = ?", status).
		Order("ay.id ASC").
		Limit(page.limit())
	if page.After != "" {
		q = q.Where("ay.id > ?", page.After)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list academic years by status: %w", err)
	}
	if years == nil {
		years = []models.AcademicYear{}
	}
	return years, nil
}

// ListByGrade returns every year of the grade, oldest first.
func (r *BunAcademicYearRepository) ListByGrade(ctx context.Context, gradeID string) ([]models.AcademicYear, error) {
	var years []models.AcademicYear
	err := r.db.NewSelect().
		Model(&years).
		Where("ay.grade_id = ?", gradeID).
		Order("ay.start_date ASC", "ay.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list academic years by grade: %w", err)
	}
	if years == nil {
		years = []models.AcademicYear{}
	}
	return years, nil
}

func getAcademicYear(ctx context.Context, db bun.IDB, id string) (*models.AcademicYear, error) {
	year := new(models.AcademicYear)
	err := db.NewSelect().Model(year).Where("ay.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("academic year %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query academic year: %w", err)
	}
	return year, nil
}

// claimActivePointer is the compare-and-swap on the grade's active year:
// the insert only succeeds when no pointer row exists.
func claimActivePointer(ctx context.Context, tx bun.Tx, gradeID, yearID string) error {
	pointer := &models.GradeActiveYear{
		GradeID:        gradeID,
		AcademicYearID: yearID,
		ClaimedAt:      time.Now().UTC(),
	}
	res, err := tx.NewInsert().
		Model(pointer).
		On("CONFLICT (grade_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if bunx.IsUniqueViolation(err) {
			return ErrActiveYearExists
		}
		return fmt.Errorf("claim active year pointer: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrActiveYearExists
	}
	return nil
}

func transitionStatus(ctx context.Context, tx bun.Tx, year *models.AcademicYear, from, to models.AcademicYearStatus) error {
	now := time.Now().UTC()
	res, err := tx.NewUpdate().
		Model((*models.AcademicYear)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", year.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		if bunx.IsUniqueViolation(err) {
			return ErrActiveYearExists
		}
		return fmt.Errorf("update academic year status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrStatusMismatch
	}
	year.Status = to
	year.UpdatedAt = now
	return nil
}
