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

// BunGradeRepository persists grades using Bun ORM.
type BunGradeRepository struct {
	db *bun.DB
}

// NewBunGradeRepository constructs a repository backed by Bun.
func NewBunGradeRepository(db *bun.DB) *BunGradeRepository {
	return &BunGradeRepository{db: db}
}

// Create inserts a new grade, generating its id when empty.
func (r *BunGradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if err := grade.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if grade.ID == "" {
		grade.ID = bunx.NewUUIDv7()
	}
	grade.CreatedAt = time.Now().UTC()

	if _, err := r.db.NewInsert().Model(grade).Exec(ctx); err != nil {
		if bunx.IsUniqueViolation(err) {
			return fmt.Errorf("grade %q: %w", grade.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("insert grade: %w", err)
	}
	return nil
}

// GetByID fetches a grade by id.
func (r *BunGradeRepository) GetByID(ctx context.Context, id string) (*models.Grade, error) {
	grade := new(models.Grade)
	err := r.db.NewSelect().Model(grade).Where("g.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grade %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query grade: %w", err)
	}
	return grade, nil
}

// List returns all grades ordered by name.
func (r *BunGradeRepository) List(ctx context.Context) ([]models.Grade, error) {
	var grades []models.Grade
	if err := r.db.NewSelect().Model(&grades).Order("g.name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	if grades == nil {
		grades = []models.Grade{}
	}
	return grades, nil
}
