// Package grade creates and lists grades.
package grade

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/validation"
)

// CreateInput describes a new grade.
type CreateInput struct {
	Name string `json:"name" validate:"notblank,max=128"`
}

// Service handles grade operations.
type Service struct {
	repo     repository.GradeRepository
	validate *validation.Validator
	logger   zerolog.Logger
}

// NewService constructs a new Service instance.
func NewService(repo repository.GradeRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, validate: validation.New(), logger: logger}
}

// Create inserts a grade with a unique name.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Grade, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	g := &models.Grade{Name: in.Name, Active: true}
	if err := s.repo.Create(ctx, g); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, &apperrors.ConflictError{Msg: "grade " + in.Name + " already exists"}
		}
		return nil, apperrors.NewStoreError("create grade", err)
	}

	s.logger.Info().Str("grade_id", g.ID).Str("name", g.Name).Msg("grade created")
	return g, nil
}

// Get returns one grade.
func (s *Service) Get(ctx context.Context, id string) (*models.Grade, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "grade", ID: id}
		}
		return nil, apperrors.NewStoreError("get grade", err)
	}
	return g, nil
}

// List returns every grade ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Grade, error) {
	grades, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewStoreError("list grades", err)
	}
	return grades, nil
}
