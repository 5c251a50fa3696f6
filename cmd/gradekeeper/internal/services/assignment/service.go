// Package assignment manages which teachers may access which grades.
package assignment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/validation"
)

// Invalidator drops a user's cached grade set.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, reason string)
}

// AssignInput grants a teacher access to a grade.
type AssignInput struct {
	UserID     string `json:"user_id" validate:"notblank"`
	GradeID    string `json:"grade_id" validate:"required"`
	AssignedBy string `json:"assigned_by,omitempty"`
}

// Service writes assignments and keeps the access cache honest: every
// successful change invalidates the affected teacher's entry.
type Service struct {
	repo     repository.AssignmentRepository
	cache    Invalidator
	validate *validation.Validator
	logger   zerolog.Logger
}

// NewService constructs a new Service instance.
func NewService(repo repository.AssignmentRepository, cache Invalidator, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		validate: validation.New(),
		logger:   logger,
	}
}

// Assign grants in.UserID access to in.GradeID.
func (s *Service) Assign(ctx context.Context, in AssignInput) (*models.TeacherGradeAssignment, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	a := &models.TeacherGradeAssignment{UserID: in.UserID, GradeID: in.GradeID, AssignedBy: in.AssignedBy}
	if err := s.repo.Create(ctx, a); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, &apperrors.ConflictError{GradeID: in.GradeID, Msg: "teacher " + in.UserID + " is already assigned to grade " + in.GradeID}
		case errors.Is(err, repository.ErrNotFound):
			return nil, &apperrors.NotFoundError{Kind: "grade", ID: in.GradeID}
		}
		s.logger.Error().Err(err).Str("user_id", in.UserID).Str("grade_id", in.GradeID).Msg("failed to create assignment")
		return nil, apperrors.NewStoreError("assign teacher", err)
	}

	s.cache.Invalidate(ctx, in.UserID, access.ReasonAssignment)
	s.logger.Info().Str("user_id", in.UserID).Str("grade_id", in.GradeID).Str("assigned_by", in.AssignedBy).Msg("teacher assigned to grade")
	return a, nil
}

// Unassign revokes userID's access to gradeID.
func (s *Service) Unassign(ctx context.Context, userID, gradeID string) error {
	if err := s.repo.Delete(ctx, userID, gradeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &apperrors.NotFoundError{Kind: "assignment", ID: userID + "/" + gradeID}
		}
		s.logger.Error().Err(err).Str("user_id", userID).Str("grade_id", gradeID).Msg("failed to delete assignment")
		return apperrors.NewStoreError("unassign teacher", err)
	}

	s.cache.Invalidate(ctx, userID, access.ReasonAssignment)
	s.logger.Info().Str("user_id", userID).Str("grade_id", gradeID).Msg("teacher unassigned from grade")
	return nil
}

// ListByUser returns userID's assignments.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.TeacherGradeAssignment, error) {
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("list assignments", err)
	}
	return out, nil
}

// ListByGrade returns the teachers assigned to gradeID.
func (s *Service) ListByGrade(ctx context.Context, gradeID string) ([]models.TeacherGradeAssignment, error) {
	out, err := s.repo.ListByGrade(ctx, gradeID)
	if err != nil {
		return nil, apperrors.NewStoreError("list assignments", err)
	}
	return out, nil
}
