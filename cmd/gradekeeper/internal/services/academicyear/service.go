// Package academicyear implements the academic year state machine: at most
// one ACTIVE year per grade, FINISHED years may be reactivated, and a year
// that owns lessons cannot be deleted.
package academicyear

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/telemetry"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/validation"
)

// CreateInput describes a new academic year.
type CreateInput struct {
	GradeID   string                    `json:"grade_id" validate:"required"`
	Name      string                    `json:"name" validate:"notblank,max=128"`
	StartDate time.Time                 `json:"start_date" validate:"required"`
	EndDate   time.Time                 `json:"end_date" validate:"required,gtfield=StartDate"`
	Status    models.AcademicYearStatus `json:"status" validate:"required,oneof=ACTIVE FINISHED"`
}

// CompletionResult is the outcome of completing one year in CompleteAll.
type CompletionResult struct {
	Year models.AcademicYear
	Err  error
}

// Service runs academic year operations against the repository.
type Service struct {
	years    repository.AcademicYearRepository
	validate *validation.Validator
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	pageSize int
}

// NewService constructs a new Service instance.
func NewService(years repository.AcademicYearRepository, logger zerolog.Logger) *Service {
	return &Service{
		years:    years,
		validate: validation.New(),
		logger:   logger,
		pageSize: repository.DefaultPageSize,
	}
}

// WithMetrics records lifecycle outcomes on m.
func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

// WithPageSize sets the page size CompleteAll scans with.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Create inserts a year. Creating an ACTIVE year while the grade already has
// one fails with a ConflictError naming the active year.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.AcademicYear, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	if in.Status == models.AcademicYearActive {
		// fast path for a readable error; the claim inside Create is what enforces it
		active, err := s.GetActiveYear(ctx, in.GradeID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			s.record(ctx, "create", "conflict")
			return nil, conflict(in.GradeID, active)
		}
	}

	year := &models.AcademicYear{
		GradeID:   in.GradeID,
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    in.Status,
	}
	if err := s.years.Create(ctx, year); err != nil {
		return nil, s.translate(ctx, "create", in.GradeID, year.ID, err)
	}

	s.record(ctx, "create", "ok")
	s.logger.Info().Str("academic_year_id", year.ID).Str("grade_id", year.GradeID).Str("status", string(year.Status)).Msg("academic year created")
	return year, nil
}

// Activate moves a FINISHED year back to ACTIVE when its grade has no active year.
func (s *Service) Activate(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.Activate(ctx, id)
	if err != nil {
		gradeID := ""
		if year != nil {
			gradeID = year.GradeID
		}
		if errors.Is(err, repository.ErrStatusMismatch) && year != nil {
			s.record(ctx, "activate", "invalid_state")
			return nil, &apperrors.InvalidStateError{YearID: id, Current: string(year.Status), Target: string(models.AcademicYearActive)}
		}
		return nil, s.translate(ctx, "activate", gradeID, id, err)
	}

	s.record(ctx, "activate", "ok")
	s.logger.Info().Str("academic_year_id", id).Str("grade_id", year.GradeID).Msg("academic year activated")
	return year, nil
}

// Complete moves an ACTIVE year to FINISHED.
func (s *Service) Complete(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.Complete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) && year != nil {
			s.record(ctx, "complete", "invalid_state")
			return nil, &apperrors.InvalidStateError{YearID: id, Current: string(year.Status), Target: string(models.AcademicYearFinished)}
		}
		return nil, s.translate(ctx, "complete", "", id, err)
	}

	s.record(ctx, "complete", "ok")
	s.logger.Info().Str("academic_year_id", id).Str("grade_id", year.GradeID).Msg("academic year completed")
	return year, nil
}

// CompleteAll completes every ACTIVE year across all grades. Each year is
// completed independently; the result lists every year with its outcome.
// The error is non-nil only when a page of years could not be listed, in
// which case the results gathered so far are returned with it.
func (s *Service) CompleteAll(ctx context.Context) ([]CompletionResult, error) {
	var results []CompletionResult
	page := repository.Page{Limit: s.pageSize}

	for {
		years, err := s.years.ListByStatus(ctx, models.AcademicYearActive, page)
		if err != nil {
			s.logger.Error().Err(err).Str("after", page.After).Msg("failed to list active academic years")
			return results, apperrors.NewStoreError("list active academic years", err)
		}
		if len(years) == 0 {
			break
		}

		for _, y := range years {
			completed, err := s.Complete(ctx, y.ID)
			if err != nil {
				s.logger.Warn().Err(err).Str("academic_year_id", y.ID).Msg("academic year not completed")
				results = append(results, CompletionResult{Year: y, Err: err})
				continue
			}
			results = append(results, CompletionResult{Year: *completed})
		}

		if len(years) < page.Limit {
			break
		}
		page.After = years[len(years)-1].ID
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info().Int("completed", len(results)-failed).Int("failed", failed).Msg("complete-all finished")
	return results, nil
}

// Delete removes a year that owns no lessons.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.years.Delete(ctx, id); err != nil {
		return s.translate(ctx, "delete", "", id, err)
	}
	s.record(ctx, "delete", "ok")
	s.logger.Info().Str("academic_year_id", id).Msg("academic year deleted")
	return nil
}

// GetActiveYear returns the grade's ACTIVE year, or nil when it has none.
func (s *Service) GetActiveYear(ctx context.Context, gradeID string) (*models.AcademicYear, error) {
	year, err := s.years.GetActiveByGrade(ctx, gradeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("grade_id", gradeID).Msg("failed to read active academic year")
		return nil, apperrors.NewStoreError("get active academic year", err)
	}
	return year, nil
}

// Get returns one academic year.
func (s *Service) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(ctx, "get", "", id, err)
	}
	return year, nil
}

// ListByGrade returns the grade's years, oldest first.
func (s *Service) ListByGrade(ctx context.Context, gradeID string) ([]models.AcademicYear, error) {
	years, err := s.years.ListByGrade(ctx, gradeID)
	if err != nil {
		s.logger.Error().Err(err).Str("grade_id", gradeID).Msg("failed to list academic years")
		return nil, apperrors.NewStoreError("list academic years", err)
	}
	return years, nil
}

// translate maps repository errors to typed application errors.
func (s *Service) translate(ctx context.Context, op, gradeID, yearID string, err error) error {
	var dep *repository.DependentsError
	switch {
	case errors.As(err, &dep):
		s.record(ctx, op, "has_dependents")
		return &apperrors.HasDependentsError{YearID: yearID, Lessons: dep.Lessons}
	case errors.Is(err, repository.ErrActiveYearExists):
		s.record(ctx, op, "conflict")
		active, lookupErr := s.GetActiveYear(ctx, gradeID)
		if lookupErr != nil || active == nil {
			return &apperrors.ConflictError{GradeID: gradeID}
		}
		return conflict(gradeID, active)
	case errors.Is(err, repository.ErrNotFound):
		s.record(ctx, op, "not_found")
		if gradeID != "" && op == "create" {
			return &apperrors.NotFoundError{Kind: "grade", ID: gradeID}
		}
		return &apperrors.NotFoundError{Kind: "academic year", ID: yearID}
	case errors.Is(err, repository.ErrStatusMismatch):
		s.record(ctx, op, "invalid_state")
		return &apperrors.InvalidStateError{YearID: yearID, Current: "changed concurrently", Target: op}
	}

	s.record(ctx, op, "store_error")
	s.logger.Error().Err(err).Str("op", op).Str("academic_year_id", yearID).Str("grade_id", gradeID).Msg("academic year store failure")
	return apperrors.NewStoreError(op+" academic year", err)
}

func (s *Service) record(ctx context.Context, op, outcome string) {
	s.metrics.RecordYearTransition(ctx, op, outcome)
}

func conflict(gradeID string, active *models.AcademicYear) error {
	return &apperrors.ConflictError{GradeID: gradeID, ActiveYearID: active.ID, ActiveYearName: active.Name}
}
