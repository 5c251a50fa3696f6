package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/telemetry"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/validation"
)

// IssueInput is one line of a reward batch.
type IssueInput struct {
	PupilID        string `json:"pupil_id" validate:"notblank"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	GradeID        string `json:"grade_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0,lte=100000"`
}

// IssueBatch is a set of issues committed together or not at all.
type IssueBatch struct {
	Issues []IssueInput `json:"issues" validate:"required,min=1,max=1000,dive"`
}

// Balance summarises one pupil's ledger in an academic year.
type Balance struct {
	PupilID        string `json:"pupil_id"`
	AcademicYearID string `json:"academic_year_id"`
	Earned         int    `json:"earned"`
	Issued         int    `json:"issued"`
	Available      int    `json:"available"`
}

// Service appends reward batches. Batches touching the same ledger key are
// serialised in process; the repository's conditional balance update keeps
// the ceiling across processes.
type Service struct {
	ledger   repository.LedgerRepository
	years    repository.AcademicYearRepository
	guard    Guard
	locks    *keyLocker
	validate *validation.Validator
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewService constructs a new Service instance.
func NewService(ledger repository.LedgerRepository, years repository.AcademicYearRepository, logger zerolog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		years:    years,
		locks:    newKeyLocker(),
		validate: validation.New(),
		logger:   logger,
	}
}

// WithMetrics records batch outcomes on m.
func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

// GradeIDs returns the distinct grades a batch touches, for authorization.
func (b IssueBatch) GradeIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, in := range b.Issues {
		if !seen[in.GradeID] {
			seen[in.GradeID] = true
			out = append(out, in.GradeID)
		}
	}
	return out
}

// Issue validates and appends the batch. Any group that would overshoot its
// earned points rejects the whole batch with a ConservationViolationError.
func (s *Service) Issue(ctx context.Context, batch IssueBatch, issuedBy string) ([]models.BricksIssue, error) {
	if err := s.validate.Struct(batch); err != nil {
		s.metrics.RecordLedgerBatch(ctx, "invalid", 0)
		return nil, err
	}

	issues := make([]models.BricksIssue, 0, len(batch.Issues))
	sums := make(map[models.LedgerKey]int)
	total := 0
	for _, in := range batch.Issues {
		issue := models.BricksIssue{
			PupilID:        in.PupilID,
			AcademicYearID: in.AcademicYearID,
			GradeID:        in.GradeID,
			Quantity:       in.Quantity,
			IssuedBy:       issuedBy,
		}
		issues = append(issues, issue)
		sums[issue.Key()] += in.Quantity
		total += in.Quantity
	}

	if err := s.checkYears(ctx, batch.Issues); err != nil {
		s.metrics.RecordLedgerBatch(ctx, "invalid", 0)
		return nil, err
	}

	keys := repository.SortedKeys(sums)
	unlock := s.locks.lock(keys)
	defer unlock()

	earned, err := s.ledger.EarnedPoints(ctx, keys)
	if err != nil {
		return nil, s.storeError(ctx, "read earned points", err)
	}
	existing, err := s.ledger.IssuedTotals(ctx, keys)
	if err != nil {
		return nil, s.storeError(ctx, "read issued totals", err)
	}

	if _, err := s.guard.ValidateBatch(issues, existing, earned); err != nil {
		s.reject(ctx, err)
		return nil, err
	}

	if err := s.ledger.Append(ctx, issues); err != nil {
		var ceiling *repository.CeilingExceededError
		if errors.As(err, &ceiling) {
			// another process raised the total between our read and the append
			cv := &apperrors.ConservationViolationError{
				PupilID:        ceiling.Key.PupilID,
				AcademicYearID: ceiling.Key.AcademicYearID,
				Issued:         ceiling.Issued + ceiling.Batch,
				Earned:         ceiling.Earned,
			}
			s.reject(ctx, cv)
			return nil, cv
		}
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordLedgerBatch(ctx, "invalid", 0)
			return nil, &apperrors.NotFoundError{Kind: "academic year", ID: keys[0].AcademicYearID}
		}
		return nil, s.storeError(ctx, "append bricks issues", err)
	}

	s.metrics.RecordLedgerBatch(ctx, "accepted", total)
	s.logger.Info().Int("issues", len(issues)).Int("bricks", total).Str("issued_by", issuedBy).Msg("bricks batch issued")
	return issues, nil
}

// Balance returns earned, issued and available bricks for a pupil in a year.
func (s *Service) Balance(ctx context.Context, key models.LedgerKey) (*Balance, error) {
	keys := []models.LedgerKey{key}
	earned, err := s.ledger.EarnedPoints(ctx, keys)
	if err != nil {
		return nil, s.storeError(ctx, "read earned points", err)
	}
	issued, err := s.ledger.IssuedTotals(ctx, keys)
	if err != nil {
		return nil, s.storeError(ctx, "read issued totals", err)
	}
	return &Balance{
		PupilID:        key.PupilID,
		AcademicYearID: key.AcademicYearID,
		Earned:         earned[key],
		Issued:         issued[key],
		Available:      earned[key] - issued[key],
	}, nil
}

// History returns the pupil's issues in a year, oldest first.
func (s *Service) History(ctx context.Context, key models.LedgerKey) ([]models.BricksIssue, error) {
	issues, err := s.ledger.ListIssues(ctx, key)
	if err != nil {
		return nil, s.storeError(ctx, "list bricks issues", err)
	}
	return issues, nil
}

// checkYears rejects issues whose academic year belongs to a different
// grade than the one the caller was authorized for.
func (s *Service) checkYears(ctx context.Context, issues []IssueInput) error {
	grades := make(map[string]string)
	for i, in := range issues {
		gradeID, ok := grades[in.AcademicYearID]
		if !ok {
			year, err := s.years.GetByID(ctx, in.AcademicYearID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return &apperrors.NotFoundError{Kind: "academic year", ID: in.AcademicYearID}
				}
				return s.storeError(ctx, "get academic year", err)
			}
			gradeID = year.GradeID
			grades[in.AcademicYearID] = gradeID
		}
		if gradeID != in.GradeID {
			return apperrors.NewValidationError(nil, apperrors.FieldError{
				Field: fmt.Sprintf("issues[%d].academic_year_id", i),
				Error: fmt.Sprintf("academic year %s belongs to another grade", in.AcademicYearID),
			})
		}
	}
	return nil
}

func (s *Service) reject(ctx context.Context, err error) {
	s.metrics.RecordLedgerBatch(ctx, "rejected", 0)
	var cv *apperrors.ConservationViolationError
	if errors.As(err, &cv) {
		s.logger.Warn().Str("pupil_id", cv.PupilID).Str("academic_year_id", cv.AcademicYearID).
			Int("issued", cv.Issued).Int("earned", cv.Earned).Msg("bricks batch rejected")
	}
}

func (s *Service) storeError(ctx context.Context, op string, err error) error {
	s.metrics.RecordLedgerBatch(ctx, "error", 0)
	s.logger.Error().Err(err).Str("op", op).Msg("ledger store failure")
	return apperrors.NewStoreError(op, err)
}
