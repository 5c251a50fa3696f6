// Package lesson records lessons and homework checks. Lessons may only be
// added to the grade's ACTIVE academic year.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/validation"
)

// CreateInput describes a lesson held in a grade.
type CreateInput struct {
	GradeID        string    `json:"grade_id" validate:"required"`
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Topic          string    `json:"topic" validate:"notblank,max=256"`
	HeldOn         time.Time `json:"held_on" validate:"required"`
	CreatedBy      string    `json:"-"`
}

// HomeworkInput records one pupil's homework scores for a lesson.
type HomeworkInput struct {
	LessonID  string         `json:"lesson_id" validate:"required"`
	PupilID   string         `json:"pupil_id" validate:"notblank"`
	GradeID   string         `json:"grade_id" validate:"required"`
	Scores    map[string]int `json:"scores" validate:"required,min=1,max=64,dive,keys,notblank,endkeys,gte=0,lte=1000"`
	CheckedBy string         `json:"-"`
}

// Service handles lesson operations.
type Service struct {
	lessons  repository.LessonRepository
	years    repository.AcademicYearRepository
	validate *validation.Validator
	logger   zerolog.Logger
}

// NewService constructs a new Service instance.
func NewService(lessons repository.LessonRepository, years repository.AcademicYearRepository, logger zerolog.Logger) *Service {
	return &Service{
		lessons:  lessons,
		years:    years,
		validate: validation.New(),
		logger:   logger,
	}
}

// CreateLesson inserts a lesson into its grade's active year.
func (s *Service) CreateLesson(ctx context.Context, in CreateInput) (*models.Lesson, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	year, err := s.years.GetByID(ctx, in.AcademicYearID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "academic year", ID: in.AcademicYearID}
		}
		return nil, apperrors.NewStoreError("get academic year", err)
	}
	if year.GradeID != in.GradeID {
		return nil, apperrors.NewValidationError(nil, apperrors.FieldError{
			Field: "academic_year_id",
			Error: fmt.Sprintf("academic year %s belongs to another grade", year.ID),
		})
	}
	if year.Status != models.AcademicYearActive {
		return nil, notActive(year)
	}

	l := &models.Lesson{
		GradeID:        in.GradeID,
		AcademicYearID: in.AcademicYearID,
		Topic:          in.Topic,
		HeldOn:         in.HeldOn,
		CreatedBy:      in.CreatedBy,
	}
	if err := s.lessons.Create(ctx, l); err != nil {
		if errors.Is(err, repository.ErrYearNotActive) {
			// completed between the read above and the insert
			year.Status = models.AcademicYearFinished
			return nil, notActive(year)
		}
		s.logger.Error().Err(err).Str("grade_id", in.GradeID).Str("academic_year_id", in.AcademicYearID).Msg("failed to create lesson")
		return nil, apperrors.NewStoreError("create lesson", err)
	}

	s.logger.Info().Str("lesson_id", l.ID).Str("grade_id", l.GradeID).Str("academic_year_id", l.AcademicYearID).Msg("lesson created")
	return l, nil
}

// RecordHomeworkCheck stores a pupil's scores for a lesson. The points the
// check contributes to the ledger ceiling are the sum of its scores.
func (s *Service) RecordHomeworkCheck(ctx context.Context, in HomeworkInput) (*models.HomeworkCheck, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	l, err := s.GetLesson(ctx, in.LessonID)
	if err != nil {
		return nil, err
	}
	if l.GradeID != in.GradeID {
		return nil, apperrors.NewValidationError(nil, apperrors.FieldError{
			Field: "lesson_id",
			Error: fmt.Sprintf("lesson %s belongs to another grade", l.ID),
		})
	}

	check := &models.HomeworkCheck{
		LessonID:  in.LessonID,
		PupilID:   in.PupilID,
		GradeID:   in.GradeID,
		Scores:    in.Scores,
		Points:    models.SumScores(in.Scores),
		CheckedBy: in.CheckedBy,
	}
	if err := s.lessons.CreateHomeworkCheck(ctx, check); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, &apperrors.ConflictError{GradeID: in.GradeID, Msg: fmt.Sprintf("pupil %s already has a homework check for lesson %s", in.PupilID, in.LessonID)}
		case errors.Is(err, repository.ErrNotFound):
			return nil, &apperrors.NotFoundError{Kind: "lesson", ID: in.LessonID}
		}
		s.logger.Error().Err(err).Str("lesson_id", in.LessonID).Str("pupil_id", in.PupilID).Msg("failed to record homework check")
		return nil, apperrors.NewStoreError("record homework check", err)
	}

	s.logger.Debug().Str("lesson_id", in.LessonID).Str("pupil_id", in.PupilID).Int("points", check.Points).Msg("homework check recorded")
	return check, nil
}

// GetLesson returns one lesson.
func (s *Service) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	l, err := s.lessons.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "lesson", ID: id}
		}
		return nil, apperrors.NewStoreError("get lesson", err)
	}
	return l, nil
}

// ListLessons returns the lessons of an academic year.
func (s *Service) ListLessons(ctx context.Context, academicYearID string) ([]models.Lesson, error) {
	out, err := s.lessons.ListByAcademicYear(ctx, academicYearID)
	if err != nil {
		return nil, apperrors.NewStoreError("list lessons", err)
	}
	return out, nil
}

// ListHomeworkChecks returns the checks recorded for a lesson.
func (s *Service) ListHomeworkChecks(ctx context.Context, lessonID string) ([]models.HomeworkCheck, error) {
	out, err := s.lessons.ListHomeworkChecks(ctx, lessonID)
	if err != nil {
		return nil, apperrors.NewStoreError("list homework checks", err)
	}
	return out, nil
}

func notActive(year *models.AcademicYear) error {
	return &apperrors.ConflictError{
		GradeID: year.GradeID,
		Msg:     fmt.Sprintf("academic year %s is %s; lessons can only be added to the active year", year.ID, year.Status),
	}
}
