package lesson

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/dbtest"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var yearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	grades *repository.BunGradeRepository
	years  *repository.BunAcademicYearRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	years := repository.NewBunAcademicYearRepository(db)
	return &fixture{
		svc:    NewService(repository.NewBunLessonRepository(db), years, zerolog.Nop()),
		grades: repository.NewBunGradeRepository(db),
		years:  years,
	}
}

func (f *fixture) grade(t *testing.T, name string) string {
	t.Helper()
	g := &models.Grade{Name: name, Active: true}
	require.NoError(t, f.grades.Create(context.Background(), g))
	return g.ID
}

func (f *fixture) year(t *testing.T, gradeID, name string, status models.AcademicYearStatus) *models.AcademicYear {
	t.Helper()
	y := &models.AcademicYear{GradeID: gradeID, Name: name, StartDate: yearStart, EndDate: yearStart.AddDate(0, 10, 0), Status: status}
	require.NoError(t, f.years.Create(context.Background(), y))
	return y
}

func lessonIn(y *models.AcademicYear) CreateInput {
	return CreateInput{GradeID: y.GradeID, AcademicYearID: y.ID, Topic: "Fractions", HeldOn: yearStart.AddDate(0, 0, 3), CreatedBy: "t1"}
}

func TestCreateLesson_OnlyIntoActiveYearOfSameGrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1, g2 := f.grade(t, "5A"), f.grade(t, "5B")
	active := f.year(t, g1, "2025/26", models.AcademicYearActive)
	finished := f.year(t, g1, "2024/25", models.AcademicYearFinished)
	f.year(t, g2, "2025/26", models.AcademicYearActive)

	l, err := f.svc.CreateLesson(ctx, lessonIn(active))
	require.NoError(t, err)
	assert.Equal(t, "t1", l.CreatedBy)

	_, err = f.svc.CreateLesson(ctx, lessonIn(finished))
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Error(), "FINISHED")

	wrongGrade := lessonIn(active)
	wrongGrade.GradeID = g2
	_, err = f.svc.CreateLesson(ctx, wrongGrade)
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "academic_year_id", ve.Fields[0].Field)

	missing := lessonIn(active)
	missing.AcademicYearID = "0199a0a0-0000-7000-8000-000000000000"
	_, err = f.svc.CreateLesson(ctx, missing)
	var nf *apperrors.NotFoundError
	require.ErrorAs(t, err, &nf)

	lessons, err := f.svc.ListLessons(ctx, active.ID)
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

func TestCreateLesson_AfterYearCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1 := f.grade(t, "5A")
	y := f.year(t, g1, "2025/26", models.AcademicYearActive)

	_, err := f.years.Complete(ctx, y.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateLesson(ctx, lessonIn(y))
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestRecordHomeworkCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1, g2 := f.grade(t, "5A"), f.grade(t, "5B")
	y := f.year(t, g1, "2025/26", models.AcademicYearActive)
	l, err := f.svc.CreateLesson(ctx, lessonIn(y))
	require.NoError(t, err)

	check, err := f.svc.RecordHomeworkCheck(ctx, HomeworkInput{
		LessonID: l.ID,
		PupilID:  "p1",
		GradeID:  g1,
		Scores:   map[string]int{"accuracy": 4, "neatness": 3, "completeness": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, check.Points)

	_, err = f.svc.RecordHomeworkCheck(ctx, HomeworkInput{LessonID: l.ID, PupilID: "p1", GradeID: g1, Scores: map[string]int{"accuracy": 1}})
	var conflict *apperrors.ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = f.svc.RecordHomeworkCheck(ctx, HomeworkInput{LessonID: l.ID, PupilID: "p2", GradeID: g2, Scores: map[string]int{"accuracy": 1}})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.RecordHomeworkCheck(ctx, HomeworkInput{LessonID: l.ID, PupilID: "p2", GradeID: g1, Scores: map[string]int{"accuracy": -1}})
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.RecordHomeworkCheck(ctx, HomeworkInput{LessonID: l.ID, PupilID: "p2", GradeID: g1})
	require.ErrorAs(t, err, &ve)

	checks, err := f.svc.ListHomeworkChecks(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, 12, checks[0].Points)
}

func TestRecordHomeworkCheck_BoundsScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.grade(t, "5A")
	y := f.year(t, g, "2025/26", models.AcademicYearActive)
	l, err := f.svc.CreateLesson(ctx, lessonIn(y))
	require.NoError(t, err)

	tooMany := make(map[string]int, models.MaxScoreCategories+1)
	for i := 0; i <= models.MaxScoreCategories; i++ {
		tooMany[fmt.Sprintf("c%d", i)] = 1
	}

	tests := []struct {
		name   string
		scores map[string]int
	}{
		{"overflowing pair", map[string]int{"a": math.MaxInt, "b": 1}},
		{"above category max", map[string]int{"a": models.MaxCategoryScore + 1}},
		{"too many categories", tooMany},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordHomeworkCheck(ctx, HomeworkInput{LessonID: l.ID, PupilID: "p1", GradeID: g, Scores: tt.scores})
			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}

	checks, err := f.svc.ListHomeworkChecks(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, checks)
}
