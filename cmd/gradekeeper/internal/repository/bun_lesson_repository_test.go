package repository

import (
	"context"
	"testing"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBunLessonRepository_CreateRequiresActiveYear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.grade(t, "3A")
	other := f.grade(t, "3B")
	active := f.year(t, g.ID, "2025/26", models.AcademicYearActive)
	finished := f.year(t, g.ID, "2024/25", models.AcademicYearFinished)

	l := f.lesson(t, active)
	got, err := f.lessons.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", got.Topic)

	err = f.lessons.Create(ctx, &models.Lesson{GradeID: g.ID, AcademicYearID: finished.ID, Topic: "Decimals", HeldOn: yearStart})
	assert.ErrorIs(t, err, ErrYearNotActive)

	err = f.lessons.Create(ctx, &models.Lesson{GradeID: other.ID, AcademicYearID: active.ID, Topic: "Decimals", HeldOn: yearStart})
	assert.ErrorIs(t, err, ErrYearNotActive, "year must belong to the lesson's grade")

	_, err = f.years.Complete(ctx, active.ID)
	require.NoError(t, err)
	err = f.lessons.Create(ctx, &models.Lesson{GradeID: g.ID, AcademicYearID: active.ID, Topic: "Decimals", HeldOn: yearStart})
	assert.ErrorIs(t, err, ErrYearNotActive)

	n, err := countLessons(ctx, f.db, active.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = f.years.Delete(ctx, active.ID)
	var deps *DependentsError
	require.ErrorAs(t, err, &deps)
	assert.Equal(t, 1, deps.Lessons)
}

func TestBunLessonRepository_HomeworkChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.grade(t, "4A")
	y := f.year(t, g.ID, "2025/26", models.AcademicYearActive)
	l := f.lesson(t, y)

	check := &models.HomeworkCheck{
		LessonID: l.ID, PupilID: "p1", GradeID: g.ID,
		Scores: map[string]int{"accuracy": 3, "neatness": 2},
		Points: 5,
	}
	require.NoError(t, f.lessons.CreateHomeworkCheck(ctx, check))

	dup := &models.HomeworkCheck{LessonID: l.ID, PupilID: "p1", GradeID: g.ID, Points: 1}
	assert.ErrorIs(t, f.lessons.CreateHomeworkCheck(ctx, dup), ErrAlreadyExists)

	checks, err := f.lessons.ListHomeworkChecks(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, map[string]int{"accuracy": 3, "neatness": 2}, checks[0].Scores)
	assert.Equal(t, 5, checks[0].Points)

	lessons, err := f.lessons.ListByAcademicYear(ctx, y.ID)
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}
