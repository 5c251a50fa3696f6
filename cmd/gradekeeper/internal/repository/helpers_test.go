package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/dbtest"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var yearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db          *bun.DB
	grades      *BunGradeRepository
	years       *BunAcademicYearRepository
	assignments *BunAssignmentRepository
	lessons     *BunLessonRepository
	ledger      *BunLedgerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	return &fixture{
		db:          db,
		grades:      NewBunGradeRepository(db),
		years:       NewBunAcademicYearRepository(db),
		assignments: NewBunAssignmentRepository(db),
		lessons:     NewBunLessonRepository(db),
		ledger:      NewBunLedgerRepository(db),
	}
}

func (f *fixture) grade(t *testing.T, name string) *models.Grade {
	t.Helper()
	g := &models.Grade{Name: name, Active: true}
	require.NoError(t, f.grades.Create(context.Background(), g))
	return g
}

func (f *fixture) year(t *testing.T, gradeID, name string, status models.AcademicYearStatus) *models.AcademicYear {
	t.Helper()
	y := &models.AcademicYear{
		GradeID:   gradeID,
		Name:      name,
		StartDate: yearStart,
		EndDate:   yearStart.AddDate(0, 10, 0),
		Status:    status,
	}
	require.NoError(t, f.years.Create(context.Background(), y))
	return y
}

func (f *fixture) lesson(t *testing.T, y *models.AcademicYear) *models.Lesson {
	t.Helper()
	l := &models.Lesson{GradeID: y.GradeID, AcademicYearID: y.ID, Topic: "Fractions", HeldOn: yearStart.AddDate(0, 0, 7)}
	require.NoError(t, f.lessons.Create(context.Background(), l))
	return l
}

func (f *fixture) check(t *testing.T, l *models.Lesson, pupilID string, points int) {
	t.Helper()
	c := &models.HomeworkCheck{
		LessonID: l.ID,
		PupilID:  pupilID,
		GradeID:  l.GradeID,
		Scores:   map[string]int{"total": points},
		Points:   points,
	}
	require.NoError(t, f.lessons.CreateHomeworkCheck(context.Background(), c))
}
