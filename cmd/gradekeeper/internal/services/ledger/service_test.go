package ledger

import (
	"context"
	"math"
	"sync"
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
	svc     *Service
	gradeID string
	year    *models.AcademicYear
	grades  *repository.BunGradeRepository
	years   *repository.BunAcademicYearRepository
	lessons *repository.BunLessonRepository
	lesson  *models.Lesson
}

// newFixture creates grade 5A with an active year and one lesson.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.New(t)

	f := &fixture{
		grades:  repository.NewBunGradeRepository(db),
		years:   repository.NewBunAcademicYearRepository(db),
		lessons: repository.NewBunLessonRepository(db),
	}
	f.svc = NewService(repository.NewBunLedgerRepository(db), f.years, zerolog.Nop())

	g := &models.Grade{Name: "5A", Active: true}
	require.NoError(t, f.grades.Create(ctx, g))
	f.gradeID = g.ID

	f.year = &models.AcademicYear{GradeID: g.ID, Name: "2025/26", StartDate: yearStart, EndDate: yearStart.AddDate(0, 10, 0), Status: models.AcademicYearActive}
	require.NoError(t, f.years.Create(ctx, f.year))

	f.lesson = &models.Lesson{GradeID: g.ID, AcademicYearID: f.year.ID, Topic: "Fractions", HeldOn: yearStart}
	require.NoError(t, f.lessons.Create(ctx, f.lesson))
	return f
}

func (f *fixture) earn(t *testing.T, pupilID string, points int) {
	t.Helper()
	require.NoError(t, f.lessons.CreateHomeworkCheck(context.Background(), &models.HomeworkCheck{
		LessonID: f.lesson.ID,
		PupilID:  pupilID,
		GradeID:  f.gradeID,
		Scores:   map[string]int{"total": points},
		Points:   points,
	}))
}

func (f *fixture) line(pupilID string, qty int) IssueInput {
	return IssueInput{PupilID: pupilID, AcademicYearID: f.year.ID, GradeID: f.gradeID, Quantity: qty}
}

func (f *fixture) key(pupilID string) models.LedgerKey {
	return models.LedgerKey{PupilID: pupilID, AcademicYearID: f.year.ID}
}

func TestIssue_CeilingAcrossBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, "p1", 20)

	issued, err := f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 15)}}, "t1")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.NotEmpty(t, issued[0].ID)
	assert.Equal(t, "t1", issued[0].IssuedBy)

	_, err = f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 10)}}, "t1")
	var cv *apperrors.ConservationViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, 25, cv.Issued)
	assert.Equal(t, 20, cv.Earned)

	bal, err := f.svc.Balance(ctx, f.key("p1"))
	require.NoError(t, err)
	assert.Equal(t, Balance{PupilID: "p1", AcademicYearID: f.year.ID, Earned: 20, Issued: 15, Available: 5}, *bal)
}

func TestIssue_RejectedBatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, "p1", 10)
	f.earn(t, "p2", 3)

	_, err := f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 5), f.line("p2", 4)}}, "t1")
	var cv *apperrors.ConservationViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "p2", cv.PupilID)

	for _, p := range []string{"p1", "p2"} {
		history, err := f.svc.History(ctx, f.key(p))
		require.NoError(t, err)
		assert.Empty(t, history)
		bal, err := f.svc.Balance(ctx, f.key(p))
		require.NoError(t, err)
		assert.Zero(t, bal.Issued)
	}
}

func TestIssue_OversizedQuantityCannotCorruptBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, "p1", 20)

	_, err := f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", math.MaxInt), f.line("p1", 1)}}, "t1")
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "quantity", ve.Fields[0].Field)

	bal, err := f.svc.Balance(ctx, f.key("p1"))
	require.NoError(t, err)
	assert.Equal(t, Balance{PupilID: "p1", AcademicYearID: f.year.ID, Earned: 20, Issued: 0, Available: 20}, *bal)

	_, err = f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 1000)}}, "t1")
	var cv *apperrors.ConservationViolationError
	require.ErrorAs(t, err, &cv)

	issued, err := f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 20)}}, "t1")
	require.NoError(t, err)
	assert.Len(t, issued, 1)
}

func TestIssue_InputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, "p1", 10)

	_, err := f.svc.Issue(ctx, IssueBatch{}, "t1")
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 0)}}, "t1")
	require.ErrorAs(t, err, &ve)

	other := &models.Grade{Name: "6A", Active: true}
	require.NoError(t, f.grades.Create(ctx, other))
	wrongGrade := f.line("p1", 1)
	wrongGrade.GradeID = other.ID
	_, err = f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{wrongGrade}}, "t1")
	require.ErrorAs(t, err, &ve)

	missingYear := f.line("p1", 1)
	missingYear.AcademicYearID = "0199a0a0-0000-7000-8000-000000000000"
	_, err = f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{missingYear}}, "t1")
	var nf *apperrors.NotFoundError
	require.ErrorAs(t, err, &nf)
}

// TestIssue_ConcurrentBatchesNeverOvershoot races batches for one pupil and
// checks exactly as many succeed as the earned points allow.
func TestIssue_ConcurrentBatchesNeverOvershoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.earn(t, "p1", 20)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Issue(ctx, IssueBatch{Issues: []IssueInput{f.line("p1", 5)}}, "t1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			var cv *apperrors.ConservationViolationError
			if assert.ErrorAs(t, err, &cv) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, accepted)
	assert.Equal(t, 6, rejected)

	bal, err := f.svc.Balance(ctx, f.key("p1"))
	require.NoError(t, err)
	assert.Equal(t, 20, bal.Issued)
	assert.Zero(t, bal.Available)
}

func TestIssueBatch_GradeIDs(t *testing.T) {
	b := IssueBatch{Issues: []IssueInput{{GradeID: "g2"}, {GradeID: "g1"}, {GradeID: "g2"}}}
	assert.Equal(t, []string{"g2", "g1"}, b.GradeIDs())
}
