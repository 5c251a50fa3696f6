package repository

import (
	"context"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
)

// DefaultPageSize is used when a Page carries no limit.
const DefaultPageSize = 100

// Page selects one keyset page ordered by id. After is the last id of the previous page.
type Page struct {
	After string
	Limit int
}

func (p Page) limit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}

// GradeRepository exposes persistence operations for grades.
type GradeRepository interface {
	Create(ctx context.Context, grade *models.Grade) error
	GetByID(ctx context.Context, id string) (*models.Grade, error)
	List(ctx context.Context) ([]models.Grade, error)
}

// AcademicYearRepository exposes the academic year state machine's storage.
// Every transition that touches the active year claims or releases the
// grade_active_years pointer in the same transaction as the status change.
type AcademicYearRepository interface {
	// Create inserts the year. An ACTIVE year claims the grade's pointer and
	// fails with ErrActiveYearExists when it is taken.
	Create(ctx context.Context, year *models.AcademicYear) error
	GetByID(ctx context.Context, id string) (*models.AcademicYear, error)
	// GetActiveByGrade returns ErrNotFound when the grade has no active year.
	GetActiveByGrade(ctx context.Context, gradeID string) (*models.AcademicYear, error)
	// Activate moves a FINISHED year to ACTIVE. On ErrStatusMismatch the
	// returned year carries the status that was found.
	Activate(ctx context.Context, id string) (*models.AcademicYear, error)
	// Complete moves an ACTIVE year to FINISHED and releases the pointer.
	Complete(ctx context.Context, id string) (*models.AcademicYear, error)
	// Delete removes a year that owns no lessons, otherwise *DependentsError.
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status models.AcademicYearStatus, page Page) ([]models.AcademicYear, error)
	ListByGrade(ctx context.Context, gradeID string) ([]models.AcademicYear, error)
}

// AssignmentRepository exposes persistence operations for teacher-grade assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *models.TeacherGradeAssignment) error
	Delete(ctx context.Context, userID, gradeID string) error
	ListByUser(ctx context.Context, userID string) ([]models.TeacherGradeAssignment, error)
	ListByGrade(ctx context.Context, gradeID string) ([]models.TeacherGradeAssignment, error)
}

// LessonRepository exposes persistence operations for lessons and homework checks.
type LessonRepository interface {
	// Create inserts the lesson only while its year is the grade's active
	// year, otherwise ErrYearNotActive.
	Create(ctx context.Context, lesson *models.Lesson) error
	GetByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Lesson, error)
	CreateHomeworkCheck(ctx context.Context, check *models.HomeworkCheck) error
	ListHomeworkChecks(ctx context.Context, lessonID string) ([]models.HomeworkCheck, error)
}

// LedgerRepository exposes the bricks reward ledger.
type LedgerRepository interface {
	// EarnedPoints sums homework points per key.
	EarnedPoints(ctx context.Context, keys []models.LedgerKey) (map[models.LedgerKey]int, error)
	// IssuedTotals returns the running issued total per key, zero when absent.
	IssuedTotals(ctx context.Context, keys []models.LedgerKey) (map[models.LedgerKey]int, error)
	// Append writes the batch atomically. Each key's running total is raised
	// with a conditional update bounded by earned points; the first key that
	// would overshoot aborts the batch with *CeilingExceededError.
	Append(ctx context.Context, issues []models.BricksIssue) error
	ListIssues(ctx context.Context, key models.LedgerKey) ([]models.BricksIssue, error)
}
