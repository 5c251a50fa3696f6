package repository

import (
	"errors"
	"fmt"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
)

var (
	// ErrNotFound is returned when a row (or a referenced parent row) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on a unique key collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrActiveYearExists is returned when a grade's active year pointer is taken.
	ErrActiveYearExists = errors.New("grade already has an active academic year")
	// ErrStatusMismatch is returned when a conditional status update matched no row.
	ErrStatusMismatch = errors.New("academic year is not in the expected status")
	// ErrYearNotActive is returned when a lesson targets a year that is not the grade's active year.
	ErrYearNotActive = errors.New("academic year is not active for the grade")
	// ErrInvalidQuantity is returned when a bricks issue quantity is outside (0, MaxIssueQuantity].
	ErrInvalidQuantity = errors.New("bricks quantity out of range")
)

// DependentsError blocks deleting an academic year that still owns lessons.
type DependentsError struct {
	Lessons int
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("academic year owns %d lesson(s)", e.Lessons)
}

// CeilingExceededError reports the ledger key whose running total would pass earned points.
type CeilingExceededError struct {
	Key    models.LedgerKey
	Issued int // running total before the batch
	Batch  int
	Earned int
}

func (e *CeilingExceededError) Error() string {
	return fmt.Sprintf("ledger %s/%s: %d issued + %d requested exceeds %d earned",
		e.Key.PupilID, e.Key.AcademicYearID, e.Issued, e.Batch, e.Earned)
}
