// Package apperrors defines the typed errors returned by gradekeeper services.
//
// Business-rule violations are detected locally and returned as one of the
// types below. Handlers classify them with errors.As; nothing panics for an
// expected condition.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed input to an operation.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewValidationError wraps err with optional per-field details.
func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Error))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnauthorizedError means no caller identity could be resolved.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "authentication required"
	}
	return "authentication required: " + e.Reason
}

// ForbiddenError means the caller is known but lacks the role or grade access.
type ForbiddenError struct {
	UserID  string
	GradeID string
	Reason  string
}

func (e *ForbiddenError) Error() string {
	switch {
	case e.GradeID != "":
		return fmt.Sprintf("user %s may not access grade %s", e.UserID, e.GradeID)
	case e.Reason != "":
		return fmt.Sprintf("user %s is not allowed to %s", e.UserID, e.Reason)
	default:
		return fmt.Sprintf("user %s is not allowed to perform this operation", e.UserID)
	}
}

// NotFoundError reports a missing row.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports a uniqueness collision. For academic years it names
// the year that is already active for the grade.
type ConflictError struct {
	GradeID        string
	ActiveYearID   string
	ActiveYearName string
	Msg            string
}

func (e *ConflictError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.ActiveYearID == "" {
		return fmt.Sprintf("active year exists for grade %s", e.GradeID)
	}
	return fmt.Sprintf("active year exists for grade %s: %q (%s) must be completed first",
		e.GradeID, e.ActiveYearName, e.ActiveYearID)
}

// InvalidStateError reports a transition that is not valid from the current state.
type InvalidStateError struct {
	YearID  string
	Current string
	Target  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("academic year %s cannot move from %s to %s", e.YearID, e.Current, e.Target)
}

// HasDependentsError reports a deletion blocked by referencing rows.
type HasDependentsError struct {
	YearID  string
	Lessons int
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("academic year %s still owns %d lesson(s)", e.YearID, e.Lessons)
}

// ConservationViolationError reports a reward batch that would issue more
// bricks than the pupil earned in the academic year.
type ConservationViolationError struct {
	PupilID        string
	AcademicYearID string
	Issued         int // existing ledger total plus the rejected batch
	Earned         int
}

func (e *ConservationViolationError) Error() string {
	return fmt.Sprintf("pupil %s would receive %d bricks in academic year %s but earned only %d points",
		e.PupilID, e.Issued, e.AcademicYearID, e.Earned)
}

// StoreError wraps an I/O failure from the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err as a StoreError for operation op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUserFacing reports whether err carries a reason that may be shown to the caller as-is.
func IsUserFacing(err error) bool {
	var (
		ve *ValidationError
		ue *UnauthorizedError
		fe *ForbiddenError
		nf *NotFoundError
		ce *ConflictError
		ie *InvalidStateError
		he *HasDependentsError
		cv *ConservationViolationError
	)
	return errors.As(err, &ve) || errors.As(err, &ue) || errors.As(err, &fe) ||
		errors.As(err, &nf) || errors.As(err, &ce) || errors.As(err, &ie) ||
		errors.As(err, &he) || errors.As(err, &cv)
}
