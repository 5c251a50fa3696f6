package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesNameTheOffender(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "conflict names active year",
			err:  &ConflictError{GradeID: "g1", ActiveYearID: "y1", ActiveYearName: "2025/26"},
			want: `active year exists for grade g1: "2025/26" (y1) must be completed first`,
		},
		{
			name: "conservation names both totals",
			err:  &ConservationViolationError{PupilID: "p1", AcademicYearID: "y1", Issued: 25, Earned: 20},
			want: "pupil p1 would receive 25 bricks in academic year y1 but earned only 20 points",
		},
		{
			name: "dependents counts lessons",
			err:  &HasDependentsError{YearID: "y2", Lessons: 1},
			want: "academic year y2 still owns 1 lesson(s)",
		},
		{
			name: "invalid state",
			err:  &InvalidStateError{YearID: "y1", Current: "ACTIVE", Target: "ACTIVE"},
			want: "academic year y1 cannot move from ACTIVE to ACTIVE",
		},
		{
			name: "validation lists fields",
			err:  NewValidationError(nil, FieldError{Field: "name", Error: "this field is required"}),
			want: "invalid input: name: this field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	wrapped := fmt.Errorf("activate: %w", &ConflictError{GradeID: "g1"})
	assert.True(t, IsUserFacing(wrapped))
	assert.True(t, IsUserFacing(&ForbiddenError{UserID: "u1", GradeID: "g1"}))
	assert.False(t, IsUserFacing(NewStoreError("get year", errors.New("connection reset"))))
	assert.False(t, IsUserFacing(errors.New("boom")))
}

func TestStoreErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStoreError("list assignments", cause)
	assert.ErrorIs(t, err, cause)

	var se *StoreError
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &se))
	assert.Equal(t, "list assignments", se.Op)
}
