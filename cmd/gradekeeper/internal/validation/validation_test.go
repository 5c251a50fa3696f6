package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type yearInput struct {
	GradeID   string    `json:"grade_id" validate:"required"`
	Name      string    `json:"name" validate:"notblank"`
	Status    string    `json:"status" validate:"oneof=ACTIVE FINISHED"`
	StartDate time.Time `json:"start_date" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=0"`
}

func TestValidator_Struct(t *testing.T) {
	v := New()

	ok := yearInput{GradeID: "g1", Name: "2025/26", Status: "ACTIVE", StartDate: time.Now()}
	assert.NoError(t, v.Struct(ok))

	bad := yearInput{Name: "   ", Status: "PAUSED", Quantity: -1}
	err := v.Struct(bad)
	require.Error(t, err)

	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))

	byField := map[string]string{}
	for _, f := range ve.Fields {
		byField[f.Field] = f.Error
	}
	assert.Equal(t, "this field is required", byField["grade_id"])
	assert.Equal(t, "name must not be blank", byField["name"])
	assert.Contains(t, byField["status"], "ACTIVE FINISHED")
	assert.Equal(t, "this field is required", byField["start_date"])
	assert.Contains(t, byField["quantity"], "0 or greater")
}
