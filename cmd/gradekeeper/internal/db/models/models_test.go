package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcademicYear_ValidateForCreate(t *testing.T) {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	valid := func() *AcademicYear {
		return &AcademicYear{
			GradeID:   "g1",
			Name:      "2025/26",
			StartDate: start,
			EndDate:   start.AddDate(0, 10, 0),
			Status:    AcademicYearActive,
		}
	}

	tests := []struct {
		name    string
		mutate  func(y *AcademicYear)
		wantErr string
	}{
		{"valid", func(*AcademicYear) {}, ""},
		{"missing grade", func(y *AcademicYear) { y.GradeID = "" }, "grade_id is required"},
		{"blank name", func(y *AcademicYear) { y.Name = "  " }, "name is required"},
		{"unknown status", func(y *AcademicYear) { y.Status = "PAUSED" }, "status must be"},
		{"end before start", func(y *AcademicYear) { y.EndDate = start.AddDate(0, -1, 0) }, "end_date must be after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := valid()
			tt.mutate(y)
			err := y.ValidateForCreate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSumScores(t *testing.T) {
	assert.Equal(t, 0, SumScores(nil))
	assert.Equal(t, 9, SumScores(map[string]int{"accuracy": 4, "neatness": 2, "completeness": 3}))
}

func TestSumScores_SaturatesInsteadOfWrapping(t *testing.T) {
	assert.Equal(t, math.MaxInt, SumScores(map[string]int{"a": math.MaxInt, "b": 1}))
	assert.Equal(t, 5, SumScores(map[string]int{"a": 5, "b": -3}))
}
