package repository

import (
	"context"
	"testing"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBunGradeRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.grade(t, "2B")
	a := f.grade(t, "2A")

	err := f.grades.Create(ctx, &models.Grade{Name: "2A"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = f.grades.Create(ctx, &models.Grade{Name: " "})
	assert.ErrorContains(t, err, "name is required")

	got, err := f.grades.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "2B", got.Name)
	assert.True(t, got.Active)

	grades, err := f.grades.List(ctx)
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, a.ID, grades[0].ID)

	_, err = f.grades.GetByID(ctx, "0199f0a0-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}
