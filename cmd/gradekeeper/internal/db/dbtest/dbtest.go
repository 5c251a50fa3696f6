// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/bunx"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// New returns a fresh, fully migrated in-memory database closed at test cleanup.
func New(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)
	return db
}
