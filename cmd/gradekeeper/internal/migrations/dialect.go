package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// execPostgres runs stmts only on PostgreSQL. SQLite cannot add constraints
// to an existing table.
func execPostgres(ctx context.Context, db *bun.DB, label string, stmts ...string) error {
	return execOn(ctx, db, dialect.PG, label, stmts...)
}

// execSQLite runs stmts only on SQLite.
func execSQLite(ctx context.Context, db *bun.DB, label string, stmts ...string) error {
	return execOn(ctx, db, dialect.SQLite, label, stmts...)
}

func execOn(ctx context.Context, db *bun.DB, name dialect.Name, label string, stmts ...string) error {
	if db.Dialect().Name() != name {
		return nil
	}
	fmt.Printf(" %s...", label)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	fmt.Println(" OK")
	return nil
}
