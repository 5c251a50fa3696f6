package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251017000001, down_20251017000001)
}

// up_20251017000001 adds a partial unique index so the database itself rejects
// a second ACTIVE year for a grade, behind the grade_active_years pointer.
func up_20251017000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating uq_academic_years_one_active...")
	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_academic_years_one_active ON academic_years(grade_id) WHERE status = 'ACTIVE'`)
	if err != nil {
		return fmt.Errorf("failed to create active year index: %w", err)
	}
	fmt.Println(" OK")
	return nil
}

func down_20251017000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping uq_academic_years_one_active...")
	if _, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS uq_academic_years_one_active`); err != nil {
		return fmt.Errorf("failed to drop active year index: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
