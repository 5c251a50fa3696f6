package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251017000002, down_20251017000002)
}

// up_20251017000002 bounds ledger values in the database: positive capped
// quantities, non-negative running totals and homework points.
func up_20251017000002(ctx context.Context, db *bun.DB) error {
	if err := execPostgres(ctx, db, "[up] adding ledger bounds",
		`ALTER TABLE bricks_issues ADD CONSTRAINT chk_bricks_issues_quantity_max CHECK (quantity <= 100000)`,
		`ALTER TABLE bricks_balances ADD CONSTRAINT chk_bricks_balances_issued CHECK (issued_total >= 0)`,
		`ALTER TABLE homework_checks ADD CONSTRAINT chk_homework_checks_points CHECK (points >= 0)`,
	); err != nil {
		return err
	}
	return execSQLite(ctx, db, "[up] adding ledger bound triggers",
		`CREATE TRIGGER IF NOT EXISTS trg_bricks_issues_quantity
		BEFORE INSERT ON bricks_issues
		WHEN NEW.quantity <= 0 OR NEW.quantity > 100000
		BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: bricks_issues.quantity'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_bricks_balances_issued_insert
		BEFORE INSERT ON bricks_balances
		WHEN NEW.issued_total < 0
		BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: bricks_balances.issued_total'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_bricks_balances_issued_update
		BEFORE UPDATE OF issued_total ON bricks_balances
		WHEN NEW.issued_total < 0
		BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: bricks_balances.issued_total'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_homework_checks_points
		BEFORE INSERT ON homework_checks
		WHEN NEW.points < 0
		BEGIN SELECT RAISE(ABORT, 'CHECK constraint failed: homework_checks.points'); END`,
	)
}

func down_20251017000002(ctx context.Context, db *bun.DB) error {
	if err := execPostgres(ctx, db, "[down] dropping ledger bounds",
		`ALTER TABLE bricks_issues DROP CONSTRAINT IF EXISTS chk_bricks_issues_quantity_max`,
		`ALTER TABLE bricks_balances DROP CONSTRAINT IF EXISTS chk_bricks_balances_issued`,
		`ALTER TABLE homework_checks DROP CONSTRAINT IF EXISTS chk_homework_checks_points`,
	); err != nil {
		return err
	}
	return execSQLite(ctx, db, "[down] dropping ledger bound triggers",
		`DROP TRIGGER IF EXISTS trg_bricks_issues_quantity`,
		`DROP TRIGGER IF EXISTS trg_bricks_balances_issued_insert`,
		`DROP TRIGGER IF EXISTS trg_bricks_balances_issued_update`,
		`DROP TRIGGER IF EXISTS trg_homework_checks_points`,
	)
}
