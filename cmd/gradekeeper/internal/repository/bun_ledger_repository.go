package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/bunx"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/uptrace/bun"
)

// BunLedgerRepository persists the append-only bricks ledger and its running totals.
type BunLedgerRepository struct {
	db *bun.DB
}

// NewBunLedgerRepository constructs a repository backed by Bun.
func NewBunLedgerRepository(db *bun.DB) *BunLedgerRepository {
	return &BunLedgerRepository{db: db}
}

// EarnedPoints sums homework points over the lessons of each key's academic year.
func (r *BunLedgerRepository) EarnedPoints(ctx context.Context, keys []models.LedgerKey) (map[models.LedgerKey]int, error) {
	out := make(map[models.LedgerKey]int, len(keys))
	for _, key := range keys {
		earned, err := earnedPoints(ctx, r.db, key)
		if err != nil {
			return nil, err
		}
		out[key] = earned
	}
	return out, nil
}

// IssuedTotals reads the running totals; keys with no issues map to zero.
func (r *BunLedgerRepository) IssuedTotals(ctx context.Context, keys []models.LedgerKey) (map[models.LedgerKey]int, error) {
	out := make(map[models.LedgerKey]int, len(keys))
	for _, key := range keys {
		issued, err := issuedTotal(ctx, r.db, key)
		if err != nil {
			return nil, err
		}
		out[key] = issued
	}
	return out, nil
}

// Append writes the batch in one transaction. Keys are processed in sorted
// order so concurrent batches lock balance rows consistently.
func (r *BunLedgerRepository) Append(ctx context.Context, issues []models.BricksIssue) error {
	if len(issues) == 0 {
		return nil
	}

	sums := make(map[models.LedgerKey]int)
	now := time.Now().UTC()
	for i := range issues {
		if issues[i].ID == "" {
			issues[i].ID = bunx.NewUUIDv7()
		}
		if issues[i].IssuedAt.IsZero() {
			issues[i].IssuedAt = now
		}
		if q := issues[i].Quantity; q <= 0 || q > models.MaxIssueQuantity {
			return fmt.Errorf("issue %d quantity %d: %w", i, q, ErrInvalidQuantity)
		}
		sums[issues[i].Key()] += issues[i].Quantity
	}
	keys := SortedKeys(sums)

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, key := range keys {
			if err := raiseIssuedTotal(ctx, tx, key, sums[key], now); err != nil {
				return err
			}
		}
		if _, err := tx.NewInsert().Model(&issues).Exec(ctx); err != nil {
			if bunx.IsForeignKeyViolation(err) {
				return fmt.Errorf("academic year: %w", ErrNotFound)
			}
			return fmt.Errorf("insert bricks issues: %w", err)
		}
		return nil
	})
}

// ListIssues returns a ledger's entries, oldest first.
func (r *BunLedgerRepository) ListIssues(ctx context.Context, key models.LedgerKey) ([]models.BricksIssue, error) {
	var issues []models.BricksIssue
	err := r.db.NewSelect().
		Model(&issues).
		Where("bi.pupil_id = ?", key.PupilID).
		Where("bi.academic_year_id = ?", key.AcademicYearID).
		Order("bi.issued_at ASC", "bi.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bricks issues: %w", err)
	}
	if issues == nil {
		issues = []models.BricksIssue{}
	}
	return issues, nil
}

// raiseIssuedTotal adds batch to the key's running total only while the
// result stays within earned points.
func raiseIssuedTotal(ctx context.Context, tx bun.Tx, key models.LedgerKey, batch int, now time.Time) error {
	earned, err := earnedPoints(ctx, tx, key)
	if err != nil {
		return err
	}

	_, err = tx.NewInsert().
		Model(&models.BricksBalance{PupilID: key.PupilID, AcademicYearID: key.AcademicYearID, UpdatedAt: now}).
		On("CONFLICT (pupil_id, academic_year_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if bunx.IsForeignKeyViolation(err) {
			return fmt.Errorf("academic year %s: %w", key.AcademicYearID, ErrNotFound)
		}
		return fmt.Errorf("ensure bricks balance: %w", err)
	}

	res, err := tx.NewUpdate().
		Model((*models.BricksBalance)(nil)).
		Set("issued_total = issued_total + ?", batch).
		Set("updated_at = ?", now).
		Where("pupil_id = ?", key.PupilID).
		Where("academic_year_id = ?", key.AcademicYearID).
		Where("issued_total >= 0").
		Where("issued_total <= ?", earned-batch).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("raise bricks balance: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		issued, err := issuedTotal(ctx, tx, key)
		if err != nil {
			return err
		}
		return &CeilingExceededError{Key: key, Issued: issued, Batch: batch, Earned: earned}
	}
	return nil
}

func earnedPoints(ctx context.Context, db bun.IDB, key models.LedgerKey) (int, error) {
	var earned int
	err := db.NewSelect().
		TableExpr("homework_checks AS hc").
		Join("JOIN lessons AS l ON l.id = hc.lesson_id").
		ColumnExpr("COALESCE(SUM(hc.points), 0)").
		Where("hc.pupil_id = ?", key.PupilID).
		Where("l.academic_year_id = ?", key.AcademicYearID).
		Scan(ctx, &earned)
	if err != nil {
		return 0, fmt.Errorf("sum earned points: %w", err)
	}
	return earned, nil
}

func issuedTotal(ctx context.Context, db bun.IDB, key models.LedgerKey) (int, error) {
	var totals []int
	err := db.NewSelect().
		Model((*models.BricksBalance)(nil)).
		Column("issued_total").
		Where("pupil_id = ?", key.PupilID).
		Where("academic_year_id = ?", key.AcademicYearID).
		Scan(ctx, &totals)
	if err != nil {
		return 0, fmt.Errorf("query bricks balance: %w", err)
	}
	if len(totals) == 0 {
		return 0, nil
	}
	return totals[0], nil
}

// SortedKeys returns the map's keys ordered by pupil then academic year.
func SortedKeys[V any](m map[models.LedgerKey]V) []models.LedgerKey {
	keys := make([]models.LedgerKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PupilID != keys[j].PupilID {
			return keys[i].PupilID < keys[j].PupilID
		}
		return keys[i].AcademicYearID < keys[j].AcademicYearID
	})
	return keys
}
