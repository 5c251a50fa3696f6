package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MaxIssueQuantity bounds a single BricksIssue. Keeping every quantity small
// keeps batch and running totals far from int overflow.
const MaxIssueQuantity = 100000

// LedgerKey identifies one pupil's ledger within an academic year.
type LedgerKey struct {
	PupilID        string `json:"pupil_id"`
	AcademicYearID string `json:"academic_year_id"`
}

// BricksIssue is an append-only reward issuance.
type BricksIssue struct {
	bun.BaseModel `bun:"table:bricks_issues,alias:bi"`

	ID             string    `bun:"id,pk,type:uuid" json:"id"`
	PupilID        string    `bun:"pupil_id,notnull" json:"pupil_id"`
	AcademicYearID string    `bun:"academic_year_id,notnull,type:uuid" json:"academic_year_id"`
	GradeID        string    `bun:"grade_id,notnull,type:uuid" json:"grade_id"`
	Quantity       int       `bun:"quantity,notnull" json:"quantity"`
	IssuedAt       time.Time `bun:"issued_at,notnull,default:current_timestamp" json:"issued_at"`
	IssuedBy       string    `bun:"issued_by" json:"issued_by,omitempty"`
}

// Key returns the ledger the issue belongs to.
func (b *BricksIssue) Key() LedgerKey {
	return LedgerKey{PupilID: b.PupilID, AcademicYearID: b.AcademicYearID}
}

// BricksBalance is the running issued total for one ledger key.
type BricksBalance struct {
	bun.BaseModel `bun:"table:bricks_balances,alias:bb"`

	PupilID        string    `bun:"pupil_id,pk"`
	AcademicYearID string    `bun:"academic_year_id,pk,type:uuid"`
	IssuedTotal    int       `bun:"issued_total,notnull,default:0"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
