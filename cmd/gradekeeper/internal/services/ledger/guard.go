// Package ledger issues bricks rewards without letting a pupil's issued
// total pass the points earned in the academic year.
package ledger

import (
	"fmt"
	"math"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
)

// Guard checks reward batches against earned points. It performs no I/O:
// callers pass in the totals they read.
type Guard struct{}

// ValidateBatch groups issues by (pupil, academic year) and rejects the whole
// batch when any group's existing total plus its share of the batch exceeds
// earned. Missing map entries count as zero. On success issues is returned
// unmodified.
//
// Totals are never summed before comparing: each quantity is checked against
// the headroom left for its key, so oversized quantities cannot wrap around.
func (Guard) ValidateBatch(issues []models.BricksIssue, existing, earned map[models.LedgerKey]int) ([]models.BricksIssue, error) {
	sums := make(map[models.LedgerKey]int)
	over := make(map[models.LedgerKey]bool)
	for i := range issues {
		q := issues[i].Quantity
		if q <= 0 {
			return nil, apperrors.NewValidationError(nil, apperrors.FieldError{
				Field: fmt.Sprintf("issues[%d].quantity", i),
				Error: "quantity must be positive",
			})
		}
		key := issues[i].Key()
		if over[key] {
			continue
		}
		if q > headroom(existing[key], earned[key])-sums[key] {
			over[key] = true
			continue
		}
		sums[key] += q
	}

	if len(over) == 0 {
		return issues, nil
	}
	// first in sorted order so the reported offender does not depend on map order
	key := repository.SortedKeys(over)[0]
	return nil, &apperrors.ConservationViolationError{
		PupilID:        key.PupilID,
		AcademicYearID: key.AcademicYearID,
		Issued:         batchTotal(issues, key, existing[key]),
		Earned:         earned[key],
	}
}

// headroom is how many bricks may still be issued. A negative existing total
// is treated as corrupt and leaves no room.
func headroom(existing, earned int) int {
	if existing < 0 || existing >= earned {
		return 0
	}
	return earned - existing
}

// batchTotal reports existing plus every batch quantity for key, saturating
// at math.MaxInt.
func batchTotal(issues []models.BricksIssue, key models.LedgerKey, existing int) int {
	total := existing
	for i := range issues {
		if issues[i].Key() != key {
			continue
		}
		if issues[i].Quantity > math.MaxInt-total {
			return math.MaxInt
		}
		total += issues[i].Quantity
	}
	return total
}
