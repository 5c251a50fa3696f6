package access

import (
	"context"
	"sort"
	"time"
)

// GradeSet is a set of grade ids.
type GradeSet map[string]struct{}

// NewGradeSet builds a set, dropping duplicates.
func NewGradeSet(ids ...string) GradeSet {
	s := make(GradeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s GradeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids in sorted order.
func (s GradeSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Entry is one user's cached grade set. It is only valid for UserID.
type Entry struct {
	UserID   string    `json:"user_id"`
	GradeIDs []string  `json:"grade_ids"`
	CachedAt time.Time `json:"cached_at"`
}

// EntryStore holds at most one live entry per user.
//
// Get returns (nil, false, nil) on a miss. Implementations may hold a single
// entry regardless of key (the cookie store does), so callers must compare
// Entry.UserID with the requested user.
type EntryStore interface {
	Get(ctx context.Context, userID string) (*Entry, bool, error)
	Set(ctx context.Context, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}
