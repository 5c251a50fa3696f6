// Package access maintains the teacher to grade index used to authorize
// teachers, as a TTL-bounded cache-aside over the assignment repository.
package access

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL bounds how stale a cached grade set may get.
const DefaultTTL = 24 * time.Hour

// Invalidation reasons recorded in metrics and logs.
const (
	ReasonSignOut    = "sign_out"
	ReasonAssignment = "assignment"
	ReasonMismatch   = "mismatch"
)

// AssignmentLister is the authority the cache reads through to.
type AssignmentLister interface {
	ListByUser(ctx context.Context, userID string) ([]models.TeacherGradeAssignment, error)
}

// Cache answers "which grades may this teacher access".
//
// A store failure on read is treated as a miss. A failed fetch from the
// authority returns an empty set, is logged, and is not cached, so the next
// lookup retries.
type Cache struct {
	store   EntryStore
	lister  AssignmentLister
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	group   singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight is one in-progress fetch. An Invalidate while it runs marks it
// stale so its result is not written back.
type flight struct {
	stale bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics records lookups and invalidations on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache over store reading through to lister.
func New(store EntryStore, lister AssignmentLister, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:  store,
		lister: lister,
		ttl:    ttl,
		now:      time.Now,
		logger:   zerolog.Nop(),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithStore returns a cache sharing this one's authority and settings over a
// different store. Used for request-scoped stores such as CookieStore.
func (c *Cache) WithStore(store EntryStore) *Cache {
	return &Cache{
		store:   store,
		lister:  c.lister,
		ttl:     c.ttl,
		now:     c.now,
		logger:   c.logger,
		metrics:  c.metrics,
		inflight: make(map[string]*flight),
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetGradeIDs returns the grades userID is assigned to, from the cache when
// the entry is fresh and belongs to userID, otherwise from the authority.
func (c *Cache) GetGradeIDs(ctx context.Context, userID string) GradeSet {
	entry, ok, err := c.store.Get(ctx, userID)
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("access cache read failed, treating as miss")
		ok = false
	}

	if ok {
		switch {
		case entry.UserID != userID:
			// never serve another user's grades
			c.metrics.RecordCacheLookup(ctx, telemetry.CacheMismatch)
			c.logger.Warn().Str("user_id", userID).Str("entry_user_id", entry.UserID).Msg("access cache entry belongs to another user")
			c.delete(ctx, userID, ReasonMismatch)
		case c.now().Sub(entry.CachedAt) >= c.ttl:
			c.metrics.RecordCacheLookup(ctx, telemetry.CacheExpired)
		default:
			c.metrics.RecordCacheLookup(ctx, telemetry.CacheHit)
			return NewGradeSet(entry.GradeIDs...)
		}
	} else {
		c.metrics.RecordCacheLookup(ctx, telemetry.CacheMiss)
	}

	return c.load(ctx, userID)
}

// Prime rebuilds userID's entry from the authority. Called at sign-in.
func (c *Cache) Prime(ctx context.Context, userID string) GradeSet {
	return c.load(ctx, userID)
}

// Invalidate drops userID's entry. It is idempotent and never fails; a store
// error is logged. A fetch already in flight is detached: later lookups start
// a fresh fetch and the old one does not write its result back.
func (c *Cache) Invalidate(ctx context.Context, userID, reason string) {
	c.group.Forget(userID)
	c.mu.Lock()
	if f, ok := c.inflight[userID]; ok {
		f.stale = true
	}
	c.mu.Unlock()
	c.delete(ctx, userID, reason)
}

func (c *Cache) delete(ctx context.Context, userID, reason string) {
	c.metrics.RecordCacheInvalidation(ctx, reason)
	if err := c.store.Delete(ctx, userID); err != nil {
		c.logger.Error().Err(err).Str("user_id", userID).Str("reason", reason).Msg("access cache invalidation failed")
		return
	}
	c.logger.Debug().Str("user_id", userID).Str("reason", reason).Msg("access cache entry invalidated")
}

// load collapses concurrent fetches for the same user into one.
func (c *Cache) load(ctx context.Context, userID string) GradeSet {
	v, _, _ := c.group.Do(userID, func() (interface{}, error) {
		f := c.begin(userID)
		defer c.end(userID, f)
		return c.fetch(ctx, userID, f), nil
	})
	return v.(GradeSet)
}

func (c *Cache) begin(userID string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.inflight[userID] = f
	c.mu.Unlock()
	return f
}

func (c *Cache) end(userID string, f *flight) {
	c.mu.Lock()
	if c.inflight[userID] == f {
		delete(c.inflight, userID)
	}
	c.mu.Unlock()
}

func (c *Cache) isStale(f *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f.stale
}

func (c *Cache) fetch(ctx context.Context, userID string, f *flight) GradeSet {
	assignments, err := c.lister.ListByUser(ctx, userID)
	if err != nil {
		c.metrics.RecordCacheFetchError(ctx)
		c.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load grade assignments, denying grade access")
		return GradeSet{}
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.GradeID)
	}
	set := NewGradeSet(ids...)

	if c.isStale(f) {
		return set
	}
	entry := Entry{UserID: userID, GradeIDs: set.Slice(), CachedAt: c.now()}
	if err := c.store.Set(ctx, entry, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to store access cache entry")
	}
	// an Invalidate that raced the write above removes it again
	if c.isStale(f) {
		_ = c.store.Delete(ctx, userID)
	}
	return set
}
