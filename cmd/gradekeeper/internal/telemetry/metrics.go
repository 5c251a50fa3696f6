package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache lookup outcomes.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheExpired  = "expired"
	CacheMismatch = "mismatch"
)

// Metrics holds the instruments recorded by the access, gate, lifecycle and
// ledger components. A nil *Metrics records nothing.
type Metrics struct {
	CacheLookups       metric.Int64Counter // access cache lookups by outcome
	CacheFetchErrors   metric.Int64Counter // failed assignment fetches (served as empty)
	CacheInvalidations metric.Int64Counter
	AuthzDecisions     metric.Int64Counter // gate decisions by role and verdict
	YearTransitions    metric.Int64Counter // academic year operations by outcome
	LedgerBatches      metric.Int64Counter // reward batches by outcome
	LedgerBricks       metric.Int64Counter // bricks appended to the ledger
}

// NewMetrics creates the instruments on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("gradekeeper")

	m := &Metrics{}
	var err error

	if m.CacheLookups, err = meter.Int64Counter(
		"access.cache.lookup.count",
		metric.WithDescription("Access cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.CacheFetchErrors, err = meter.Int64Counter(
		"access.cache.fetch_error.count",
		metric.WithDescription("Assignment fetches that failed and were served as an empty grade set"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.CacheInvalidations, err = meter.Int64Counter(
		"access.cache.invalidation.count",
		metric.WithDescription("Access cache entries invalidated"),
		metric.WithUnit("{invalidation}"),
	); err != nil {
		return nil, err
	}
	if m.AuthzDecisions, err = meter.Int64Counter(
		"access.gate.decision.count",
		metric.WithDescription("Grade authorization decisions"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}
	if m.YearTransitions, err = meter.Int64Counter(
		"academic_year.transition.count",
		metric.WithDescription("Academic year lifecycle operations by outcome"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}
	if m.LedgerBatches, err = meter.Int64Counter(
		"ledger.batch.count",
		metric.WithDescription("Reward batches by outcome"),
		metric.WithUnit("{batch}"),
	); err != nil {
		return nil, err
	}
	if m.LedgerBricks, err = meter.Int64Counter(
		"ledger.bricks.issued",
		metric.WithDescription("Bricks appended to the reward ledger"),
		metric.WithUnit("{brick}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCacheLookup records one lookup with its outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheFetchError records a failed assignment fetch.
func (m *Metrics) RecordCacheFetchError(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheFetchErrors.Add(ctx, 1)
}

// RecordCacheInvalidation records an explicit invalidation and why it happened.
func (m *Metrics) RecordCacheInvalidation(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.CacheInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordAuthz records a gate decision.
func (m *Metrics) RecordAuthz(ctx context.Context, role string, allowed bool) {
	if m == nil {
		return
	}
	m.AuthzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("allowed", allowed),
	))
}

// RecordYearTransition records a lifecycle operation (create, activate,
// complete, delete) and its outcome (ok or an error class).
func (m *Metrics) RecordYearTransition(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.YearTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordLedgerBatch records a batch outcome and, when accepted, its bricks.
func (m *Metrics) RecordLedgerBatch(ctx context.Context, outcome string, bricks int) {
	if m == nil {
		return
	}
	m.LedgerBatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if bricks > 0 {
		m.LedgerBricks.Add(ctx, int64(bricks))
	}
}
