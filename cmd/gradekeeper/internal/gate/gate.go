// Package gate authorizes callers against grades and admin operations.
package gate

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/telemetry"
)

// Gate composes the caller's identity, the role policy and the access cache.
// It holds no state of its own.
type Gate struct {
	enforcer casbin.IEnforcer
	cache    *access.Cache
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// New creates a Gate over cache using the built-in role policy.
func New(cache *access.Cache, logger zerolog.Logger, metrics *telemetry.Metrics) (*Gate, error) {
	enforcer, err := NewEnforcer()
	if err != nil {
		return nil, err
	}
	return &Gate{enforcer: enforcer, cache: cache, logger: logger, metrics: metrics}, nil
}

// WithCache returns a Gate sharing the policy but consulting c.
func (g *Gate) WithCache(c *access.Cache) *Gate {
	return &Gate{enforcer: g.enforcer, cache: c, logger: g.logger, metrics: g.metrics}
}

// Cache returns the access cache the gate consults.
func (g *Gate) Cache() *access.Cache {
	return g.cache
}

// Can reports whether role may perform act on obj.
func (g *Gate) Can(role identity.Role, obj, act string) bool {
	ok, err := g.enforcer.Enforce(string(role), obj, act)
	if err != nil {
		g.logger.Error().Err(err).Str("role", string(role)).Str("obj", obj).Str("act", act).Msg("policy evaluation failed")
		return false
	}
	return ok
}

// Authorize reports whether id may read or write gradeID. Admins bypass the
// cache; teachers must hold an assignment to the grade; everyone else is denied.
func (g *Gate) Authorize(ctx context.Context, id identity.Identity, gradeID string) bool {
	allowed := g.authorize(ctx, id, gradeID)
	g.metrics.RecordAuthz(ctx, string(id.Role), allowed)
	return allowed
}

func (g *Gate) authorize(ctx context.Context, id identity.Identity, gradeID string) bool {
	if id.UserID == "" || gradeID == "" {
		return false
	}
	if g.Can(id.Role, ObjGrade, ActAny) {
		return true
	}
	if g.Can(id.Role, ObjGrade, ActAssigned) {
		return g.cache.GetGradeIDs(ctx, id.UserID).Has(gradeID)
	}
	return false
}

// Require resolves the caller from ctx and checks grade access.
func (g *Gate) Require(ctx context.Context, gradeID string) (identity.Identity, error) {
	id, ok := identity.CurrentUser(ctx)
	if !ok {
		return identity.Identity{}, &apperrors.UnauthorizedError{}
	}
	if !g.Authorize(ctx, id, gradeID) {
		return id, &apperrors.ForbiddenError{UserID: id.UserID, GradeID: gradeID}
	}
	return id, nil
}

// RequireAction resolves the caller from ctx and checks a role permission.
func (g *Gate) RequireAction(ctx context.Context, obj, act string) (identity.Identity, error) {
	id, ok := identity.CurrentUser(ctx)
	if !ok {
		return identity.Identity{}, &apperrors.UnauthorizedError{}
	}
	allowed := g.Can(id.Role, obj, act)
	g.metrics.RecordAuthz(ctx, string(id.Role), allowed)
	if !allowed {
		return id, &apperrors.ForbiddenError{UserID: id.UserID, Reason: fmt.Sprintf("%s %s", act, obj)}
	}
	return id, nil
}
