package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// ClaimsConfig names the claims identity is read from.
type ClaimsConfig struct {
	UserIDClaim string // default "sub"
	RoleClaim   string // default "role"; may hold a string or a list of groups
}

// ErrNoRole is returned when the token carries no recognised role.
var ErrNoRole = errors.New("token carries no recognised role")

// Resolver turns an upstream-verified bearer token into an Identity.
type Resolver struct {
	cfg    ClaimsConfig
	parser *jwt.Parser
}

// NewResolver builds a Resolver, filling claim name defaults.
func NewResolver(cfg ClaimsConfig) *Resolver {
	if cfg.UserIDClaim == "" {
		cfg.UserIDClaim = "sub"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	return &Resolver{cfg: cfg, parser: jwt.NewParser()}
}

// FromBearer parses the token without verifying its signature; the gateway
// in front of the service has already done so.
func (r *Resolver) FromBearer(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, errors.New("empty bearer token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := r.parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	return r.FromClaims(claims)
}

// FromClaims resolves an Identity from decoded claims.
func (r *Resolver) FromClaims(claims map[string]interface{}) (Identity, error) {
	userID, err := claimString(claims, r.cfg.UserIDClaim)
	if err != nil {
		return Identity{}, err
	}

	role, err := resolveRole(claims[r.cfg.RoleClaim])
	if err != nil {
		return Identity{}, err
	}

	id := Identity{UserID: userID, Role: role}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	return id, nil
}

func claimString(claims map[string]interface{}, field string) (string, error) {
	raw, ok := claims[field]
	if !ok {
		return "", fmt.Errorf("claim field %s not found", field)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("claim field %s is not a string", field)
	}
	if value == "" {
		return "", fmt.Errorf("claim field %s is empty", field)
	}
	return value, nil
}

// resolveRole accepts a single role string or a group list such as
// ["TEACHER", "ADMIN"] and returns the strongest recognised role.
func resolveRole(raw interface{}) (Role, error) {
	if raw == nil {
		return "", ErrNoRole
	}
	if s, ok := raw.(string); ok {
		if role, ok := ParseRole(s); ok {
			return role, nil
		}
		return "", fmt.Errorf("%w: %q", ErrNoRole, s)
	}

	var groups []string
	if err := mapstructure.Decode(raw, &groups); err != nil {
		return "", fmt.Errorf("role claim invalid format: %w", err)
	}

	var best Role
	for _, g := range groups {
		if role, ok := ParseRole(g); ok && rank[role] > rank[best] {
			best = role
		}
	}
	if best == "" {
		return "", ErrNoRole
	}
	return best, nil
}
