// Package auth describes who is calling into the core and what they may do.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Role enumerates the storefront user roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

var (
	// ErrUnauthorized is returned when a request carries no valid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the principal's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// Principal is an authenticated caller with a resolved role.
type Principal struct {
	UserID int64
	Role   Role
}

// Is reports whether the principal holds any of the given roles.
func (p Principal) Is(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}

// Require returns ErrForbidden unless the principal holds one of roles.
func Require(p Principal, roles ...Role) error {
	if p.UserID == 0 {
		return ErrUnauthorized
	}
	if !p.Is(roles...) {
		return errors.Wrapf(ErrForbidden, "role %q", p.Role)
	}
	return nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
