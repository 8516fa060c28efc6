package access

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RolePatient  Role = "patient"
)

// Principal is the acting identity as reported by an identity provider adapter.
type Principal interface {
	ID() uuid.UUID
	IsAuthenticated() bool
	Role() Role
	IsAdmin() bool
}

// Anonymous is used for requests without credentials and for system jobs.
type Anonymous struct{}

func (Anonymous) ID() uuid.UUID         { return uuid.Nil }
func (Anonymous) IsAuthenticated() bool { return false }
func (Anonymous) Role() Role            { return "" }
func (Anonymous) IsAdmin() bool         { return false }

// User is an authenticated principal.
type User struct {
	UserID    uuid.UUID
	UserRole  Role
	Superuser bool
}

func (u User) ID() uuid.UUID         { return u.UserID }
func (u User) IsAuthenticated() bool { return true }
func (u User) Role() Role            { return u.UserRole }
func (u User) IsAdmin() bool         { return u.Superuser || u.UserRole == RoleAdmin }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext never returns nil; missing principals read as Anonymous.
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p != nil {
		return p
	}
	return Anonymous{}
}

// ActorID returns the principal id for authenticated principals and nil otherwise.
func ActorID(p Principal) *uuid.UUID {
	if p == nil || !p.IsAuthenticated() {
		return nil
	}
	id := p.ID()
	if id == uuid.Nil {
		return nil
	}
	return &id
}
