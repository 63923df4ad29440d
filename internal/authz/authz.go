// Package authz is the single capability check the engine performs before a
// mutating entry point. Authentication itself happens upstream; callers arrive
// here already identified.
package authz

import "errors"

// ErrForbidden indicates the actor may not mutate the resource.
var ErrForbidden = errors.New("forbidden")

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID string
	Admin  bool
}

// Authorizer decides whether an actor may mutate a resource owned by another
// user.
type Authorizer interface {
	CanMutate(actor Actor, ownerID string) bool
}

// OwnerOrAdmin grants mutation to the owning user and to admins.
type OwnerOrAdmin struct{}

// CanMutate implements Authorizer.
func (OwnerOrAdmin) CanMutate(actor Actor, ownerID string) bool {
	if actor.Admin {
		return true
	}
	return actor.UserID != "" && actor.UserID == ownerID
}
