package auth

import "github.com/google/uuid"

// Actor is the caller on whose behalf an operation runs. It is resolved once
// per request and passed explicitly into application services.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// ActorFromClaims builds the Actor for a verified token.
func ActorFromClaims(c *Claims) Actor {
	return Actor{UserID: c.UserID, Admin: c.Admin()}
}

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.Admin || (a.UserID != uuid.Nil && a.UserID == ownerID)
}
