package models

import "github.com/golang-jwt/jwt/v5"

// ActorRole is the coarse role asserted by the upstream identity service.
// This service trusts the assertion and only applies fine-grained business
// checks on top of it.
type ActorRole string

const (
	RoleRegistrar  ActorRole = "REGISTRAR"
	RoleInstructor ActorRole = "INSTRUCTOR"
	RoleReviewer   ActorRole = "REVIEWER"
	RoleStudent    ActorRole = "STUDENT"
)

// ActorClaims represents the JWT payload issued by the identity service.
type ActorClaims struct {
	ActorID string    `json:"actor_id"`
	Role    ActorRole `json:"role"`
	jwt.RegisteredClaims
}
