// Package auth validates the Supabase-issued JWTs that authenticate the
// admin/dashboard HTTP surface (spec §6: org-scoped management routes,
// as opposed to the X-API-KEY-authenticated agent surface).
package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the set of Supabase JWT claims this project depends on: the
// subject identifies the authenticated user, OrgID scopes every
// subsequent Project/Agent/App lookup to that user's organization.
type Claims struct {
	OrgID string `json:"org_id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTManager validates a bearer token and returns its claims.
type JWTManager interface {
	Validate(token string) (*Claims, error)
}
