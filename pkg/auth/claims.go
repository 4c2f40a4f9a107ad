// Package auth resolves the caller's identity and role from a bearer JWT.
// Tokens are verified either with an HS256 shared secret or against the
// JWKS endpoints of whitelisted issuers.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload ekaya-ask reads. The role comes from the "role"
// claim, or the first entry of "roles" for issuers that emit a list.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// RoleName returns the role the token grants, or "" when it grants none.
func (c *Claims) RoleName() string {
	if c.Role != "" {
		return c.Role
	}
	if len(c.Roles) > 0 {
		return c.Roles[0]
	}
	return ""
}
