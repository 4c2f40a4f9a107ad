// Package testhelpers provides utilities for testing ekaya-ask components.
package testhelpers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret is the HS256 secret SignTestJWT uses by default.
const TestJWTSecret = "test-secret-do-not-use"

// SignTestJWT returns an HS256 token for sub with the given role claim,
// valid for an hour. An empty role omits the claim.
func SignTestJWT(t testing.TB, secret, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// BearerHeader returns the Authorization header value for token.
func BearerHeader(token string) string {
	return "Bearer " + token
}
