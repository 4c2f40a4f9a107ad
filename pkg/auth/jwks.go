package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies a token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
	Close()
}

// ValidatorConfig selects how tokens are verified. At least one of
// HMACSecret and JWKSEndpoints must be set.
type ValidatorConfig struct {
	// HMACSecret verifies HS256 tokens.
	HMACSecret string
	// JWKSEndpoints maps issuer URLs to their JWKS endpoint URLs. Only
	// RS256/ES256 tokens from issuers in this map are accepted.
	JWKSEndpoints map[string]string
}

// JWKSClient verifies tokens with a shared secret and/or per-issuer JWKS.
type JWKSClient struct {
	endpoints map[string]keyfunc.Keyfunc
	secret    []byte
	cancel    context.CancelFunc
}

var _ TokenValidator = (*JWKSClient)(nil)

// NewJWKSClient fetches every configured JWKS once and keeps them refreshed
// in the background until Close.
func NewJWKSClient(ctx context.Context, cfg ValidatorConfig) (*JWKSClient, error) {
	if cfg.HMACSecret == "" && len(cfg.JWKSEndpoints) == 0 {
		return nil, errors.New("no token verification method configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	client := &JWKSClient{
		endpoints: make(map[string]keyfunc.Keyfunc),
		secret:    []byte(cfg.HMACSecret),
		cancel:    cancel,
	}

	for issuer, jwksURL := range cfg.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		client.endpoints[issuer] = jwks
	}

	return client, nil
}

// ValidateToken verifies the signature, expiry and issuer of tokenString.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, c.keyFor,
		jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

func (c *JWKSClient) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(c.secret) == 0 {
			return nil, errors.New("HS256 tokens are not accepted")
		}
		return c.secret, nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	jwks, exists := c.endpoints[claims.Issuer]
	if !exists {
		return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}
	return jwks.Keyfunc(token)
}

// Close stops background JWKS refreshes.
func (c *JWKSClient) Close() {
	c.cancel()
}
