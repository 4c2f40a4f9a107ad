package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingRole          = errors.New("token grants no role")
	ErrMissingSubject       = errors.New("token has no subject")
)

// TokenCookie is the cookie browser clients may carry the token in.
const TokenCookie = "ekaya_jwt"

// AuthService resolves the identity behind an HTTP request.
type AuthService interface {
	// Authenticate extracts the token from the Authorization header (or the
	// ekaya_jwt cookie), verifies it and returns the caller's identity.
	Authenticate(r *http.Request) (Identity, error)
}

type authService struct {
	validator TokenValidator
	logger    *zap.Logger
}

var _ AuthService = (*authService)(nil)

// NewAuthService creates an AuthService backed by validator.
func NewAuthService(validator TokenValidator, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		logger:    logger.Named("auth"),
	}
}

func (s *authService) Authenticate(r *http.Request) (Identity, error) {
	tokenString, source, err := bearerToken(r)
	if err != nil {
		s.logger.Debug("no usable token in request",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return Identity{}, err
	}

	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("token validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", source))
		return Identity{}, err
	}

	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}
	role := claims.RoleName()
	if role == "" {
		return Identity{}, ErrMissingRole
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, RoleName: role}, nil
}

func bearerToken(r *http.Request) (token, source string, err error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", "", ErrInvalidAuthFormat
		}
		return strings.TrimSpace(token), "header", nil
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, "cookie", nil
	}
	return "", "", ErrMissingAuthorization
}

// staticService grants every request the same identity. Used when auth is disabled.
type staticService struct {
	identity Identity
}

// NewStaticAuthService returns an AuthService that never checks tokens and
// treats every caller as AnonymousUser with roleName.
func NewStaticAuthService(roleName string) AuthService {
	return &staticService{identity: Identity{UserID: AnonymousUser, RoleName: roleName}}
}

func (s *staticService) Authenticate(*http.Request) (Identity, error) {
	return s.identity, nil
}
