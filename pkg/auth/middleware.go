package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth resolves the caller's identity and stores it in the request
// context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := m.authService.Authenticate(r)
		switch {
		case errors.Is(err, ErrMissingRole):
			m.logger.Warn("token without role rejected", zap.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "forbidden", "Token grants no role")
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
