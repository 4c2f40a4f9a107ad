package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// SessionName is the name of the session cookie.
const SessionName = "ekaya-ask-session"

const sessionKeyID = "sid"

// SessionStore hands out a stable session id per browser. Requests that
// share a session id supersede one another.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie-backed store. The secret is SHA-256
// hashed to derive the signing key; an empty secret gets a random key, so
// sessions do not survive a restart. secure marks the cookie HTTPS-only.
func NewSessionStore(secret string, secure bool) (*SessionStore, error) {
	var key [32]byte
	if secret == "" {
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	} else {
		key = sha256.Sum256([]byte(secret))
	}

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionStore{store: store}, nil
}

// SessionID returns the request's session id, issuing and saving a new one
// when the request carries none or an invalid cookie.
func (s *SessionStore) SessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	// A cookie that fails to decode yields a fresh session and an error; the
	// fresh session is what we want.
	session, _ := s.store.Get(r, SessionName)
	if id, ok := session.Values[sessionKeyID].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	session.Values[sessionKeyID] = id
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return id, nil
}
