package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_StableID(t *testing.T) {
	store, err := NewSessionStore("session-secret", false)
	require.NoError(t, err)

	first := httptest.NewRecorder()
	id, err := store.SessionID(first, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	again, err := store.SessionID(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestSessionStore_ForgedCookieGetsNewID(t *testing.T) {
	store, err := NewSessionStore("", true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionName, Value: "forged"})
	rec := httptest.NewRecorder()

	id, err := store.SessionID(rec, req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.True(t, rec.Result().Cookies()[0].Secure)
}
