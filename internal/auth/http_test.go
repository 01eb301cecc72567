// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers header and query token extraction, validation, and optional auth

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureAuth(got **AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_ValidHeaderToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)

	var got *AuthContext
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(captureAuth(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, err := verifier.Generate("bob", time.Hour)
	require.NoError(t, err)

	var got *AuthContext
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(captureAuth(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.UserID)
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	verifier := newTestVerifier(t)
	expired, err := verifier.Generate("alice", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer nope"},
		{name: "expired token", header: "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *AuthContext
			req := httptest.NewRequest(http.MethodGet, "/api/unread", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(verifier, nil)(captureAuth(&got)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Nil(t, got)
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	token, err := verifier.Generate("carol", time.Hour)
	require.NoError(t, err)

	var anon *AuthContext
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	OptionalAuthMiddleware(verifier)(captureAuth(&anon)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, anon)

	var authed *AuthContext
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	OptionalAuthMiddleware(verifier)(captureAuth(&authed)).ServeHTTP(rec, req)
	require.NotNil(t, authed)
	assert.Equal(t, "carol", authed.UserID)
}
