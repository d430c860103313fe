package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trackline/server/internal/auth"
)

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	manager := auth.NewJWTManager([]byte("test-secret-test-secret-test-one"), time.Hour, "trackline")
	handler := BearerAuth(manager, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/issues", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestBearerAuthRejectsGarbageToken(t *testing.T) {
	manager := auth.NewJWTManager([]byte("test-secret-test-secret-test-one"), time.Hour, "trackline")
	handler := BearerAuth(manager, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/issues", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	manager := auth.NewJWTManager([]byte("test-secret-test-secret-test-one"), time.Hour, "trackline")
	token, err := manager.Generate("agent-1", "agent")
	require.NoError(t, err)

	var seen *auth.Claims
	handler := BearerAuth(manager, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/issues/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "agent-1", seen.Subject)
	require.Equal(t, "agent", seen.Role)
}

func TestClaimsFromContextWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Nil(t, ClaimsFromContext(req.Context()))
}
