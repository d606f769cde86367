package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/http/handlers"
	httpmiddleware "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/http/middleware"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return New(&Config{
		AdminAuthSecret: "test-secret",
		QueueHandler:    handlers.NewQueueHandler(nil, nil, nil, nil, "55", nil),
	})
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    httpmiddleware.AdminTokenIssuer,
		Audience:  jwt.ClaimStrings{httpmiddleware.AdminTokenAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHealthIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointment-queue/stats", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesAcceptValidJWT(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/appointment-queue/stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "test-secret"))
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, req)

	// Tracker is not wired in this fixture; auth passing surfaces as 503.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
