package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"account_factory/internal/config"
)

func corsRequest(t *testing.T, cfg config.CorsConfig, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := corsMiddleware(cfg, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/v1/accounts", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCorsAllowedOrigin(t *testing.T) {
	cfg := config.CorsConfig{AllowOrigins: []string{"http://localhost:5173"}, AllowCredentials: true}

	rec := corsRequest(t, cfg, http.MethodGet, "http://localhost:5173")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCorsUnknownOriginGetsNoGrant(t *testing.T) {
	cfg := config.CorsConfig{AllowOrigins: []string{"http://localhost:5173"}}

	rec := corsRequest(t, cfg, http.MethodGet, "http://evil.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsWildcard(t *testing.T) {
	cfg := config.CorsConfig{AllowOrigins: []string{"*"}}

	rec := corsRequest(t, cfg, http.MethodGet, "http://anywhere.example")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsPreflightShortCircuits(t *testing.T) {
	cfg := config.CorsConfig{AllowOrigins: []string{"http://localhost:5173"}}

	rec := corsRequest(t, cfg, http.MethodOptions, "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, rec.Body.String())
}
