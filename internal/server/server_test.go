package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-service/internal/config"
)

func memoryConfig(identityURL string) *config.Config {
	return &config.Config{
		ServerPort:                 "0",
		StoreDriver:                config.StoreDriverMemory,
		IdentityBaseURL:            identityURL,
		IdentityTimeout:            time.Second,
		IdentityBreakerThreshold:   3,
		IdentityBreakerOpenTimeout: time.Second,
		ConflictRetries:            3,
	}
}

func newMemoryServer(t *testing.T) *Server {
	t.Helper()
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(identity.Close)

	srv, err := NewServer(memoryConfig(identity.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return srv
}

func TestServer_RoutesOnMemoryStore(t *testing.T) {
	srv := newMemoryServer(t)
	router := srv.GetRouter()

	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"ownerId":7,"accountType":"SAVINGS"}`))
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"balance":"0.00"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wallet_service_http_requests_total{method="POST",route="/accounts",status="201"}`)
	assert.Contains(t, rec.Body.String(), `wallet_service_ledger_operations_total{operation="create",outcome="ok"}`)
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newMemoryServer(t)

	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/accounts/abc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandler_StoreDown(t *testing.T) {
	handler := healthHandler(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestServer_StartStop(t *testing.T) {
	srv := newMemoryServer(t)

	port, err := srv.Start("0")
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	resp, err := http.Get(srv.GetBaseURL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
