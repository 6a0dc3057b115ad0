package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMiddleware_ValidationErrorBecomes400(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/not-a-uuid/read", nil)
	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"notification id must be a UUID","type":"validation"}`, rec.Body.String())
}

func TestErrorMiddleware_NotFoundCarriesContext(t *testing.T) {
	f := newFixture()
	id := "0b39cadc-2635-4a2d-9587-7e2cc3a806f5"

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/"+id+"/read", nil)
	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
	assert.Contains(t, rec.Body.String(), id)
}

func TestErrorMiddleware_EchoHTTPErrorPassesThrough(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointRegistered(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
