package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfinch/email-game-public/metrics"
)

type stubRegistrar struct{}

func (stubRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}

func newTestBaseServer(t *testing.T) *BaseServer {
	t.Helper()

	m, err := metrics.New("httpserver_test", "")
	require.NoError(t, err)

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, m, stubRegistrar{})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestBaseServer(t)
	handler := srv.srv.Handler

	rec := get(t, handler, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())

	rec = get(t, handler, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, handler, "/ping")
	assert.Equal(t, "pong", rec.Body.String())
}

func TestDrainUndrain(t *testing.T) {
	srv := newTestBaseServer(t)
	handler := srv.srv.Handler

	rec := get(t, handler, "/drain")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, handler, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, handler, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, rec.Body.String())

	rec = get(t, handler, "/undrain")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, handler, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
