package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudia-labs/claudia/internal/config"
)

func newTestContext(t *testing.T) *ServerContext {
	t.Helper()
	return NewServerContext(context.Background(), Deps{
		Config: config.Config{ClientID: "id", ClientSecret: "secret"},
	})
}

func TestServerContext_Defaults(t *testing.T) {
	sc := newTestContext(t)

	assert.NotNil(t, sc.Logger())
	assert.NotNil(t, sc.Metrics())
	assert.NotNil(t, sc.Audit())
	assert.Equal(t, "id", sc.Config().ClientID)
	assert.False(t, sc.IsShutdown())
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestContext(t)

	sc.Shutdown()

	assert.True(t, sc.IsShutdown())
	assert.ErrorIs(t, sc.Context().Err(), context.Canceled)
}

func TestLivenessHandler(t *testing.T) {
	h := NewHealthChecker(newTestContext(t))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		shutdown   bool
		wantStatus int
	}{
		{"ready", true, false, http.StatusOK},
		{"not ready", false, false, http.StatusServiceUnavailable},
		{"shutting down", true, true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestContext(t)
			h := NewHealthChecker(sc)
			h.SetReady(tt.ready)
			if tt.shutdown {
				sc.Shutdown()
			}

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Checks)
		})
	}
}

type stubRegistrar struct{ registered bool }

func (s *stubRegistrar) Register(mux *http.ServeMux) {
	s.registered = true
	mux.HandleFunc("/extra", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestOpsServer_MountsRoutes(t *testing.T) {
	sc := newTestContext(t)
	reg := &stubRegistrar{}
	srv := NewOpsServer("127.0.0.1:0", sc, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), reg)

	// Exercise the mux construction through a test server rather than
	// binding the real listener.
	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.metrics)
	health := NewHealthChecker(sc)
	health.Register(mux)
	reg.Register(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	for path, want := range map[string]int{
		"/metrics": http.StatusOK,
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
		"/extra":   http.StatusTeapot,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
	assert.True(t, reg.registered)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
