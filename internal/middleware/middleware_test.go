package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(okHandler(nil))

	send := func(remote, user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(logging.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002", ""), "same host, different port")
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1003", "alice"), "authenticated callers get their own bucket")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000", ""))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(time.Minute)
	rl.getLimiter("b")

	assert.Equal(t, 1, rl.Cleanup(30*time.Second))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "b")
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	handler := NewTracingMiddleware(nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(TraceHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.com", "*.saferwinning.io"}).Handler(okHandler(nil))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"https://ui.saferwinning.io", true},
		{"https://evil-saferwinning.io", false},
		{"https://evil.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed {
			assert.Equal(t, tt.origin, got, tt.origin)
		} else {
			assert.Empty(t, got, tt.origin)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware())
	r.HandleFunc("/entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before, err := testutil.GatherAndCount(metrics.Registry, "saferwinning_http_requests_total")
	require.NoError(t, err)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/entries/alice", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/entries/bob", nil))
	after, err := testutil.GatherAndCount(metrics.Registry, "saferwinning_http_requests_total")
	require.NoError(t, err)

	require.Equal(t, before+1, after, "both requests share one label set")
}
