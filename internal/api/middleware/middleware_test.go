package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/shipping-api/internal/api/shared"
	"github.com/phrazzld/shipping-api/internal/platform/logger"
)

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var seen string
	h := NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	}))

	t.Run("generates trace id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))

		require.Len(t, seen, 32)
		assert.Equal(t, seen, rec.Header().Get(shared.TraceIDHeader))
		logger.AssertLogContains(t, buf, seen)
	})

	t.Run("adopts valid caller trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.Header.Set(shared.TraceIDHeader, "caller-trace-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "caller-trace-1", seen)
		assert.Equal(t, "caller-trace-1", rec.Header().Get(shared.TraceIDHeader))
	})

	t.Run("replaces invalid caller trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.Header.Set(shared.TraceIDHeader, "bad id\n")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, "bad id\n", seen)
		assert.Len(t, seen, 32)
	})
}

type observation struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu       sync.Mutex
	inFlight int
	observed []observation
}

func (o *fakeObserver) RequestStarted() func() {
	o.mu.Lock()
	o.inFlight++
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}
}

func (o *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, observation{method, route, status})
}

func TestMetricsMiddleware(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(obs))
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/api/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/items", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, []observation{
		{"GET", "/api/items/{id}", http.StatusNotFound},
		{"POST", "/api/items", http.StatusOK},
		{"GET", unmatchedRoute, http.StatusNotFound},
	}, obs.observed)
	assert.Zero(t, obs.inFlight)
}
