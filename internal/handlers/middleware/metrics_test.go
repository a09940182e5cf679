package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type observation struct {
	method string
	route  string
	status int
}

type observerFunc func(method string, route string, status int, duration time.Duration)

func (f observerFunc) ObserveHTTP(method string, route string, status int, duration time.Duration) {
	f(method, route, status, duration)
}

func TestMetricsMiddleware(t *testing.T) {
	var got []observation
	observer := observerFunc(func(method string, route string, status int, _ time.Duration) {
		got = append(got, observation{method, route, status})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewServer(MetricsMiddleware(observer)(mux))
	defer srv.Close()

	for _, path := range []string{"/users/1", "/users/2", "/nowhere"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	require.Equal(t, []observation{
		{"POST", "POST /users/{id}", http.StatusCreated},
		{"POST", "POST /users/{id}", http.StatusCreated},
		{"POST", "unmatched", http.StatusNotFound},
	}, got, "route label is the pattern, not the path")
}
