package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"walletpass/internal/pass/handler"
	platformmetrics "walletpass/internal/platform/metrics"
	"walletpass/pkg/platform/middleware/requestid"
)

// newRouter mounts the webhook routes behind the shared middleware stack.
func newRouter(h *handler.Handler, m *platformmetrics.Metrics, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	if m != nil {
		r.Use(m.Middleware)
	}
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	h.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
