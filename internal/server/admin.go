package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes Prometheus metrics and pprof profiles over ordinary
// blocking HTTP, deliberately off the io_uring hot path (§5: it only reads
// atomic counters and Prometheus collectors, both safe for concurrent
// access by construction, and never touches the store, connection set, or
// engine).
type AdminServer struct {
	httpServer *http.Server
}

// NewAdminServer builds the gin router: /metrics for Prometheus scraping,
// /debug/pprof/* for profiling, both read-only.
func NewAdminServer(addr string, reg *prometheus.Registry) *AdminServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	pprof.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return &AdminServer{httpServer: &http.Server{Addr: addr, Handler: router}}
}

// Start runs the admin HTTP server until Shutdown is called, logging (but
// not propagating) a listen failure — the admin surface is optional
// observability, not part of the RESP protocol's availability contract.
func (a *AdminServer) Start() {
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().Warn("admin server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the admin HTTP server.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}
