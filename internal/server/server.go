// Package server implements the accept loop, command dispatcher, and
// reply encoder that sit on top of internal/ioengine. It owns the
// listening handle, the live connection set, and the key-value store;
// everything here runs on the single dispatch thread the engine drives.
package server

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cleanbaja/kvcache/internal/ioengine"
	"github.com/cleanbaja/kvcache/internal/kvconn"
	"github.com/cleanbaja/kvcache/internal/store"
	"github.com/cleanbaja/kvcache/internal/xsignal"
)

// Server is the process singleton: the engine, the listening handle, the
// accept context, the connection set, and the store.
type Server struct {
	engine       *ioengine.Engine
	listenHandle int
	acceptCtx    ioengine.IoContext
	connections  map[int]*kvconn.Connection
	store        *store.Store
	metrics      *metricsRegistry
	log          *slog.Logger
}

// New creates the engine, binds the RESP listener, and wires the accept
// context — but does not yet submit the first accept or start the loop;
// call Run for that.
func New() (*Server, error) {
	engine, err := ioengine.New()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	handle, err := listenRespSocket()
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		engine:       engine,
		listenHandle: handle,
		connections:  make(map[int]*kvconn.Connection),
		store:        store.New(),
		log:          slog.Default().With("component", "server"),
	}
	s.metrics = newMetricsRegistry(s.store.Len)
	s.acceptCtx = ioengine.IoContext{Kind: ioengine.KindNop, Callback: s.dispatch, UserData: s}
	return s, nil
}

// Run submits the first accept, installs signal handlers, and drives the
// engine's event loop until a signal or a fatal callback error stops it.
func (s *Server) Run() error {
	s.engine.Accept(s.listenHandle, &s.acceptCtx)
	xsignal.Install(s.engine)

	s.log.Info("listening", "port", respPort())
	return s.engine.Enter()
}

// Close releases the listening handle and the engine. It does not close
// live connections — those are abandoned along with the ring on shutdown,
// per the spec's cancellation model (§5).
func (s *Server) Close() error {
	if err := closeHandle(s.listenHandle); err != nil {
		s.log.Warn("close listen handle", "error", err)
	}
	return s.engine.Close()
}

// Registry exposes the Prometheus registry backing the admin HTTP surface.
func (s *Server) Registry() *prometheus.Registry { return s.metrics.registry }
