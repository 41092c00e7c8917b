// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the fleet has finished its initial
// admission pass.
type ReadinessChecker func() bool

// Metrics contains the fleet's Prometheus metrics.
type Metrics struct {
	AccountState       *prometheus.GaugeVec
	LoginAttempts      *prometheus.CounterVec
	RelogQueueLength   prometheus.Gauge
	AdmissionNextIndex prometheus.Gauge
	OnlineSession      prometheus.Histogram
	SideEffectFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the fleet metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AccountState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "idlefleet_account_state",
				Help: "Number of accounts in each session state",
			},
			[]string{"state"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idlefleet_login_attempts_total",
				Help: "Total number of login attempts by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		RelogQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idlefleet_relog_queue_length",
			Help: "Number of accounts waiting in the relog queue",
		}),
		AdmissionNextIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idlefleet_admission_next_index",
			Help: "Index of the next account allowed its initial login",
		}),
		OnlineSession: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idlefleet_online_session_seconds",
			Help:    "Length of completed online periods",
			Buckets: prometheus.ExponentialBuckets(60, 4, 8),
		}),
		SideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idlefleet_side_effect_failures_total",
				Help: "Total number of failed best-effort side effects by effect",
			},
			[]string{"effect"},
		),
	}

	reg.MustRegister(
		m.AccountState,
		m.LoginAttempts,
		m.RelogQueueLength,
		m.AdmissionNextIndex,
		m.OnlineSession,
		m.SideEffectFailures,
	)

	return m
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server listening on addr
// ("127.0.0.1:9110", ":9110" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Create a new registry to avoid polluting the global one
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the fleet metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
// Callers should monitor this channel to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	// Create buffered error channel so the goroutine doesn't block
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	// Use CompareAndSwap to atomically transition from running to stopped.
	// This prevents a race where a concurrent Start() could succeed between
	// checking the running state and setting it to false.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
// This is a simple check that the process is alive.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 once every account had its initial admission
// turn, or 503 before that.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
