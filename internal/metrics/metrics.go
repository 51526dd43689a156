// Package metrics exposes the engine's Prometheus instrumentation and the
// exposition endpoint.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventsProcessed counts market events flowing through the per-symbol
// pipelines.
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bailey",
		Subsystem: "feed",
		Name:      "events_processed_total",
		Help:      "Total market events processed per symbol",
	},
	[]string{"symbol"},
)

// FeedReconnects counts stream reconnect attempts.
var FeedReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bailey",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Total websocket reconnect attempts",
	},
)

// SignalsGenerated counts resolver output by direction.
var SignalsGenerated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bailey",
		Subsystem: "strategy",
		Name:      "signals_total",
		Help:      "Total signals by direction",
	},
	[]string{"symbol", "direction"},
)

// OrdersSubmitted counts order outcomes: submitted, filled, cancelled,
// rejected, risk_rejected.
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bailey",
		Subsystem: "executor",
		Name:      "orders_total",
		Help:      "Total orders by outcome",
	},
	[]string{"symbol", "outcome"},
)

// PersistenceFailures counts writes that exhausted their retries.
var PersistenceFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bailey",
		Subsystem: "persist",
		Name:      "write_failures_total",
		Help:      "Durable writes that exhausted retries and were backlogged",
	},
	[]string{"kind"},
)

// TickToOrderLatency observes the time from market event arrival to order
// submission.
var TickToOrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "bailey",
		Subsystem: "pipeline",
		Name:      "tick_to_order_latency_ms",
		Help:      "Latency from market event to order submission in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"symbol"},
)

// PortfolioBalance gauges the tracked cash balance.
var PortfolioBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "bailey",
		Subsystem: "portfolio",
		Name:      "balance",
		Help:      "Tracked cash balance",
	},
)

// Server serves the /metrics exposition endpoint.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(slog.String("component", "metrics")),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics endpoint listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
