// Package metrics provides Prometheus metrics for swapdash runs and quotes.
//
// Usage:
//
//	metrics.Register(logger)
//	srv := metrics.StartServer(":9090", logger)
//	defer srv.Stop(context.Background())
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "swapdash"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of orchestration runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestration runs, including signature and confirmation waits",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	quoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Total number of quote requests sent to the pricing service",
		},
		[]string{"outcome"}, // success, error, stale
	)

	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total number of allowance decisions and approval transactions",
		},
		[]string{"outcome"}, // skipped, confirmed, rejected, failed
	)
)

// Register registers all collectors with the default registry
func Register(logger *logrus.Logger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)
	registerIfNotExists(runsTotal, "runs_total", logger)
	registerIfNotExists(runDuration, "run_duration", logger)
	registerIfNotExists(quoteRequestsTotal, "quote_requests_total", logger)
	registerIfNotExists(approvalsTotal, "approvals_total", logger)
}

// registerIfNotExists registers a collector if it's not already registered
func registerIfNotExists(collector prometheus.Collector, name string, logger *logrus.Logger) {
	if err := prometheus.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
		} else {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}

// Recorder updates the swapdash metrics; the zero value is ready to use
type Recorder struct{}

// NewRecorder creates a new Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RunFinished records the outcome and duration of an orchestration run
func (r *Recorder) RunFinished(kind, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	runsTotal.WithLabelValues(kind, outcome).Inc()
	runDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// QuoteRequest records a quote request outcome
func (r *Recorder) QuoteRequest(outcome string) {
	if r == nil {
		return
	}
	quoteRequestsTotal.WithLabelValues(outcome).Inc()
}

// Approval records an allowance decision or approval outcome
func (r *Recorder) Approval(outcome string) {
	if r == nil {
		return
	}
	approvalsTotal.WithLabelValues(outcome).Inc()
}

// Server serves /metrics
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
}

// StartServer serves the default registry on addr in the background
func StartServer(addr string, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	go func() {
		logger.WithField("addr", addr).Info("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return s
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
