// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	ReasonEmptyMessage = "empty_message"
	ReasonStoreWrite   = "store_write"
	ReasonQueueClosed  = "queue_closed"
)

var (
	RawEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsauditd_raw_events_total",
			Help: "Filesystem notifications received, by kind",
		},
		[]string{"kind"},
	)

	EntriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsauditd_entries_stored_total",
			Help: "Audit entries persisted, by source",
		},
		[]string{"source"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsauditd_notifications_dropped_total",
			Help: "Notifications that produced no stored entry, by reason",
		},
		[]string{"reason"},
	)

	SecurityLogReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsauditd_security_log_reads_total",
			Help: "Security trace reads, by result (event, duplicate, unreadable, malformed)",
		},
		[]string{"result"},
	)

	TargetsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fsauditd_targets_skipped_total",
			Help: "Configured watch targets skipped because the path was unavailable",
		},
	)

	ActiveWatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fsauditd_active_watches",
			Help: "Watches currently delivering notifications",
		},
	)

	HandleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fsauditd_handle_duration_seconds",
			Help:    "Time spent in the serialized parse, normalize and insert scope",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Server serves /metrics on addr until Shutdown.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server for addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe blocks serving requests. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the /metrics handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
