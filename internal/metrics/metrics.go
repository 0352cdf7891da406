// Package metrics exposes prometheus counters for snipy's connection
// lifecycle: accepted connections, sniff/dial failures, and bytes relayed.
// This is ambient observability, not the payload inspection spec.md's
// Non-goals exclude — no hostname or payload ever becomes a label (unlike a
// per-SNI counter, which would be unbounded cardinality).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records per-connection outcomes. The zero value is not usable;
// construct with New.
type Recorder struct {
	connectionsTotal *prometheus.CounterVec
	sniffFailures    *prometheus.CounterVec
	dialFailures     *prometheus.CounterVec
	bytesTotal       *prometheus.CounterVec

	server *http.Server
}

// New creates a *Recorder with its own prometheus registry, so that multiple
// tests or multiple instances in-process don't collide on promauto's default
// global registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snipy_connections_total",
			Help: "Total accepted connections by protocol.",
		}, []string{"protocol"}),
		sniffFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snipy_sniff_failures_total",
			Help: "Total connections torn down due to a sniffing failure, by protocol.",
		}, []string{"protocol"}),
		dialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snipy_dial_failures_total",
			Help: "Total connections torn down due to a dial failure, by protocol.",
		}, []string{"protocol"}),
		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snipy_bytes_total",
			Help: "Total bytes relayed, by protocol and direction.",
		}, []string{"protocol", "direction"}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.server = &http.Server{Handler: mux}

	return r
}

// Accepted records a newly accepted connection for protocol.
func (r *Recorder) Accepted(protocol string) {
	r.connectionsTotal.WithLabelValues(protocol).Inc()
}

// SniffFailed records a sniffing failure for protocol.
func (r *Recorder) SniffFailed(protocol string) {
	r.sniffFailures.WithLabelValues(protocol).Inc()
}

// DialFailed records a dial failure for protocol.
func (r *Recorder) DialFailed(protocol string) {
	r.dialFailures.WithLabelValues(protocol).Inc()
}

// BytesRelayed records n bytes relayed for protocol in direction
// ("client_to_upstream" or "upstream_to_client").
func (r *Recorder) BytesRelayed(protocol, direction string, n int64) {
	if n <= 0 {
		return
	}
	r.bytesTotal.WithLabelValues(protocol, direction).Add(float64(n))
}

// Serve starts the metrics HTTP endpoint on addr. It blocks until the
// listener fails or Shutdown is called, the same contract as
// http.Server.ListenAndServe.
func (r *Recorder) Serve(addr string) error {
	r.server.Addr = addr

	err := r.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// Shutdown gracefully stops the metrics HTTP endpoint.
func (r *Recorder) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.server.Shutdown(shutdownCtx)
}
