// Package metrics exposes Prometheus instrumentation for job lifecycles.
//
// The collector records one duration observation per phase (labelled with the
// phase name and its outcome), counts finished jobs by terminal status, and
// counts leader lookups that were rejected. The leader can optionally serve
// the registry over HTTP at /metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opgrid"

// Outcome labels for phase observations.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector holds the lifecycle metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	phaseDuration    *prometheus.HistogramVec
	jobsTotal        *prometheus.CounterVec
	leaderRejections prometheus.Counter
	activeJobs       prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each operator lifecycle phase",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase", "outcome"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs finished by terminal status",
		}, []string{"status"}),
		leaderRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leader_rejections_total",
			Help:      "Leader lookups that broadcast the rejection sentinel",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently running on this rank",
		}),
	}
	reg.MustRegister(c.phaseDuration, c.jobsTotal, c.leaderRejections, c.activeJobs)
	return c
}

// ObservePhase records how long a phase ran and whether it failed.
func (c *Collector) ObservePhase(phase string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.phaseDuration.WithLabelValues(phase, outcome).Observe(elapsed.Seconds())
}

// JobStarted marks a job as active.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.activeJobs.Inc()
}

// JobFinished records a job's terminal status.
func (c *Collector) JobFinished(status string) {
	if c == nil {
		return
	}
	c.activeJobs.Dec()
	c.jobsTotal.WithLabelValues(status).Inc()
}

// LeaderRejected counts a rejected leader lookup.
func (c *Collector) LeaderRejected() {
	if c == nil {
		return
	}
	c.leaderRejections.Inc()
}

// Server serves a registry at /metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving gatherer in the background.
func Listen(addr string, gatherer prometheus.Gatherer) (*Server, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting up to the context deadline.
func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
