// Package metrics exports run counters to Prometheus and serves job status.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Site outcomes
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeNoData  = "no_data"
	OutcomeFailed  = "failed"
)

// RunSummary is the status of one finished run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	TotalSites int           `json:"total_sites"`
	Processed  int           `json:"processed"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	NoData     int           `json:"no_data"`
	Error      string        `json:"error,omitempty"`
}

// Recorder owns the collectors. A nil *Recorder records nothing, so callers
// never need to check whether metrics are enabled.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	sites         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	rateLimits    *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec

	mu   sync.RWMutex
	last *RunSummary
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roas_notifier",
			Name:      "runs_total",
			Help:      "Completed runs by mode and result.",
		}, []string{"mode", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roas_notifier",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),
		sites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roas_notifier",
			Name:      "site_outcomes_total",
			Help:      "Per-site outcomes.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roas_notifier",
			Name:      "notifications_total",
			Help:      "Chat messages posted, by delivery result.",
		}, []string{"result"}),
		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roas_notifier",
			Name:      "rate_limited_total",
			Help:      "Backoffs scheduled after an upstream rate limit.",
		}, []string{"scope"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roas_notifier",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run, by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs, r.runDuration, r.sites, r.notifications, r.rateLimits, r.lastRun,
	)
	return r
}

// Registry exposes the collectors for the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Recorder) SiteOutcome(outcome string) {
	if r == nil {
		return
	}
	r.sites.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Notification(ok bool) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result(ok)).Inc()
}

func (r *Recorder) RateLimited(scope string) {
	if r == nil {
		return
	}
	r.rateLimits.WithLabelValues(scope).Inc()
}

// RunFinished records a completed run and keeps it as the last status.
func (r *Recorder) RunFinished(s RunSummary) {
	if r == nil {
		return
	}
	res := result(s.Error == "")
	r.runs.WithLabelValues(s.Mode, res).Inc()
	r.runDuration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())
	r.lastRun.WithLabelValues(res).Set(float64(s.StartedAt.Add(s.Duration).Unix()))

	r.mu.Lock()
	r.last = &s
	r.mu.Unlock()
}

// LastRun returns the most recent run, if any.
func (r *Recorder) LastRun() (RunSummary, bool) {
	if r == nil {
		return RunSummary{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return RunSummary{}, false
	}
	return *r.last, true
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
