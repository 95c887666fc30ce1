// Package job runs the notification pipeline: read each site's sheet, pick
// the target day's rows, aggregate, check the ledger, post to chat.
package job

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/ledger"
	"roas-notifier/internal/logger"
	"roas-notifier/internal/metrics"
	"roas-notifier/internal/period"
	"roas-notifier/internal/retry"
	"roas-notifier/internal/store"
)

// Deps are the collaborators of a Runner. Now, Sleep and Rand default to
// the real clock, retry.Sleep and a time-seeded source.
type Deps struct {
	Registry  interfaces.SiteRegistry
	Source    interfaces.TabularSource
	Ledger    interfaces.Ledger
	Notifiers interfaces.NotifierFactory
	Metrics   *metrics.Recorder

	Now   func() time.Time
	Sleep retry.Sleeper
	Rand  *rand.Rand
}

// Stats counts per-site outcomes of one run. In blocks mode the unit is one
// (tab, date) announcement instead of a site.
type Stats struct {
	TotalSites int
	Processed  int
	Sent       int
	Skipped    int
	Failed     int
	NoData     int
}

type Runner struct {
	cfg      *store.Config
	deps     Deps
	selector *period.Selector
}

func New(cfg *store.Config, deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = retry.Sleep
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		selector: period.NewSelector(cfg.Months),
	}
}

func (r *Runner) now() time.Time {
	return r.deps.Now().In(r.cfg.Location())
}

// beginRun tags ctx with a fresh run id. The returned func logs and exports
// the outcome.
func (r *Runner) beginRun(ctx context.Context, mode string) (context.Context, func(*Stats, error)) {
	runID := uuid.NewString()
	ctx = ledger.WithRunID(ctx, runID)
	started := r.deps.Now()
	logger.Info(ctx, "Run started", "run_id", runID, "mode", mode)

	return ctx, func(s *Stats, err error) {
		sum := metrics.RunSummary{
			RunID:      runID,
			Mode:       mode,
			StartedAt:  started,
			Duration:   r.deps.Now().Sub(started),
			TotalSites: s.TotalSites,
			Processed:  s.Processed,
			Sent:       s.Sent,
			Skipped:    s.Skipped,
			Failed:     s.Failed,
			NoData:     s.NoData,
		}
		if err != nil {
			sum.Error = err.Error()
		}
		r.deps.Metrics.RunFinished(sum)

		fields := []any{
			"run_id", runID,
			"mode", mode,
			"total_sites", s.TotalSites,
			"processed", s.Processed,
			"sent", s.Sent,
			"skipped", s.Skipped,
			"failed", s.Failed,
			"no_data", s.NoData,
			"duration", sum.Duration.Round(time.Millisecond).String(),
		}
		if err != nil {
			logger.ErrorWithErr(ctx, "Run failed", err, fields...)
			return
		}
		logger.Info(ctx, "Run completed", fields...)
	}
}

func (r *Runner) policy(scope string, attempts, maxBackoffSeconds int) retry.Policy {
	return retry.Policy{
		Scope:       scope,
		MaxAttempts: attempts,
		MaxBackoff:  time.Duration(maxBackoffSeconds) * time.Second,
		Sleep:       r.deps.Sleep,
		Rand:        r.deps.Rand,
		OnRateLimit: func(scope string, _ int, _ time.Duration) {
			r.deps.Metrics.RateLimited(scope)
		},
	}
}

// send posts one message and counts it.
func (r *Runner) send(ctx context.Context, n interfaces.Notifier, text string) bool {
	ok := n.Send(ctx, text)
	r.deps.Metrics.Notification(ok)
	return ok
}

// sendAll posts every message, even after a failure, and reports whether all
// of them were accepted.
func (r *Runner) sendAll(ctx context.Context, n interfaces.Notifier, msgs []string) bool {
	allOK := true
	for _, m := range msgs {
		if !r.send(ctx, n, m) {
			allOK = false
		}
	}
	return allOK
}

// jitter pauses between two sites.
func (r *Runner) jitter(ctx context.Context) error {
	lo, hi := r.cfg.Jitter.MinSeconds, r.cfg.Jitter.MaxSeconds
	secs := lo + r.deps.Rand.Float64()*(hi-lo)
	if secs <= 0 {
		return ctx.Err()
	}
	d := time.Duration(secs * float64(time.Second))
	logger.Debug(ctx, "Waiting before next site", "wait", d.Round(time.Millisecond).String())
	return r.deps.Sleep(ctx, d)
}

// renderSafely turns a panic inside render into an error.
func renderSafely(render func() []string) (msgs []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render: %v", p)
		}
	}()
	return render(), nil
}
