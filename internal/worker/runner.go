// Package worker runs the periodic maintenance jobs.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/pkg/metrics"
)

type Job struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

type Runner struct {
	jobs     []Job
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRunner(interval time.Duration, m *metrics.Metrics, jobs ...Job) *Runner {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Runner{
		jobs:     jobs,
		interval: interval,
		metrics:  m,
		now:      time.Now,
	}
}

// Start runs every job once, then again on each tick until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Int("jobs", len(r.jobs)).Msg("worker started")
	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs each job in order. A failing job does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		start := r.now()
		rows, err := job.Run(ctx, start)
		if err != nil {
			r.metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
			log.Error().Err(err).Str("job", job.Name).Msg("job failed")
			continue
		}

		r.metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
		r.metrics.JobRowsAffected.WithLabelValues(job.Name).Add(float64(rows))
		log.Info().
			Str("job", job.Name).
			Int64("rows", rows).
			Dur("took", time.Since(start)).
			Msg("job finished")
	}
}
