// Package worker polls scheduled runs until their results are ready and
// archives them.
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/artifacts"
	"github.com/appthwack/thwack/internal/database"
	"github.com/appthwack/thwack/internal/observability"
)

const DefaultInterval = 30 * time.Second

type runKey struct {
	projectID int
	runID     int
}

type Worker struct {
	db       database.Database
	reports  *artifacts.Manager
	interval time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics
	onDone   func(*appthwack.Run, *appthwack.Result)

	mu      sync.Mutex
	tracked map[runKey]*appthwack.Run
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithReports unpacks the report archive of every finished run into m.
func WithReports(m *artifacts.Manager) Option {
	return func(w *Worker) { w.reports = m }
}

// OnComplete registers fn to be called after a tracked run is archived.
func OnComplete(fn func(*appthwack.Run, *appthwack.Result)) Option {
	return func(w *Worker) { w.onDone = fn }
}

// New returns a worker that archives into db. A nil db disables archiving.
func New(db database.Database, opts ...Option) *Worker {
	w := &Worker{
		db:       db,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
		tracked:  map[runKey]*appthwack.Run{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Track adds run to the set polled by Start.
func (w *Worker) Track(run *appthwack.Run) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[runKey{run.ProjectID, run.ID}] = run
}

// Tracked returns the runs still waiting for results, oldest id first.
func (w *Worker) Tracked() []*appthwack.Run {
	w.mu.Lock()
	defer w.mu.Unlock()
	runs := make([]*appthwack.Run, 0, len(w.tracked))
	for _, r := range w.tracked {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].ProjectID != runs[j].ProjectID {
			return runs[i].ProjectID < runs[j].ProjectID
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

func (w *Worker) untrack(run *appthwack.Run) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, runKey{run.ProjectID, run.ID})
}

// Start polls the tracked runs every interval until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("starting run poller")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("stopping run poller")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks every tracked run once. Runs whose results are complete are
// archived and no longer tracked.
func (w *Worker) Poll(ctx context.Context) {
	for _, run := range w.Tracked() {
		res, done, err := w.check(ctx, run)
		if err != nil {
			w.logger.Warn().Err(err).Int("project", run.ProjectID).Int("run", run.ID).Msg("failed to poll run")
			continue
		}
		if !done {
			continue
		}
		if err := w.Archive(ctx, run, res); err != nil {
			w.logger.Warn().Err(err).Int("run", run.ID).Msg("failed to archive run")
			continue
		}
		w.untrack(run)
		if w.onDone != nil {
			w.onDone(run, res)
		}
	}
}

// check reports whether run has finished and its report is staged. The
// result is only fetched once the status says completed.
func (w *Worker) check(ctx context.Context, run *appthwack.Run) (*appthwack.Result, bool, error) {
	status, err := run.Status(ctx)
	if err != nil {
		w.metrics.ObservePoll("error")
		return nil, false, err
	}
	w.metrics.ObservePoll(string(status))
	w.logger.Debug().Int("run", run.ID).Str("status", string(status)).Msg("polled run")
	if status != appthwack.StatusCompleted {
		return nil, false, nil
	}

	res, err := run.Results(ctx)
	if err != nil {
		return nil, false, err
	}
	return res, res.IsCompleted(), nil
}

// Wait polls run until its results are complete, archives them and returns
// them. It gives up when ctx is done.
func (w *Worker) Wait(ctx context.Context, run *appthwack.Run) (*appthwack.Result, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		res, done, err := w.check(ctx, run)
		if err != nil {
			return nil, err
		}
		if done {
			if err := w.Archive(ctx, run, res); err != nil {
				return res, err
			}
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for run %d: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Archive stores res in the database and unpacks its report, whichever of
// the two the worker was configured with.
func (w *Worker) Archive(ctx context.Context, run *appthwack.Run, res *appthwack.Result) error {
	if w.db != nil {
		if err := database.Store(w.db, run, res); err != nil {
			return fmt.Errorf("failed to archive run %d: %w", run.ID, err)
		}
	}
	if w.reports != nil && res.IsCompleted() {
		dir, err := w.reports.Fetch(ctx, run, res)
		if err != nil {
			return fmt.Errorf("failed to fetch report of run %d: %w", run.ID, err)
		}
		w.logger.Info().Int("run", run.ID).Str("dir", dir).Msg("report unpacked")
	}
	w.metrics.RunArchived()
	w.logger.Info().Int("project", run.ProjectID).Int("run", run.ID).Msg("run archived")
	return nil
}
