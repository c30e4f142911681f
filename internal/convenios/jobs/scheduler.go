// Package jobs runs the periodic maintenance of convenios: the expiry sweep
// and the consumption reconciliation.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"convenios/internal/common/logging"
	"convenios/internal/common/types"
	"convenios/internal/convenios/application"
)

// Service is the part of the convenio service the jobs drive.
type Service interface {
	DesactivarConveniosVencidos(ctx context.Context) (application.ResultadoBarrido, error)
	RecalcularTodos(ctx context.Context) (*application.ReporteReconciliacion, error)
}

// Config holds the cron expressions (with seconds) of each job.
// An empty expression leaves that job unscheduled.
type Config struct {
	Location          *time.Location
	SweepSchedule     string
	ReconcileSchedule string
	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
}

// Runner executes one job run with logging and a correlation id.
type Runner struct {
	service Service
	timeout time.Duration
}

// NewRunner creates a Runner.
func NewRunner(service Service, timeout time.Duration) *Runner {
	return &Runner{service: service, timeout: timeout}
}

func (r *Runner) context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := logging.WithCorrelationID(parent, types.NewCorrelationID())
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// RunSweep deactivates every expired convenio.
func (r *Runner) RunSweep(parent context.Context) (application.ResultadoBarrido, error) {
	ctx, cancel := r.context(parent)
	defer cancel()

	start := time.Now()
	result, err := r.service.DesactivarConveniosVencidos(ctx)
	if err != nil {
		logging.ErrorContext(ctx, "Sweep job failed", "error", err, "desactivados", result.Total)
		return result, err
	}
	logging.InfoContext(ctx, "Sweep job finished",
		"desactivados", result.Total,
		"revisados", result.Revisados,
		"fallidos", result.Fallidos,
		"duration", time.Since(start),
	)
	return result, nil
}

// RunReconcile recomputes the counters of every convenio.
func (r *Runner) RunReconcile(parent context.Context) (*application.ReporteReconciliacion, error) {
	ctx, cancel := r.context(parent)
	defer cancel()

	start := time.Now()
	report, err := r.service.RecalcularTodos(ctx)
	if err != nil {
		logging.ErrorContext(ctx, "Reconcile job failed", "error", err)
		return report, err
	}
	logging.InfoContext(ctx, "Reconcile job finished",
		"procesados", report.Procesados,
		"corregidos", report.Corregidos,
		"fallos", len(report.Fallos),
		"duration", time.Since(start),
	)
	return report, nil
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler and registers the configured jobs.
// An invalid cron expression is returned as an error.
func NewScheduler(service Service, cfg Config) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		runner: NewRunner(service, cfg.Timeout),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.SweepSchedule != "" {
		if _, err := c.AddFunc(cfg.SweepSchedule, func() { _, _ = s.runner.RunSweep(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("registering sweep job %q: %w", cfg.SweepSchedule, err)
		}
	}
	if cfg.ReconcileSchedule != "" {
		if _, err := c.AddFunc(cfg.ReconcileSchedule, func() { _, _ = s.runner.RunReconcile(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("registering reconcile job %q: %w", cfg.ReconcileSchedule, err)
		}
	}

	logging.Info("Cron jobs registered",
		"sweep", cfg.SweepSchedule,
		"reconcile", cfg.ReconcileSchedule,
	)
	return s, nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logging.Info("Starting cron scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	logging.Info("Stopping cron scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	logging.Info("Cron scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}
