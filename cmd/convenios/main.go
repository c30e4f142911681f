// Command convenios serves the convenio HTTP API and, when
// SCHEDULER_ENABLED is set, runs the expiry sweep and reconciliation on cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"convenios/internal/common/config"
	"convenios/internal/common/logging"
	"convenios/internal/common/metrics"
	"convenios/internal/common/types"
	convenioapi "convenios/internal/convenios/api"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
	"convenios/internal/convenios/infrastructure/memory"
	"convenios/internal/convenios/infrastructure/postgres"
	"convenios/internal/convenios/jobs"
)

const (
	requestTimeout  = 5 * time.Second
	jobTimeout      = 30 * time.Minute
	shutdownTimeout = 30 * time.Second
)

type dataStore interface {
	domain.AtomicExecutor
	domain.Repositories
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "convenios",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Service stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	logging.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	startupCtx := logging.WithCorrelationID(ctx, types.NewCorrelationID())
	logging.InfoContext(startupCtx, "Starting convenios service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage", cfg.Storage,
		"timezone", cfg.Timezone,
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var (
		store dataStore
		pool  *pgxpool.Pool
	)
	if cfg.UsesMemoryStorage() {
		logging.WarnContext(startupCtx, "Using in-memory storage; data is lost on restart")
		store = memory.NewDataStore()
	} else {
		pool, err = cfg.NewPostgresPool(startupCtx)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewDataStore(pool)
	}

	service := application.NewConvenioService(store, application.WithLocation(loc))

	var scheduler *jobs.Scheduler
	if cfg.SchedulerEnabled {
		scheduler, err = jobs.NewScheduler(service, jobs.Config{
			Location:          loc,
			SweepSchedule:     cfg.SweepSchedule,
			ReconcileSchedule: cfg.ReconcileSchedule,
			Timeout:           jobTimeout,
		})
		if err != nil {
			return fmt.Errorf("configuring scheduler: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newRouter(service, readiness{cfg: cfg, pool: pool, scheduler: scheduler}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("HTTP server listening", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// newRouter wires probes, metrics and the convenio API behind the
// metrics -> correlation middleware chain.
func newRouter(service *application.ConvenioService, ready readiness) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.Handle("GET /ready", ready)
	mux.Handle("GET /metrics", metrics.Handler())

	convenioapi.NewHandler(service).RegisterRoutes(mux)

	return metrics.Middleware(convenioapi.CorrelationMiddleware(requestTimeout, mux))
}

// readiness reports whether Postgres answers. The memory store is always ready.
type readiness struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	scheduler *jobs.Scheduler
}

func (rd readiness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":      "ready",
		"environment": rd.cfg.Environment,
		"storage":     rd.cfg.Storage,
	}
	if rd.scheduler != nil {
		body["cron_jobs"] = rd.scheduler.Jobs()
	}
	if rd.pool != nil {
		stat := rd.pool.Stat()
		body["db_conns"] = map[string]int32{
			"total":    stat.TotalConns(),
			"idle":     stat.IdleConns(),
			"acquired": stat.AcquiredConns(),
		}
		if err := rd.pool.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["error"] = err.Error()
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
