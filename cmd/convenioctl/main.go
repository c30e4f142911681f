// Command convenioctl runs the maintenance operations of the convenios
// service once, for cron hosts or manual repair.
//
//	convenioctl sweep
//	convenioctl reconcile [-convenio N]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convenios/internal/common/config"
	"convenios/internal/common/logging"
	"convenios/internal/common/types"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/infrastructure/postgres"
	"convenios/internal/convenios/jobs"
)

func usage() {
	fmt.Println("Usage: convenioctl <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  sweep                    Deactivate every expired convenio")
	fmt.Println("  reconcile [-convenio N]  Recompute consumption counters from the event log")
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "convenioctl",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, types.NewCorrelationID())

	if err := run(ctx, cfg, args[0], args[1:]); err != nil {
		logging.ErrorContext(ctx, "Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := cfg.NewPostgresPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	service := application.NewConvenioService(postgres.NewDataStore(pool), application.WithLocation(loc))
	runner := jobs.NewRunner(service, 0)

	switch command {
	case "sweep":
		result, err := runner.RunSweep(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		convenioID := fs.Int64("convenio", 0, "reconcile only this convenio")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *convenioID > 0 {
			result, err := service.RecalcularConsumo(logging.WithConvenioID(ctx, *convenioID), *convenioID)
			if err != nil {
				return err
			}
			return printJSON(result)
		}
		start := time.Now()
		report, err := runner.RunReconcile(ctx)
		if err != nil {
			return err
		}
		if len(report.Fallos) > 0 {
			_ = printJSON(report)
			return fmt.Errorf("%d convenios failed, %d reconciled in %s", len(report.Fallos), report.Procesados, time.Since(start).Round(time.Millisecond))
		}
		return printJSON(report)

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
