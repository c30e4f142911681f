// Command migrate manages the convenios schema using the migrations embedded
// in the binary.
//
//	migrate up [N]
//	migrate down [N]
//	migrate force V
//	migrate drop -yes
//	migrate version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"convenios/internal/common/config"
	"convenios/internal/common/logging"
	"convenios/migrations"
)

func usage() {
	fmt.Println("Usage: migrate [-yes] <command> [arg]")
	fmt.Println("Commands:")
	fmt.Println("  up [N]     Apply all pending migrations, or the next N")
	fmt.Println("  down [N]   Roll back N migrations (default 1)")
	fmt.Println("  force V    Mark version V as applied and clean after a failed run")
	fmt.Println("  drop       Drop every object in the database (needs -yes)")
	fmt.Println("  version    Show the current migration version")
}

func main() {
	yes := flag.Bool("yes", false, "confirm destructive commands")
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
		Service: "migrate",
	})

	m, err := migrations.New(cfg.DatabaseURL)
	if err != nil {
		logging.Error("Failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, args[0], args[1:], *yes); err != nil {
		logging.Error("Migration command failed", "command", args[0], "error", err)
		m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, command string, args []string, yes bool) error {
	switch command {
	case "up":
		n, err := optionalCount(args, 0)
		if err != nil {
			return err
		}
		if n > 0 {
			err = m.Steps(n)
		} else {
			err = m.Up()
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Info("Schema already up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logging.Info("Migrations applied")

	case "down":
		n, err := optionalCount(args, 1)
		if err != nil {
			return err
		}
		if err := m.Steps(-n); err != nil {
			return err
		}
		logging.Info("Migrations rolled back", "steps", n)

	case "force":
		if len(args) != 1 {
			return errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := m.Force(v); err != nil {
			return err
		}
		logging.Warn("Migration version forced", "version", v)

	case "drop":
		if !yes {
			return errors.New("drop removes all convenio data; rerun with -yes")
		}
		logging.Warn("Dropping all tables")
		if err := m.Drop(); err != nil {
			return err
		}
		logging.Info("All tables dropped")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Version: none")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func optionalCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid step count %q", args[0])
	}
	return n, nil
}
