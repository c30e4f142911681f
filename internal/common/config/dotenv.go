package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// envFiles lists the dotenv files read by Load, most specific first. ENV_FILE
// replaces the defaults and must exist.
func envFiles() (paths []string, required bool) {
	if f := os.Getenv("ENV_FILE"); f != "" {
		return []string{f}, true
	}
	return []string{".env.local", ".env"}, false
}

// loadEnvFiles reads the files that exist. godotenv never overrides variables
// already in the environment, so the process env beats every file and earlier
// files beat later ones.
func loadEnvFiles(paths []string, required bool) error {
	present := make([]string, 0, len(paths))
	for _, p := range paths {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			present = append(present, p)
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return fmt.Errorf("env file %s: %w", p, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}
