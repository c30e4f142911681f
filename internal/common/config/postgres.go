package config

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "convenios"

// PoolConfig translates the DB_* settings into a pgxpool config. Sessions run
// in UTC; calendar dates are interpreted with Location, never by the server.
func (c *Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pc.MaxConns = int32(c.DBMaxConns)
	pc.MinConns = int32(c.DBMinConns)
	pc.MaxConnLifetime = time.Duration(c.DBMaxConnLifetime) * time.Minute
	pc.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTime) * time.Minute

	params := pc.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	params["timezone"] = "UTC"
	if c.DBLockTimeoutMS > 0 {
		params["lock_timeout"] = strconv.Itoa(c.DBLockTimeoutMS)
	}
	return pc, nil
}

// NewPostgresPool opens the pool and pings it, so a bad DATABASE_URL fails at startup.
func (c *Config) NewPostgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	pc, err := c.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
