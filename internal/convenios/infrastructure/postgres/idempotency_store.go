package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"convenios/internal/convenios/domain"
)

// IdempotencyStore implements domain.IdempotencyStore using PostgreSQL.
type IdempotencyStore struct {
	db Executor
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(db Executor) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Get retrieves an idempotency entry by key.
// Returns (nil, nil) when no entry exists; absence is not treated as an error.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyEntry, error) {
	var entry domain.IdempotencyEntry
	err := s.db.QueryRow(ctx, `
		SELECT idempotency_key, operation, resource_id, created_at
		FROM convenios.idempotency_keys
		WHERE idempotency_key = $1`, key,
	).Scan(&entry.IdempotencyKey, &entry.Operation, &entry.ResourceID, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return &entry, nil
}

// SetIfAbsent atomically stores an entry if no entry exists.
// It uses a CTE to attempt insert and return the existing row in a single round-trip.
// Returns (true, entry, nil) if inserted, or (false, existing, nil) if already present.
func (s *IdempotencyStore) SetIfAbsent(ctx context.Context, entry *domain.IdempotencyEntry) (bool, *domain.IdempotencyEntry, error) {
	var (
		stored   domain.IdempotencyEntry
		inserted bool
	)
	err := s.db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO convenios.idempotency_keys (idempotency_key, operation, resource_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING idempotency_key, operation, resource_id, created_at
		)
		SELECT idempotency_key, operation, resource_id, created_at, TRUE AS inserted FROM ins
		UNION ALL
		SELECT idempotency_key, operation, resource_id, created_at, FALSE AS inserted
		FROM convenios.idempotency_keys
		WHERE idempotency_key = $1 AND NOT EXISTS (SELECT 1 FROM ins)
		LIMIT 1`,
		entry.IdempotencyKey,
		entry.Operation,
		entry.ResourceID,
		entry.CreatedAt,
	).Scan(&stored.IdempotencyKey, &stored.Operation, &stored.ResourceID, &stored.CreatedAt, &inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflicting row was committed after this statement's snapshot.
		existing, getErr := s.Get(ctx, entry.IdempotencyKey)
		if getErr != nil {
			return false, nil, getErr
		}
		if existing == nil {
			return false, nil, fmt.Errorf("idempotency key %q conflicted but is not visible", entry.IdempotencyKey)
		}
		return false, existing, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("insert idempotency key: %w", err)
	}
	return inserted, &stored, nil
}

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)
