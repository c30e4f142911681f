package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"convenios/internal/common/logging"
	"convenios/internal/common/metrics"
	"convenios/internal/convenios/domain"
)

// DataStore implements domain.AtomicExecutor on a pgx pool. Outside Atomic the
// repositories run each statement in autocommit.
type DataStore struct {
	pool             *pgxpool.Pool
	convenioRepo     *ConvenioRepository
	descuentoRepo    *DescuentoRepository
	codigoRepo       *CodigoDescuentoRepository
	eventoRepo       *EventoRepository
	idempotencyStore *IdempotencyStore
}

// NewDataStore creates a new DataStore with the given connection pool.
func NewDataStore(pool *pgxpool.Pool) *DataStore {
	return newDataStore(pool, pool)
}

func newDataStore(pool *pgxpool.Pool, db Executor) *DataStore {
	return &DataStore{
		pool:             pool,
		convenioRepo:     NewConvenioRepository(db),
		descuentoRepo:    NewDescuentoRepository(db),
		codigoRepo:       NewCodigoDescuentoRepository(db),
		eventoRepo:       NewEventoRepository(db),
		idempotencyStore: NewIdempotencyStore(db),
	}
}

// Convenios returns the convenio repository.
func (ds *DataStore) Convenios() domain.ConvenioRepository {
	return ds.convenioRepo
}

// Descuentos returns the discount rule repository.
func (ds *DataStore) Descuentos() domain.DescuentoRepository {
	return ds.descuentoRepo
}

// Codigos returns the discount code repository.
func (ds *DataStore) Codigos() domain.CodigoDescuentoRepository {
	return ds.codigoRepo
}

// Eventos returns the event store.
func (ds *DataStore) Eventos() domain.EventoRepository {
	return ds.eventoRepo
}

// IdempotencyStore returns the idempotency store.
func (ds *DataStore) IdempotencyStore() domain.IdempotencyStore {
	return ds.idempotencyStore
}

func (ds *DataStore) withTx(tx pgx.Tx) *DataStore {
	return newDataStore(ds.pool, tx)
}

const maxTxAttempts = 3

// Atomic runs fn in one transaction: committed when fn returns nil, rolled
// back on error or panic. Transactions aborted by a deadlock or serialization
// failure are rerun from scratch, so fn must not keep state across attempts.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) error {
	for attempt := 1; ; attempt++ {
		err := ds.atomicOnce(ctx, fn)
		sqlstate, transient := transientFailure(err)
		if !transient || attempt == maxTxAttempts || ctx.Err() != nil {
			return err
		}
		metrics.RecordTransactionRetry(sqlstate)
		logging.WarnContext(ctx, "Retrying transaction", "sqlstate", sqlstate, "attempt", attempt)
	}
}

func (ds *DataStore) atomicOnce(ctx context.Context, fn domain.AtomicCallback) (err error) {
	start := time.Now()
	tx, err := ds.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			metrics.RecordTransaction("atomic", "panic", time.Since(start))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
			}
			metrics.RecordTransaction("atomic", "rollback", time.Since(start))
			return
		}
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit transaction: %w", err)
			metrics.RecordTransaction("atomic", "rollback", time.Since(start))
			return
		}
		metrics.RecordTransactionDuration("atomic", time.Since(start))
	}()

	return fn(ds.withTx(tx))
}

// Verify interface implementations.
var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
