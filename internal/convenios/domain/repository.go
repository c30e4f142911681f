package domain

import (
	"context"
	"time"
)

// ConvenioRepository defines the interface for convenio persistence.
type ConvenioRepository interface {
	// Create inserts a new convenio and assigns its ID.
	Create(ctx context.Context, c *Convenio) error
	// Update persists changes.
	// Implementations return ErrOptimisticLock if the stored version is not c.ExpectedVersion().
	Update(ctx context.Context, c *Convenio) error
	// FindByID returns a NotFoundError when no record exists.
	FindByID(ctx context.Context, id int64) (*Convenio, error)
	// FindByIDForUpdate is FindByID plus an exclusive row lock held until the
	// surrounding transaction ends. Concurrent admissions on the same convenio
	// serialize here.
	FindByIDForUpdate(ctx context.Context, id int64) (*Convenio, error)
	// ListIDs returns every convenio id in ascending order.
	ListIDs(ctx context.Context) ([]int64, error)
	// ListIDsByEstado returns the ids of convenios in the given status, ascending.
	ListIDsByEstado(ctx context.Context, estado Estado) ([]int64, error)
}

// DescuentoRepository defines the interface for discount rule persistence.
type DescuentoRepository interface {
	// Create inserts the rule and assigns its ID. Returns a BusinessError with
	// CodeDescuentoActivoDuplicado if another ACTIVO rule holds the same
	// convenio scope.
	Create(ctx context.Context, d *Descuento) error
	Update(ctx context.Context, d *Descuento) error
	FindByID(ctx context.Context, id int64) (*Descuento, error)
	// FindActiveByConvenio returns the ACTIVO convenio-level rule for the
	// passenger type, or the general rule when tipoPasajeroID is nil.
	// Returns (nil, nil) when there is none.
	FindActiveByConvenio(ctx context.Context, convenioID int64, tipoPasajeroID *int64) (*Descuento, error)
	// FindActiveByCodigo returns the lowest-id ACTIVO rule attached to the
	// code, or (nil, nil).
	FindActiveByCodigo(ctx context.Context, codigoID int64) (*Descuento, error)
}

// CodigoDescuentoRepository defines the interface for discount code persistence.
type CodigoDescuentoRepository interface {
	Create(ctx context.Context, c *CodigoDescuento) error
	Update(ctx context.Context, c *CodigoDescuento) error
	FindByID(ctx context.Context, id int64) (*CodigoDescuento, error)
	// FindByCodigo looks the code up by its normalized literal.
	FindByCodigo(ctx context.Context, codigo string) (*CodigoDescuento, error)
	// FindByIDForUpdate locks the code row so usage counting is serialized.
	FindByIDForUpdate(ctx context.Context, id int64) (*CodigoDescuento, error)
}

// EventoRepository is the append-only event store.
type EventoRepository interface {
	// Append inserts the event and assigns its ID.
	Append(ctx context.Context, e *Evento) error
	// MarkDeleted sets the soft-delete flag. It is the only mutation allowed.
	MarkDeleted(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (*Evento, error)
	// ListByConvenio returns every event of the convenio, deleted ones
	// included, in ascending id order.
	ListByConvenio(ctx context.Context, convenioID int64) ([]*Evento, error)
	// HasConfirmedRefund reports whether a confirmed, non-deleted DEVOLUCION
	// already references origenID.
	HasConfirmedRefund(ctx context.Context, origenID int64) (bool, error)
}

// IdempotencyEntry represents a stored idempotency record.
type IdempotencyEntry struct {
	IdempotencyKey string
	Operation      string
	ResourceID     int64
	CreatedAt      time.Time
}

// IdempotencyStore defines the interface for idempotency key storage.
type IdempotencyStore interface {
	// Get returns (nil, nil) when no entry exists.
	Get(ctx context.Context, key string) (*IdempotencyEntry, error)
	// SetIfAbsent atomically stores an entry if no entry exists.
	// Returns (true, entry, nil) if created, (false, existing, nil) if already exists.
	SetIfAbsent(ctx context.Context, entry *IdempotencyEntry) (created bool, existing *IdempotencyEntry, err error)
}

// Repositories provides access to all repositories within a transaction.
// This is used with the Atomic pattern to ensure all operations share the same transaction.
type Repositories interface {
	Convenios() ConvenioRepository
	Descuentos() DescuentoRepository
	Codigos() CodigoDescuentoRepository
	Eventos() EventoRepository
	IdempotencyStore() IdempotencyStore
}

// AtomicCallback is the function signature for atomic operations.
// Any error returned will cause the transaction to be rolled back.
type AtomicCallback func(repos Repositories) error

// The service is responsible for requesting an atomic operation with a set of
// procedures defined in the callback. All other concerns like commits and rollbacks
// are left for the repository to implement.
//
// Example usage:
//
//	err := executor.Atomic(ctx, func(repos Repositories) error {
//	    convenio, err := repos.Convenios().FindByIDForUpdate(ctx, id)
//	    if err != nil {
//	        return err
//	    }
//	    convenio.RegistrarCompra(montoDescuento, now)
//	    return repos.Convenios().Update(ctx, convenio)
//	})
type AtomicExecutor interface {
	// Atomic executes the callback within a database transaction.
	// If the callback returns nil, the transaction is committed.
	// If the callback returns an error, the transaction is rolled back.
	Atomic(ctx context.Context, fn AtomicCallback) error
}
