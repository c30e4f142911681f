package memory

import (
	"context"
	"sort"
	"sync"

	"convenios/internal/convenios/domain"
)

// DataStore implements domain.AtomicExecutor and domain.Repositories in memory.
// It backs the service in tests and in STORAGE=memory mode.
// Concurrency: Atomic holds an exclusive lock for the whole callback, which
// gives every transaction the isolation a row lock would.
type DataStore struct {
	mu sync.Mutex
	state
}

type sequences struct {
	convenio  int64
	descuento int64
	codigo    int64
	evento    int64
}

// state holds one copy of every table. The committed store and each
// transaction's staging area are both a state.
type state struct {
	convenios   map[int64]*domain.Convenio
	descuentos  map[int64]*domain.Descuento
	codigos     map[int64]*domain.CodigoDescuento
	eventos     map[int64]*domain.Evento
	idempotency map[string]*domain.IdempotencyEntry
	seq         sequences
}

func newState() state {
	return state{
		convenios:   make(map[int64]*domain.Convenio),
		descuentos:  make(map[int64]*domain.Descuento),
		codigos:     make(map[int64]*domain.CodigoDescuento),
		eventos:     make(map[int64]*domain.Evento),
		idempotency: make(map[string]*domain.IdempotencyEntry),
	}
}

// NewDataStore creates a new in-memory DataStore.
func NewDataStore() *DataStore {
	return &DataStore{state: newState()}
}

// Atomic executes the callback atomically.
// It locks the store, runs the callback against staged copies, and commits
// staged changes only if the callback succeeds.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	tx := &transaction{parent: &ds.state, staged: newState()}
	tx.staged.seq = ds.seq

	if err := fn(tx); err != nil {
		return err
	}

	// Commit: apply staged changes
	for k, v := range tx.staged.convenios {
		ds.convenios[k] = v
	}
	for k, v := range tx.staged.descuentos {
		ds.descuentos[k] = v
	}
	for k, v := range tx.staged.codigos {
		ds.codigos[k] = v
	}
	for k, v := range tx.staged.eventos {
		ds.eventos[k] = v
	}
	for k, v := range tx.staged.idempotency {
		ds.idempotency[k] = v
	}
	ds.seq = tx.staged.seq
	return nil
}

// Non-transactional access runs each call in its own Atomic.

func (ds *DataStore) Convenios() domain.ConvenioRepository {
	return &convenioRepository{view: ds.autocommit}
}

func (ds *DataStore) Descuentos() domain.DescuentoRepository {
	return &descuentoRepository{view: ds.autocommit}
}

func (ds *DataStore) Codigos() domain.CodigoDescuentoRepository {
	return &codigoRepository{view: ds.autocommit}
}

func (ds *DataStore) Eventos() domain.EventoRepository {
	return &eventoRepository{view: ds.autocommit}
}

func (ds *DataStore) IdempotencyStore() domain.IdempotencyStore {
	return &idempotencyStore{view: ds.autocommit}
}

func (ds *DataStore) autocommit(ctx context.Context, fn func(tx *transaction) error) error {
	return ds.Atomic(ctx, func(repos domain.Repositories) error {
		return fn(repos.(*transaction))
	})
}

// transaction provides transaction isolation for memory operations.
type transaction struct {
	parent *state
	staged state
}

func (tx *transaction) run(_ context.Context, fn func(tx *transaction) error) error {
	return fn(tx)
}

func (tx *transaction) Convenios() domain.ConvenioRepository {
	return &convenioRepository{view: tx.run}
}

func (tx *transaction) Descuentos() domain.DescuentoRepository {
	return &descuentoRepository{view: tx.run}
}

func (tx *transaction) Codigos() domain.CodigoDescuentoRepository {
	return &codigoRepository{view: tx.run}
}

func (tx *transaction) Eventos() domain.EventoRepository {
	return &eventoRepository{view: tx.run}
}

func (tx *transaction) IdempotencyStore() domain.IdempotencyStore {
	return &idempotencyStore{view: tx.run}
}

// lookup checks the staged table first, then the committed one.
func lookup[K comparable, V any](staged, parent map[K]V, key K) (V, bool) {
	if v, ok := staged[key]; ok {
		return v, true
	}
	v, ok := parent[key]
	return v, ok
}

// merged returns every row visible to the transaction, staged rows winning,
// ordered by key.
func merged[V any](staged, parent map[int64]V) []V {
	rows := make(map[int64]V, len(parent)+len(staged))
	for k, v := range parent {
		rows[k] = v
	}
	for k, v := range staged {
		rows[k] = v
	}
	keys := make([]int64, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, rows[k])
	}
	return out
}

// Verify interface implementations
var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
	_ domain.Repositories   = (*transaction)(nil)
)
