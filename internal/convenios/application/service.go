package application

import (
	"context"
	"time"

	"convenios/internal/common/logging"
	"convenios/internal/convenios/domain"
)

// ConvenioService implements the application layer for convenios: admission
// of purchases against caps, refunds, discount resolution, vigency and
// reconciliation. It uses the Atomic pattern from Qonto for transaction
// management.
//
// Key design decisions:
//   - Every mutation of a convenio's counters happens inside one Atomic call
//     that first locks the convenio row
//   - Admission is checked against consumption recomputed from the event log,
//     never only against the cached counters
//   - The clock is injected so date boundaries can be tested
//
// See: https://medium.com/qonto-way/transactions-in-go-hexagonal-architecture-f12c7a817a61
type ConvenioService struct {
	dataStore domain.AtomicExecutor
	repos     domain.Repositories
	clock     func() time.Time
	location  *time.Location
}

// Option customizes a ConvenioService.
type Option func(*ConvenioService)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *ConvenioService) { s.clock = clock }
}

// WithLocation sets the timezone calendar dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *ConvenioService) { s.location = loc }
}

// NewConvenioService creates a new ConvenioService.
// The dataStore must implement both AtomicExecutor and Repositories interfaces.
func NewConvenioService(dataStore interface {
	domain.AtomicExecutor
	domain.Repositories
}, opts ...Option) *ConvenioService {
	s := &ConvenioService{
		dataStore: dataStore,
		repos:     dataStore,
		clock:     time.Now,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConvenioService) now() time.Time {
	return s.clock().In(s.location)
}

// CrearConvenioRequest represents a request to create a convenio.
type CrearConvenioRequest = domain.ConvenioParams

// CrearConvenio creates an ACTIVO convenio with zero consumption.
func (s *ConvenioService) CrearConvenio(ctx context.Context, req CrearConvenioRequest) (*domain.Convenio, error) {
	convenio, err := domain.NewConvenio(req, s.now())
	if err != nil {
		return nil, err
	}

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		return repos.Convenios().Create(ctx, convenio)
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Convenio created",
		"convenio_id", convenio.ID(),
		"empresa_id", convenio.EmpresaID(),
	)
	return convenio, nil
}

// ObtenerConvenio returns the convenio with its cached counters.
func (s *ConvenioService) ObtenerConvenio(ctx context.Context, id int64) (*domain.Convenio, error) {
	return s.repos.Convenios().FindByID(ctx, id)
}

// ActualizarConvenioRequest represents an admin update. Estado is optional;
// setting it to ACTIVO is the only way to reactivate a convenio.
type ActualizarConvenioRequest struct {
	ID     int64
	Params domain.ConvenioParams
	Estado *domain.Estado
}

// ActualizarConvenio replaces the editable attributes of a convenio.
func (s *ConvenioService) ActualizarConvenio(ctx context.Context, req ActualizarConvenioRequest) (*domain.Convenio, error) {
	var result *domain.Convenio

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		convenio, err := repos.Convenios().FindByIDForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := convenio.Actualizar(req.Params, req.Estado, s.now()); err != nil {
			return err
		}
		if err := repos.Convenios().Update(ctx, convenio); err != nil {
			return err
		}
		result = convenio
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Convenio updated",
		"convenio_id", result.ID(),
		"estado", string(result.Estado()),
	)
	return result, nil
}

// EliminarConvenio soft-deletes a convenio by flipping it to INACTIVO.
// Deleting an already inactive convenio is a no-op.
func (s *ConvenioService) EliminarConvenio(ctx context.Context, id int64) error {
	return s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		convenio, err := repos.Convenios().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !convenio.Desactivar(s.now()) {
			return nil
		}
		if err := repos.Convenios().Update(ctx, convenio); err != nil {
			return err
		}
		logging.InfoContext(ctx, "Convenio deactivated", "convenio_id", id, "origen", "admin")
		return nil
	})
}
