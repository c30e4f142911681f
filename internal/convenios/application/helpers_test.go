package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
	"convenios/internal/convenios/infrastructure/memory"
)

var santiago = func() *time.Location {
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		panic(err)
	}
	return loc
}()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	ctx     context.Context
	store   *memory.DataStore
	clock   *fakeClock
	service *application.ConvenioService
}

// newFixture wires the service to a fresh memory store with the clock at
// 2025-06-15 12:00 Santiago time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewDataStore()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, santiago)}
	return &fixture{
		ctx:     context.Background(),
		store:   store,
		clock:   clock,
		service: application.NewConvenioService(store, application.WithClock(clock.Now), application.WithLocation(santiago)),
	}
}

func (f *fixture) convenio(t *testing.T, p domain.ConvenioParams) *domain.Convenio {
	t.Helper()
	if p.Nombre == "" {
		p.Nombre = "Convenio " + t.Name()
	}
	if p.EmpresaID == 0 {
		p.EmpresaID = 1
	}
	c, err := f.service.CrearConvenio(f.ctx, p)
	require.NoError(t, err)
	return c
}

func (f *fixture) descuento(t *testing.T, p domain.DescuentoParams) *domain.Descuento {
	t.Helper()
	d, err := f.service.CrearDescuento(f.ctx, p)
	require.NoError(t, err)
	return d
}

func (f *fixture) compra(convenioID int64, tarifa int64) (*domain.Evento, error) {
	return f.service.CrearCompraEvento(f.ctx, application.CrearCompraRequest{
		CompraParams: domain.CompraParams{
			PasajeroID:    10,
			EmpresaID:     1,
			ConvenioID:    &convenioID,
			CiudadOrigen:  "Santiago",
			CiudadDestino: "Valparaíso",
			TarifaBase:    tarifa,
		},
	})
}

func (f *fixture) mustCompra(t *testing.T, convenioID int64, tarifa int64) *domain.Evento {
	t.Helper()
	e, err := f.compra(convenioID, tarifa)
	require.NoError(t, err)
	return e
}

func (f *fixture) reload(t *testing.T, id int64) *domain.Convenio {
	t.Helper()
	c, err := f.service.ObtenerConvenio(f.ctx, id)
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
