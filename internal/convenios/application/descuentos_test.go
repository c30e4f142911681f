package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
)

func TestConvenioService_ObtenerDescuentoAplicable(t *testing.T) {
	f := newFixture(t)
	c := f.convenio(t, domain.ConvenioParams{})
	general := f.descuento(t, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 10})
	estudiante := f.descuento(t, domain.DescuentoParams{ConvenioID: ptr(c.ID()), TipoPasajeroID: ptr[int64](2), Porcentaje: 25})

	codigo, err := f.service.CrearCodigoDescuento(f.ctx, domain.CodigoDescuentoParams{
		Codigo:       "INVIERNO",
		ConvenioID:   ptr(c.ID()),
		FechaTermino: date(2025, 6, 30),
	})
	require.NoError(t, err)
	porCodigo := f.descuento(t, domain.DescuentoParams{CodigoDescuentoID: ptr(codigo.ID), Porcentaje: 40})

	tests := []struct {
		name      string
		criterios application.CriteriosDescuento
		want      *domain.Descuento
	}{
		{"passenger type beats general", application.CriteriosDescuento{ConvenioID: ptr(c.ID()), TipoPasajeroID: ptr[int64](2)}, estudiante},
		{"general when no type given", application.CriteriosDescuento{ConvenioID: ptr(c.ID())}, general},
		{"general when type has no rule", application.CriteriosDescuento{ConvenioID: ptr(c.ID()), TipoPasajeroID: ptr[int64](9)}, general},
		{"code by literal wins", application.CriteriosDescuento{ConvenioID: ptr(c.ID()), TipoPasajeroID: ptr[int64](2), Codigo: " invierno"}, porCodigo},
		{"code by id", application.CriteriosDescuento{CodigoDescuentoID: ptr(codigo.ID)}, porCodigo},
		{"unknown code does not fall through", application.CriteriosDescuento{ConvenioID: ptr(c.ID()), Codigo: "NOPE"}, nil},
		{"nothing supplied", application.CriteriosDescuento{}, nil},
		{"unknown convenio", application.CriteriosDescuento{ConvenioID: ptr[int64](999)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.service.ObtenerDescuentoAplicable(f.ctx, tt.criterios)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.Porcentaje, got.Porcentaje)
		})
	}

	t.Run("expired code resolves to nothing", func(t *testing.T) {
		f.clock.Set(time.Date(2025, 7, 1, 8, 0, 0, 0, santiago))
		defer f.clock.Set(time.Date(2025, 6, 15, 12, 0, 0, 0, santiago))

		got, err := f.service.ObtenerDescuentoAplicable(f.ctx, application.CriteriosDescuento{Codigo: "INVIERNO"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("deactivated rules are skipped", func(t *testing.T) {
		require.NoError(t, f.service.EliminarDescuento(f.ctx, estudiante.ID))
		got, err := f.service.ObtenerDescuentoAplicable(f.ctx, application.CriteriosDescuento{ConvenioID: ptr(c.ID()), TipoPasajeroID: ptr[int64](2)})
		require.NoError(t, err)
		assert.Equal(t, general.ID, got.ID)
	})
}

func TestConvenioService_CrearDescuento(t *testing.T) {
	f := newFixture(t)
	c := f.convenio(t, domain.ConvenioParams{})
	first := f.descuento(t, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 10})

	_, err := f.service.CrearDescuento(f.ctx, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 15})
	assert.Equal(t, domain.CodeDescuentoActivoDuplicado, domain.CodeOf(err))

	_, err = f.service.CrearDescuento(f.ctx, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 120})
	assert.Equal(t, domain.CodePorcentajeInvalido, domain.CodeOf(err))

	_, err = f.service.CrearDescuento(f.ctx, domain.DescuentoParams{ConvenioID: ptr[int64](404), Porcentaje: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.service.EliminarDescuento(f.ctx, first.ID))
	replacement := f.descuento(t, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 15})
	assert.NotEqual(t, first.ID, replacement.ID)

	err = f.service.EliminarDescuento(f.ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConvenioService_CompraConCodigo(t *testing.T) {
	setup := func(t *testing.T, maxUsos *int64) (*fixture, *domain.Convenio) {
		f := newFixture(t)
		c := f.convenio(t, domain.ConvenioParams{})
		f.descuento(t, domain.DescuentoParams{ConvenioID: ptr(c.ID()), Porcentaje: 10})
		codigo, err := f.service.CrearCodigoDescuento(f.ctx, domain.CodigoDescuentoParams{
			Codigo:       "PROMO",
			ConvenioID:   ptr(c.ID()),
			FechaTermino: date(2025, 6, 20),
			MaxUsos:      maxUsos,
		})
		require.NoError(t, err)
		f.descuento(t, domain.DescuentoParams{CodigoDescuentoID: ptr(codigo.ID), Porcentaje: 30})
		return f, c
	}
	compraConCodigo := func(f *fixture, convenioID int64) (*domain.Evento, error) {
		return f.service.CrearCompraEvento(f.ctx, application.CrearCompraRequest{
			CompraParams: domain.CompraParams{PasajeroID: 1, EmpresaID: 1, ConvenioID: &convenioID, TarifaBase: 1000},
			Codigo:       "promo",
		})
	}

	t.Run("code discount is applied and usage counted", func(t *testing.T) {
		f, c := setup(t, ptr[int64](1))
		e, err := compraConCodigo(f, c.ID())
		require.NoError(t, err)
		assert.Equal(t, 30, e.PorcentajeDescuento)
		require.NotNil(t, e.CodigoDescuentoID)

		codigo, err := f.service.ObtenerCodigoDescuento(f.ctx, *e.CodigoDescuentoID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), codigo.UsosRealizados)

		_, err = compraConCodigo(f, c.ID())
		assert.Equal(t, domain.CodeCodigoAgotado, domain.CodeOf(err))
		assert.Equal(t, int64(1), f.reload(t, c.ID()).ConsumoTickets())
	})

	t.Run("expired code rejects the purchase", func(t *testing.T) {
		f, c := setup(t, nil)
		f.clock.Set(time.Date(2025, 6, 21, 0, 0, 1, 0, santiago))
		_, err := compraConCodigo(f, c.ID())
		assert.Equal(t, domain.CodeCodigoNoVigente, domain.CodeOf(err))
	})

	t.Run("code of another convenio", func(t *testing.T) {
		f, _ := setup(t, nil)
		other := f.convenio(t, domain.ConvenioParams{Nombre: "Otro"})
		_, err := compraConCodigo(f, other.ID())
		assert.Equal(t, domain.CodeCodigoConvenioDistinto, domain.CodeOf(err))
	})

	t.Run("unknown code", func(t *testing.T) {
		f, c := setup(t, nil)
		convenioID := c.ID()
		_, err := f.service.CrearCompraEvento(f.ctx, application.CrearCompraRequest{
			CompraParams: domain.CompraParams{ConvenioID: &convenioID, TarifaBase: 1000},
			Codigo:       "NADA",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate literal", func(t *testing.T) {
		f, _ := setup(t, nil)
		_, err := f.service.CrearCodigoDescuento(f.ctx, domain.CodigoDescuentoParams{Codigo: "Promo"})
		assert.ErrorIs(t, err, domain.ErrBusinessRule)
	})
}
