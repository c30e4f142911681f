package application

import (
	"context"
	"errors"

	"convenios/internal/common/logging"
	"convenios/internal/convenios/domain"
)

// CriteriosDescuento identifies what a purchase is entitled to. Every field is
// optional. A code may be given by id or by literal.
type CriteriosDescuento struct {
	ConvenioID        *int64
	CodigoDescuentoID *int64
	Codigo            string
	TipoPasajeroID    *int64
}

func (c CriteriosDescuento) tieneCodigo() bool {
	return c.CodigoDescuentoID != nil || domain.NormalizarCodigo(c.Codigo) != ""
}

// ObtenerDescuentoAplicable returns the single discount rule that applies, or
// nil for 0%. First match wins:
//  1. a supplied code that is ACTIVO and inside its window yields its first
//     ACTIVO rule; once a code is supplied the convenio rules are not consulted
//  2. the convenio rule for the passenger type
//  3. the general convenio rule
//
// Only infrastructure failures are returned as errors.
func (s *ConvenioService) ObtenerDescuentoAplicable(ctx context.Context, criterios CriteriosDescuento) (*domain.Descuento, error) {
	return s.resolverDescuento(ctx, s.repos, criterios)
}

func (s *ConvenioService) resolverDescuento(ctx context.Context, repos domain.Repositories, criterios CriteriosDescuento) (*domain.Descuento, error) {
	if criterios.tieneCodigo() {
		codigo, err := buscarCodigo(ctx, repos, criterios)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !codigo.Vigente(s.now()) {
			return nil, nil
		}
		return repos.Descuentos().FindActiveByCodigo(ctx, codigo.ID)
	}

	if criterios.ConvenioID == nil {
		return nil, nil
	}
	if criterios.TipoPasajeroID != nil {
		descuento, err := repos.Descuentos().FindActiveByConvenio(ctx, *criterios.ConvenioID, criterios.TipoPasajeroID)
		if err != nil || descuento != nil {
			return descuento, err
		}
	}
	return repos.Descuentos().FindActiveByConvenio(ctx, *criterios.ConvenioID, nil)
}

func buscarCodigo(ctx context.Context, repos domain.Repositories, criterios CriteriosDescuento) (*domain.CodigoDescuento, error) {
	if criterios.CodigoDescuentoID != nil {
		return repos.Codigos().FindByID(ctx, *criterios.CodigoDescuentoID)
	}
	return repos.Codigos().FindByCodigo(ctx, domain.NormalizarCodigo(criterios.Codigo))
}

// CrearDescuento creates an ACTIVO discount rule. Convenio-level rules are
// created under the convenio row lock, and at most one ACTIVO rule may exist
// per convenio and passenger type.
func (s *ConvenioService) CrearDescuento(ctx context.Context, req domain.DescuentoParams) (*domain.Descuento, error) {
	descuento, err := domain.NewDescuento(req, s.now())
	if err != nil {
		return nil, err
	}

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		if req.ConvenioID != nil {
			if _, err := repos.Convenios().FindByIDForUpdate(ctx, *req.ConvenioID); err != nil {
				return err
			}
		}
		if req.CodigoDescuentoID != nil {
			if _, err := repos.Codigos().FindByID(ctx, *req.CodigoDescuentoID); err != nil {
				return err
			}
		}

		if convenioID, tipo, ok := descuento.ConvenioScope(); ok {
			existing, err := repos.Descuentos().FindActiveByConvenio(ctx, convenioID, tipo)
			if err != nil {
				return err
			}
			if existing != nil {
				return errDescuentoDuplicado(convenioID, existing.ID)
			}
		}

		return repos.Descuentos().Create(ctx, descuento)
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Descuento created",
		"descuento_id", descuento.ID,
		"porcentaje", descuento.Porcentaje,
	)
	return descuento, nil
}

func errDescuentoDuplicado(convenioID, existingID int64) error {
	return domain.NewBusinessError(domain.CodeDescuentoActivoDuplicado,
		"El convenio %d ya tiene un descuento activo (%d) para el mismo tipo de pasajero", convenioID, existingID)
}

// EliminarDescuento soft-deletes a discount rule.
func (s *ConvenioService) EliminarDescuento(ctx context.Context, id int64) error {
	return s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		descuento, err := repos.Descuentos().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !descuento.Desactivar(s.now()) {
			return nil
		}
		return repos.Descuentos().Update(ctx, descuento)
	})
}

// CrearCodigoDescuento creates an ACTIVO discount code.
func (s *ConvenioService) CrearCodigoDescuento(ctx context.Context, req domain.CodigoDescuentoParams) (*domain.CodigoDescuento, error) {
	codigo, err := domain.NewCodigoDescuento(req, s.now())
	if err != nil {
		return nil, err
	}

	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		if req.ConvenioID != nil {
			if _, err := repos.Convenios().FindByID(ctx, *req.ConvenioID); err != nil {
				return err
			}
		}
		if _, err := repos.Codigos().FindByCodigo(ctx, codigo.Codigo); err == nil {
			return domain.NewBusinessError(domain.CodeDatosInvalidos, "El código de descuento %s ya existe", codigo.Codigo)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return repos.Codigos().Create(ctx, codigo)
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Codigo de descuento created",
		"codigo_descuento_id", codigo.ID,
		"codigo", codigo.Codigo,
	)
	return codigo, nil
}

// ObtenerCodigoDescuento returns a discount code by id.
func (s *ConvenioService) ObtenerCodigoDescuento(ctx context.Context, id int64) (*domain.CodigoDescuento, error) {
	return s.repos.Codigos().FindByID(ctx, id)
}
