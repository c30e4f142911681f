package application

import (
	"context"

	"convenios/internal/common/logging"
	"convenios/internal/common/metrics"
	"convenios/internal/convenios/domain"
)

// Deactivation origins, used as metric labels and log attributes.
const (
	origenLazy  = "lazy"
	origenSweep = "sweep"
)

// ValidarVigencia reports whether the convenio may admit purchases now.
// A convenio found past its fecha_termino is flipped to INACTIVO and persisted
// in its own transaction. A convenio whose fecha_inicio is still in the future
// is reported as not vigent but keeps its status.
func (s *ConvenioService) ValidarVigencia(ctx context.Context, id int64) (bool, error) {
	convenio, err := s.repos.Convenios().FindByID(ctx, id)
	if err != nil {
		return false, err
	}

	vigencia := convenio.EvaluarVigencia(s.now())
	if vigencia == domain.VigenciaVencida {
		if _, err := s.desactivarSiVencido(ctx, id, origenLazy); err != nil {
			return false, err
		}
	}
	return vigencia.Vigente(), nil
}

// desactivarSiVencido re-evaluates the convenio under its row lock and flips
// it to INACTIVO when expired. Returns true when it changed the status.
func (s *ConvenioService) desactivarSiVencido(ctx context.Context, id int64, origen string) (bool, error) {
	var changed bool

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		convenio, err := repos.Convenios().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if convenio.EvaluarVigencia(now) != domain.VigenciaVencida {
			return nil
		}
		convenio.Desactivar(now)
		if err := repos.Convenios().Update(ctx, convenio); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		metrics.RecordConvenioDesactivado(origen)
		logging.InfoContext(ctx, "Convenio expired and deactivated",
			"convenio_id", id,
			"origen", origen,
		)
	}
	return changed, nil
}

// VerificarLimites checks, without writing, whether one more ticket granting
// montoDescuento of discount would be admitted. It returns true or the
// BusinessError that a purchase would fail with.
func (s *ConvenioService) VerificarLimites(ctx context.Context, id int64, montoDescuento int64) (bool, error) {
	if montoDescuento < 0 {
		return false, domain.NewBusinessError(domain.CodeDatosInvalidos,
			"El monto de descuento no puede ser negativo (recibido %d)", montoDescuento)
	}
	vigente, err := s.ValidarVigencia(ctx, id)
	if err != nil {
		return false, err
	}
	if !vigente {
		return false, errConvenioNoVigente(id)
	}

	convenio, err := s.repos.Convenios().FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !convenio.TieneTopes() {
		return true, nil
	}

	consumo, err := s.consumoActual(ctx, s.repos, id)
	if err != nil {
		return false, err
	}
	if err := convenio.VerificarAdmision(consumo, montoDescuento); err != nil {
		return false, err
	}
	return true, nil
}

func errConvenioNoVigente(id int64) error {
	return domain.NewBusinessError(domain.CodeConvenioNoVigente,
		"El convenio %d está vencido o inactivo", id)
}

// ResultadoBarrido summarizes a sweep run.
type ResultadoBarrido struct {
	// Total is the number of convenios flipped to INACTIVO.
	Total     int `json:"total"`
	Revisados int `json:"revisados"`
	Fallidos  int `json:"fallidos"`
}

// DesactivarConveniosVencidos flips every expired ACTIVO convenio to INACTIVO,
// one short transaction per convenio. A failure on one convenio is logged and
// the sweep continues. Running it twice in a row deactivates nothing the
// second time.
func (s *ConvenioService) DesactivarConveniosVencidos(ctx context.Context) (ResultadoBarrido, error) {
	var result ResultadoBarrido

	ids, err := s.repos.Convenios().ListIDsByEstado(ctx, domain.EstadoActivo)
	if err != nil {
		return result, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Revisados++
		changed, err := s.desactivarSiVencido(ctx, id, origenSweep)
		if err != nil {
			result.Fallidos++
			logging.ErrorContext(ctx, "Failed to deactivate expired convenio",
				"convenio_id", id,
				"error", err,
			)
			continue
		}
		if changed {
			result.Total++
		}
	}

	logging.InfoContext(ctx, "Expired convenios sweep finished",
		"total", result.Total,
		"revisados", result.Revisados,
		"fallidos", result.Fallidos,
	)
	return result, nil
}
