package application

import (
	"context"

	"convenios/internal/common/logging"
	"convenios/internal/common/metrics"
	"convenios/internal/convenios/domain"
)

// consumoActual recomputes the convenio's consumption from its event log.
func (s *ConvenioService) consumoActual(ctx context.Context, repos domain.Repositories, convenioID int64) (domain.Consumo, error) {
	eventos, err := repos.Eventos().ListByConvenio(ctx, convenioID)
	if err != nil {
		return domain.Consumo{}, err
	}
	return domain.CalcularConsumo(eventos), nil
}

// CalcularConsumo recomputes consumption from the event log without writing.
// Returns a NotFoundError for an unknown convenio.
func (s *ConvenioService) CalcularConsumo(ctx context.Context, id int64) (domain.Consumo, error) {
	if _, err := s.repos.Convenios().FindByID(ctx, id); err != nil {
		return domain.Consumo{}, err
	}
	return s.consumoActual(ctx, s.repos, id)
}

// ResultadoRecalculo reports one convenio's reconciliation.
type ResultadoRecalculo struct {
	ConvenioID int64          `json:"convenio_id"`
	Anterior   domain.Consumo `json:"anterior"`
	Actual     domain.Consumo `json:"actual"`
	Corregido  bool           `json:"corregido"`
}

// RecalcularConsumo overwrites the cached counters of a convenio with the
// value recomputed from its event log, under the convenio row lock. Running it
// twice with no events in between leaves the counters unchanged.
func (s *ConvenioService) RecalcularConsumo(ctx context.Context, id int64) (ResultadoRecalculo, error) {
	result := ResultadoRecalculo{ConvenioID: id}

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		convenio, err := repos.Convenios().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		consumo, err := s.consumoActual(ctx, repos, id)
		if err != nil {
			return err
		}

		result.Anterior = convenio.Consumo()
		result.Corregido = convenio.AplicarConsumo(consumo, s.now())
		result.Actual = convenio.Consumo()
		if !result.Corregido {
			return nil
		}
		return repos.Convenios().Update(ctx, convenio)
	})
	if err != nil {
		return ResultadoRecalculo{ConvenioID: id}, err
	}

	if result.Corregido {
		logging.WarnContext(ctx, "Convenio counters drifted and were corrected",
			"convenio_id", id,
			"tickets_anterior", result.Anterior.Tickets,
			"monto_anterior", result.Anterior.Monto,
			"tickets", result.Actual.Tickets,
			"monto", result.Actual.Monto,
		)
	}
	return result, nil
}

// FalloReconciliacion records a convenio the reconciliation could not process.
type FalloReconciliacion struct {
	ConvenioID int64  `json:"convenio_id"`
	Error      string `json:"error"`
}

// ReporteReconciliacion summarizes a full reconciliation run.
type ReporteReconciliacion struct {
	Procesados int                   `json:"procesados"`
	Corregidos int                   `json:"corregidos"`
	Resultados []ResultadoRecalculo  `json:"resultados"`
	Fallos     []FalloReconciliacion `json:"fallos"`
}

// RecalcularTodos reconciles every convenio. A failure on one convenio is
// logged and reported, and the run continues with the next. Only a failure to
// list convenios or a cancelled context stops it early.
func (s *ConvenioService) RecalcularTodos(ctx context.Context) (*ReporteReconciliacion, error) {
	ids, err := s.repos.Convenios().ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReporteReconciliacion{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := s.RecalcularConsumo(ctx, id)
		metrics.RecordReconciliacion(result.Corregido, err)
		if err != nil {
			logging.ErrorContext(ctx, "Failed to reconcile convenio",
				"convenio_id", id,
				"error", err,
			)
			report.Fallos = append(report.Fallos, FalloReconciliacion{ConvenioID: id, Error: err.Error()})
			continue
		}
		report.Procesados++
		if result.Corregido {
			report.Corregidos++
		}
		report.Resultados = append(report.Resultados, result)
	}

	logging.InfoContext(ctx, "Reconciliation finished",
		"procesados", report.Procesados,
		"corregidos", report.Corregidos,
		"fallos", len(report.Fallos),
	)
	return report, nil
}
