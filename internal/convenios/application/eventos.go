package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"convenios/internal/common/logging"
	"convenios/internal/common/metrics"
	"convenios/internal/convenios/domain"
)

// Idempotency operations.
const (
	opCompra     = "compra"
	opDevolucion = "devolucion"
)

// idempotentReplay aborts a transaction that lost the race to store an
// idempotency key, so the winner's event is returned instead.
type idempotentReplay struct {
	eventoID int64
}

// claveReutilizada rejects a key already bound to another kind of operation.
func claveReutilizada(key, op string) error {
	return domain.NewBusinessError(domain.CodeClaveReutilizada,
		"La clave de idempotencia %q ya fue usada para una operación de %s", key, op)
}

func (e *idempotentReplay) Error() string {
	return fmt.Sprintf("idempotent replay of evento %d", e.eventoID)
}

// CrearCompraRequest represents a purchase (or exchange) to be admitted.
// The discount is resolved from ConvenioID, the code and TipoPasajeroID.
type CrearCompraRequest struct {
	domain.CompraParams
	Codigo         string
	TipoPasajeroID *int64
	IdempotencyKey string
}

// CrearCompraEvento admits a purchase and records it.
// This operation:
//   - Replays the stored event when the idempotency key was already used
//   - Resolves the applicable discount and derives the amount paid
//   - Checks vigency, flipping an expired convenio to INACTIVO
//   - Within a single atomic transaction: locks the convenio, recomputes its
//     consumption from the event log, checks the caps, consumes one use of the
//     discount code, appends the event and increments the cached counters
//
// A rejected purchase leaves no event and no counter change behind.
func (s *ConvenioService) CrearCompraEvento(ctx context.Context, req CrearCompraRequest) (*domain.Evento, error) {
	if replay, err := s.replay(ctx, req.IdempotencyKey, opCompra); replay != nil || err != nil {
		return replay, err
	}

	criterios := CriteriosDescuento{
		ConvenioID:        req.ConvenioID,
		CodigoDescuentoID: req.CodigoDescuentoID,
		Codigo:            req.Codigo,
		TipoPasajeroID:    req.TipoPasajeroID,
	}
	descuento, err := s.resolverDescuento(ctx, s.repos, criterios)
	if err != nil {
		return nil, err
	}
	porcentaje := 0
	if descuento != nil {
		porcentaje = descuento.Porcentaje
	}

	if req.ConvenioID != nil {
		vigente, err := s.ValidarVigencia(ctx, *req.ConvenioID)
		if err != nil {
			return nil, err
		}
		if !vigente {
			metrics.RecordAdmisionRechazada(domain.CodeConvenioNoVigente)
			return nil, errConvenioNoVigente(*req.ConvenioID)
		}
	}

	var evento *domain.Evento
	start := time.Now()
	err = s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		now := s.now()
		params := req.CompraParams

		var convenio *domain.Convenio
		if params.ConvenioID != nil {
			convenio, err = repos.Convenios().FindByIDForUpdate(ctx, *params.ConvenioID)
			if err != nil {
				return err
			}
			if !convenio.EvaluarVigencia(now).Vigente() {
				return errConvenioNoVigente(convenio.ID())
			}
		}

		if criterios.tieneCodigo() {
			codigo, err := s.usarCodigo(ctx, repos, criterios, params.ConvenioID, now)
			if err != nil {
				return err
			}
			params.CodigoDescuentoID = &codigo.ID
		}

		evento, err = domain.NewCompra(params, porcentaje, now)
		if err != nil {
			return err
		}

		if convenio != nil && convenio.TieneTopes() {
			consumo, err := s.consumoActual(ctx, repos, convenio.ID())
			if err != nil {
				return err
			}
			if err := convenio.VerificarAdmision(consumo, evento.MontoDescuento()); err != nil {
				return err
			}
		}

		if err := repos.Eventos().Append(ctx, evento); err != nil {
			return err
		}

		if convenio != nil {
			convenio.RegistrarCompra(evento.MontoDescuento(), now)
			if err := repos.Convenios().Update(ctx, convenio); err != nil {
				return err
			}
		}

		return s.guardarIdempotencia(ctx, repos, req.IdempotencyKey, opCompra, evento.ID, now)
	})
	metrics.RecordTransactionDuration("crear_compra", time.Since(start))

	if replay, ok, replayErr := s.replayed(ctx, err); ok {
		return replay, replayErr
	}
	if err != nil {
		if code := domain.CodeOf(err); code != "" {
			metrics.RecordAdmisionRechazada(code)
		}
		return nil, err
	}

	metrics.RecordEvento(string(evento.Tipo))
	logging.InfoContext(ctx, "Purchase admitted",
		"evento_id", evento.ID,
		"tipo", string(evento.Tipo),
		"convenio_id", ptrValue(evento.ConvenioID),
		"porcentaje", evento.PorcentajeDescuento,
		"monto_descuento", evento.MontoDescuento(),
	)
	return evento, nil
}

// usarCodigo locks the discount code, checks it belongs to the purchase's
// convenio and consumes one use.
func (s *ConvenioService) usarCodigo(ctx context.Context, repos domain.Repositories, criterios CriteriosDescuento, convenioID *int64, now time.Time) (*domain.CodigoDescuento, error) {
	found, err := buscarCodigo(ctx, repos, criterios)
	if err != nil {
		return nil, err
	}
	codigo, err := repos.Codigos().FindByIDForUpdate(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if codigo.ConvenioID != nil && (convenioID == nil || *codigo.ConvenioID != *convenioID) {
		return nil, domain.NewBusinessError(domain.CodeCodigoConvenioDistinto,
			"El código de descuento %s no pertenece al convenio de la compra", codigo.Codigo)
	}
	if err := codigo.RegistrarUso(now); err != nil {
		return nil, err
	}
	if err := repos.Codigos().Update(ctx, codigo); err != nil {
		return nil, err
	}
	return codigo, nil
}

// CrearDevolucionRequest represents a refund of a previously admitted purchase.
// MontoDevuelto defaults to the amount paid on the purchase.
type CrearDevolucionRequest struct {
	EventoOrigenID int64
	MontoDevuelto  *int64
	IdempotencyKey string
}

// CrearDevolucionEvento records a refund and releases the consumption of the
// purchase it reverses. Only a confirmed, non-deleted purchase without a
// previous refund can be refunded. Vigency is not required.
func (s *ConvenioService) CrearDevolucionEvento(ctx context.Context, req CrearDevolucionRequest) (*domain.Evento, error) {
	if replay, err := s.replay(ctx, req.IdempotencyKey, opDevolucion); replay != nil || err != nil {
		return replay, err
	}

	var devolucion *domain.Evento
	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		now := s.now()

		origen, err := repos.Eventos().FindByID(ctx, req.EventoOrigenID)
		if err != nil {
			return err
		}

		var convenio *domain.Convenio
		if origen.ConvenioID != nil {
			convenio, err = repos.Convenios().FindByIDForUpdate(ctx, *origen.ConvenioID)
			if err != nil {
				return err
			}
			// Re-read under the lock: a concurrent delete may have landed.
			if origen, err = repos.Eventos().FindByID(ctx, req.EventoOrigenID); err != nil {
				return err
			}
		}

		refunded, err := repos.Eventos().HasConfirmedRefund(ctx, origen.ID)
		if err != nil {
			return err
		}
		if refunded {
			return domain.NewBusinessError(domain.CodeEventoYaDevuelto,
				"El evento %d ya tiene una devolución registrada", origen.ID)
		}

		devolucion, err = domain.NewDevolucion(origen, req.MontoDevuelto, now)
		if err != nil {
			return err
		}
		if err := repos.Eventos().Append(ctx, devolucion); err != nil {
			return err
		}

		if convenio != nil {
			convenio.RegistrarDevolucion(devolucion.MontoDescuento(), now)
			if err := repos.Convenios().Update(ctx, convenio); err != nil {
				return err
			}
		}

		return s.guardarIdempotencia(ctx, repos, req.IdempotencyKey, opDevolucion, devolucion.ID, now)
	})
	if replay, ok, replayErr := s.replayed(ctx, err); ok {
		return replay, replayErr
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordEvento(string(devolucion.Tipo))
	logging.InfoContext(ctx, "Refund recorded",
		"evento_id", devolucion.ID,
		"evento_origen_id", req.EventoOrigenID,
		"convenio_id", ptrValue(devolucion.ConvenioID),
		"monto_devuelto", ptrValue(devolucion.MontoDevuelto),
	)
	return devolucion, nil
}

// ObtenerEvento returns an event by id, deleted or not.
func (s *ConvenioService) ObtenerEvento(ctx context.Context, id int64) (*domain.Evento, error) {
	return s.repos.Eventos().FindByID(ctx, id)
}

// EliminarEvento soft-deletes an event and recomputes its convenio's counters
// in the same transaction.
func (s *ConvenioService) EliminarEvento(ctx context.Context, id int64) error {
	return s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		evento, err := repos.Eventos().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if evento.Eliminado {
			return nil
		}

		var convenio *domain.Convenio
		if evento.ConvenioID != nil {
			convenio, err = repos.Convenios().FindByIDForUpdate(ctx, *evento.ConvenioID)
			if err != nil {
				return err
			}
		}

		if err := repos.Eventos().MarkDeleted(ctx, id); err != nil {
			return err
		}
		if convenio == nil {
			return nil
		}

		consumo, err := s.consumoActual(ctx, repos, convenio.ID())
		if err != nil {
			return err
		}
		if convenio.AplicarConsumo(consumo, s.now()) {
			if err := repos.Convenios().Update(ctx, convenio); err != nil {
				return err
			}
		}
		logging.InfoContext(ctx, "Evento deleted",
			"evento_id", id,
			"convenio_id", convenio.ID(),
			"consumo_tickets", consumo.Tickets,
			"consumo_monto", consumo.Monto,
		)
		return nil
	})
}

// replay returns the event stored under key, or nil when the key is new. A key
// stored by a different operation is rejected rather than replayed.
func (s *ConvenioService) replay(ctx context.Context, key, op string) (*domain.Evento, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.repos.IdempotencyStore().Get(ctx, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.Operation != op {
		return nil, claveReutilizada(key, existing.Operation)
	}
	metrics.RecordIdempotencyCacheHit()
	return s.repos.Eventos().FindByID(ctx, existing.ResourceID)
}

// replayed returns the winning event when err is an idempotentReplay.
func (s *ConvenioService) replayed(ctx context.Context, err error) (*domain.Evento, bool, error) {
	var r *idempotentReplay
	if !errors.As(err, &r) {
		return nil, false, nil
	}
	metrics.RecordIdempotencyCacheHit()
	evento, err := s.repos.Eventos().FindByID(ctx, r.eventoID)
	return evento, true, err
}

func (s *ConvenioService) guardarIdempotencia(ctx context.Context, repos domain.Repositories, key, op string, eventoID int64, now time.Time) error {
	if key == "" {
		return nil
	}
	created, existing, err := repos.IdempotencyStore().SetIfAbsent(ctx, &domain.IdempotencyEntry{
		IdempotencyKey: key,
		Operation:      op,
		ResourceID:     eventoID,
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !created {
		if existing.Operation != op {
			return claveReutilizada(key, existing.Operation)
		}
		return &idempotentReplay{eventoID: existing.ResourceID}
	}
	return nil
}

func ptrValue(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
