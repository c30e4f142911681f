package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"convenios/internal/convenios/domain"
)

const eventoColumns = `
	id, tipo, pasajero_id, empresa_id, convenio_id, codigo_descuento_id, evento_origen_id,
	ciudad_origen, ciudad_destino, fecha_viaje, numero_asiento, numero_ticket, pnr,
	tarifa_base, porcentaje_descuento, monto_pagado, monto_devuelto,
	estado, eliminado, created_at`

const uqDevolucionOrigen = "uq_eventos_devolucion_origen"

// EventoRepository implements domain.EventoRepository using PostgreSQL.
// Rows are never updated except for the soft-delete flag.
type EventoRepository struct {
	db Executor
}

// NewEventoRepository creates a new EventoRepository.
func NewEventoRepository(db Executor) *EventoRepository {
	return &EventoRepository{db: db}
}

func (r *EventoRepository) Append(ctx context.Context, e *domain.Evento) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO convenios.eventos (
			tipo, pasajero_id, empresa_id, convenio_id, codigo_descuento_id, evento_origen_id,
			ciudad_origen, ciudad_destino, fecha_viaje, numero_asiento, numero_ticket, pnr,
			tarifa_base, porcentaje_descuento, monto_pagado, monto_devuelto,
			estado, eliminado, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		string(e.Tipo),
		e.PasajeroID,
		e.EmpresaID,
		e.ConvenioID,
		e.CodigoDescuentoID,
		e.EventoOrigenID,
		e.CiudadOrigen,
		e.CiudadDestino,
		dateToPg(e.FechaViaje),
		e.NumeroAsiento,
		e.NumeroTicket,
		e.PNR,
		e.TarifaBase,
		e.PorcentajeDescuento,
		e.MontoPagado,
		e.MontoDevuelto,
		string(e.Estado),
		e.Eliminado,
		e.CreatedAt,
	).Scan(&e.ID)
	if uniqueViolationOn(err, uqDevolucionOrigen) {
		return domain.NewBusinessError(domain.CodeEventoYaDevuelto,
			"El evento %d ya tiene una devolución confirmada", valueOf(e.EventoOrigenID))
	}
	if err != nil {
		return fmt.Errorf("append evento: %w", err)
	}
	return nil
}

func (r *EventoRepository) MarkDeleted(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE convenios.eventos SET eliminado = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark evento %d deleted: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.EventoNotFound(id)
	}
	return nil
}

func (r *EventoRepository) FindByID(ctx context.Context, id int64) (*domain.Evento, error) {
	e, err := scanEvento(r.db.QueryRow(ctx, `SELECT `+eventoColumns+` FROM convenios.eventos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.EventoNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find evento %d: %w", id, err)
	}
	return e, nil
}

func (r *EventoRepository) ListByConvenio(ctx context.Context, convenioID int64) ([]*domain.Evento, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventoColumns+` FROM convenios.eventos
		WHERE convenio_id = $1
			OR (tipo = 'DEVOLUCION' AND evento_origen_id IN (
				SELECT id FROM convenios.eventos WHERE convenio_id = $1))
		ORDER BY id`, convenioID)
	if err != nil {
		return nil, fmt.Errorf("list eventos of convenio %d: %w", convenioID, err)
	}
	eventos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Evento, error) {
		return scanEvento(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan eventos of convenio %d: %w", convenioID, err)
	}
	return eventos, nil
}

func (r *EventoRepository) HasConfirmedRefund(ctx context.Context, origenID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM convenios.eventos
			WHERE evento_origen_id = $1
				AND tipo = 'DEVOLUCION'
				AND estado = 'confirmado'
				AND NOT eliminado
		)`, origenID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refunds of evento %d: %w", origenID, err)
	}
	return exists, nil
}

func scanEvento(row pgx.Row) (*domain.Evento, error) {
	var (
		e          domain.Evento
		tipo       string
		estado     string
		fechaViaje pgtype.Date
	)
	err := row.Scan(
		&e.ID, &tipo, &e.PasajeroID, &e.EmpresaID, &e.ConvenioID, &e.CodigoDescuentoID, &e.EventoOrigenID,
		&e.CiudadOrigen, &e.CiudadDestino, &fechaViaje, &e.NumeroAsiento, &e.NumeroTicket, &e.PNR,
		&e.TarifaBase, &e.PorcentajeDescuento, &e.MontoPagado, &e.MontoDevuelto,
		&estado, &e.Eliminado, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Tipo = domain.TipoEvento(tipo)
	if !e.Tipo.Valid() {
		return nil, fmt.Errorf("%w: evento %d has tipo %q", domain.ErrCorruptData, e.ID, tipo)
	}
	e.Estado = domain.EstadoEvento(estado)
	e.FechaViaje = pgToDate(fechaViaje)
	return &e, nil
}

var _ domain.EventoRepository = (*EventoRepository)(nil)
