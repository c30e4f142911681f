package domain

import (
	"strings"
	"time"

	"convenios/internal/common/types"
)

// TipoEvento distinguishes purchases, exchanges and refunds.
type TipoEvento string

const (
	TipoCompra     TipoEvento = "COMPRA"
	TipoCambio     TipoEvento = "CAMBIO"
	TipoDevolucion TipoEvento = "DEVOLUCION"
)

// Valid reports whether t is a known event type.
func (t TipoEvento) Valid() bool {
	switch t {
	case TipoCompra, TipoCambio, TipoDevolucion:
		return true
	}
	return false
}

// EstadoEvento is the confirmation status of an evento.
type EstadoEvento string

const (
	EstadoConfirmado EstadoEvento = "confirmado"
	EstadoAnulado    EstadoEvento = "anulado"
	EstadoRevertido  EstadoEvento = "revertido"
)

// Evento is one immutable purchase, exchange or refund record. Only the
// soft-delete flag may change after it is appended.
type Evento struct {
	ID                  int64
	Tipo                TipoEvento
	PasajeroID          int64
	EmpresaID           int64
	ConvenioID          *int64
	CodigoDescuentoID   *int64
	EventoOrigenID      *int64
	CiudadOrigen        string
	CiudadDestino       string
	FechaViaje          *time.Time
	NumeroAsiento       string
	NumeroTicket        string
	PNR                 string
	TarifaBase          *int64
	PorcentajeDescuento int
	MontoPagado         *int64
	MontoDevuelto       *int64
	Estado              EstadoEvento
	Eliminado           bool
	CreatedAt           time.Time
}

// CompraParams carries a purchase as received from the sales channel. The
// discount percentage and the amount paid are filled in by the caller once the
// applicable discount is resolved.
type CompraParams struct {
	Tipo              TipoEvento
	PasajeroID        int64
	EmpresaID         int64
	ConvenioID        *int64
	CodigoDescuentoID *int64
	CiudadOrigen      string
	CiudadDestino     string
	FechaViaje        *time.Time
	NumeroAsiento     string
	NumeroTicket      string
	PNR               string
	TarifaBase        int64
}

// NewCompra builds a confirmed COMPRA (or CAMBIO) event charging tarifa minus
// porcentaje percent.
func NewCompra(p CompraParams, porcentaje int, now time.Time) (*Evento, error) {
	tipo := p.Tipo
	if tipo == "" {
		tipo = TipoCompra
	}
	if tipo != TipoCompra && tipo != TipoCambio {
		return nil, NewBusinessError(CodeDatosInvalidos, "Tipo de evento de compra inválido: %s", tipo)
	}
	if p.TarifaBase < 0 {
		return nil, NewBusinessError(CodeDatosInvalidos, "La tarifa base no puede ser negativa")
	}
	if err := types.ValidatePercentage(porcentaje); err != nil {
		return nil, NewBusinessError(CodePorcentajeInvalido,
			"El porcentaje de descuento debe estar entre 0 y 100 (recibido %d)", porcentaje)
	}
	tarifa := p.TarifaBase
	pagado := types.NetOfDiscount(tarifa, porcentaje)
	return &Evento{
		Tipo:                tipo,
		PasajeroID:          p.PasajeroID,
		EmpresaID:           p.EmpresaID,
		ConvenioID:          cloneInt64(p.ConvenioID),
		CodigoDescuentoID:   cloneInt64(p.CodigoDescuentoID),
		CiudadOrigen:        strings.TrimSpace(p.CiudadOrigen),
		CiudadDestino:       strings.TrimSpace(p.CiudadDestino),
		FechaViaje:          datePtr(p.FechaViaje),
		NumeroAsiento:       strings.TrimSpace(p.NumeroAsiento),
		NumeroTicket:        strings.TrimSpace(p.NumeroTicket),
		PNR:                 strings.TrimSpace(p.PNR),
		TarifaBase:          &tarifa,
		PorcentajeDescuento: porcentaje,
		MontoPagado:         &pagado,
		Estado:              EstadoConfirmado,
		CreatedAt:           now,
	}, nil
}

// NewDevolucion builds a confirmed DEVOLUCION reversing origen. The refund
// carries the origin's fare, percentage and amount paid so that its discount
// amount equals the one being reversed. montoDevuelto defaults to what was paid.
func NewDevolucion(origen *Evento, montoDevuelto *int64, now time.Time) (*Evento, error) {
	if !origen.Reembolsable() {
		return nil, NewBusinessError(CodeEventoNoReembolsable,
			"El evento %d no es una compra confirmada reembolsable", origen.ID)
	}
	devuelto := origen.montoPagado()
	if montoDevuelto != nil {
		if *montoDevuelto < 0 {
			return nil, NewBusinessError(CodeDatosInvalidos, "El monto devuelto no puede ser negativo")
		}
		devuelto = *montoDevuelto
	}
	origenID := origen.ID
	return &Evento{
		Tipo:                TipoDevolucion,
		PasajeroID:          origen.PasajeroID,
		EmpresaID:           origen.EmpresaID,
		ConvenioID:          cloneInt64(origen.ConvenioID),
		CodigoDescuentoID:   cloneInt64(origen.CodigoDescuentoID),
		EventoOrigenID:      &origenID,
		CiudadOrigen:        origen.CiudadOrigen,
		CiudadDestino:       origen.CiudadDestino,
		FechaViaje:          datePtr(origen.FechaViaje),
		NumeroAsiento:       origen.NumeroAsiento,
		NumeroTicket:        origen.NumeroTicket,
		PNR:                 origen.PNR,
		TarifaBase:          cloneInt64(origen.TarifaBase),
		PorcentajeDescuento: origen.PorcentajeDescuento,
		MontoPagado:         cloneInt64(origen.MontoPagado),
		MontoDevuelto:       &devuelto,
		Estado:              EstadoConfirmado,
		CreatedAt:           now,
	}, nil
}

// EsConsumo reports whether the event type adds consumption (COMPRA or CAMBIO).
func (e *Evento) EsConsumo() bool {
	return e.Tipo == TipoCompra || e.Tipo == TipoCambio
}

// Cuenta reports whether the event takes part in accounting at all.
func (e *Evento) Cuenta() bool {
	return e.Estado == EstadoConfirmado && !e.Eliminado
}

// Reembolsable reports whether a refund may be issued against the event.
func (e *Evento) Reembolsable() bool {
	return e.EsConsumo() && e.Cuenta()
}

// MontoDescuento is the discount granted: tarifa_base minus monto_pagado,
// never negative. Missing amounts count as zero.
func (e *Evento) MontoDescuento() int64 {
	return types.ClampNonNegative(valueOrZero(e.TarifaBase) - e.montoPagado())
}

func (e *Evento) montoPagado() int64 {
	return valueOrZero(e.MontoPagado)
}

// claveTicket is the legacy key linking a refund to its purchase when no
// explicit origin id was recorded.
func (e *Evento) claveTicket() (string, bool) {
	if e.NumeroTicket == "" && e.PNR == "" {
		return "", false
	}
	return e.NumeroTicket + "|" + e.PNR, true
}

// Clone returns a deep copy.
func (e *Evento) Clone() *Evento {
	cp := *e
	cp.ConvenioID = cloneInt64(e.ConvenioID)
	cp.CodigoDescuentoID = cloneInt64(e.CodigoDescuentoID)
	cp.EventoOrigenID = cloneInt64(e.EventoOrigenID)
	cp.FechaViaje = datePtr(e.FechaViaje)
	cp.TarifaBase = cloneInt64(e.TarifaBase)
	cp.MontoPagado = cloneInt64(e.MontoPagado)
	cp.MontoDevuelto = cloneInt64(e.MontoDevuelto)
	return &cp
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
