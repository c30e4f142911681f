package api

import (
	"fmt"
	"time"

	"convenios/internal/convenios/domain"
)

// ConvenioRequest is the JSON body for creating or updating a convenio.
// Dates use the YYYY-MM-DD calendar format.
type ConvenioRequest struct {
	Nombre              string  `json:"nombre" validate:"required,max=255"`
	EmpresaID           int64   `json:"empresa_id" validate:"required,gt=0"`
	FechaInicio         *string `json:"fecha_inicio" validate:"omitempty,datetime=2006-01-02"`
	FechaTermino        *string `json:"fecha_termino" validate:"omitempty,datetime=2006-01-02"`
	TopeCantidadTickets *int64  `json:"tope_cantidad_tickets" validate:"omitempty,gte=0"`
	TopeMontoVentas     *int64  `json:"tope_monto_ventas" validate:"omitempty,gte=0"`
	Estado              *string `json:"estado" validate:"omitempty,oneof=ACTIVO INACTIVO"`
}

func (r ConvenioRequest) params() (domain.ConvenioParams, error) {
	inicio, err := parseFecha(r.FechaInicio)
	if err != nil {
		return domain.ConvenioParams{}, err
	}
	termino, err := parseFecha(r.FechaTermino)
	if err != nil {
		return domain.ConvenioParams{}, err
	}
	return domain.ConvenioParams{
		Nombre:              r.Nombre,
		EmpresaID:           r.EmpresaID,
		FechaInicio:         inicio,
		FechaTermino:        termino,
		TopeCantidadTickets: r.TopeCantidadTickets,
		TopeMontoVentas:     r.TopeMontoVentas,
	}, nil
}

// ConvenioResponse is the JSON representation of a convenio.
type ConvenioResponse struct {
	ID                  int64          `json:"id"`
	Nombre              string         `json:"nombre"`
	EmpresaID           int64          `json:"empresa_id"`
	Estado              string         `json:"estado"`
	FechaInicio         *string        `json:"fecha_inicio"`
	FechaTermino        *string        `json:"fecha_termino"`
	TopeCantidadTickets *int64         `json:"tope_cantidad_tickets"`
	TopeMontoVentas     *int64         `json:"tope_monto_ventas"`
	Consumo             domain.Consumo `json:"consumo"`
	Version             int            `json:"version"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func toConvenioResponse(c *domain.Convenio) ConvenioResponse {
	return ConvenioResponse{
		ID:                  c.ID(),
		Nombre:              c.Nombre(),
		EmpresaID:           c.EmpresaID(),
		Estado:              string(c.Estado()),
		FechaInicio:         formatFecha(c.FechaInicio()),
		FechaTermino:        formatFecha(c.FechaTermino()),
		TopeCantidadTickets: c.TopeCantidadTickets(),
		TopeMontoVentas:     c.TopeMontoVentas(),
		Consumo:             c.Consumo(),
		Version:             c.Version(),
		CreatedAt:           c.CreatedAt(),
		UpdatedAt:           c.UpdatedAt(),
	}
}

// DescuentoRequest is the JSON body for creating a discount rule.
type DescuentoRequest struct {
	ConvenioID        *int64 `json:"convenio_id" validate:"omitempty,gt=0"`
	CodigoDescuentoID *int64 `json:"codigo_descuento_id" validate:"omitempty,gt=0"`
	TipoPasajeroID    *int64 `json:"tipo_pasajero_id" validate:"omitempty,gt=0"`
	PasajeroID        *int64 `json:"pasajero_id" validate:"omitempty,gt=0"`
	Porcentaje        int    `json:"porcentaje"`
}

// DescuentoResponse is the JSON representation of a discount rule.
type DescuentoResponse struct {
	ID                int64  `json:"id"`
	ConvenioID        *int64 `json:"convenio_id"`
	CodigoDescuentoID *int64 `json:"codigo_descuento_id"`
	TipoPasajeroID    *int64 `json:"tipo_pasajero_id"`
	PasajeroID        *int64 `json:"pasajero_id"`
	Porcentaje        int    `json:"porcentaje"`
	Estado            string `json:"estado"`
}

func toDescuentoResponse(d *domain.Descuento) DescuentoResponse {
	return DescuentoResponse{
		ID:                d.ID,
		ConvenioID:        d.ConvenioID,
		CodigoDescuentoID: d.CodigoDescuentoID,
		TipoPasajeroID:    d.TipoPasajeroID,
		PasajeroID:        d.PasajeroID,
		Porcentaje:        d.Porcentaje,
		Estado:            string(d.Estado),
	}
}

// AplicableResponse is returned by the discount resolver. A nil Descuento
// means no rule applies and the purchase pays full fare.
type AplicableResponse struct {
	Porcentaje int                `json:"porcentaje"`
	Descuento  *DescuentoResponse `json:"descuento"`
}

// CodigoDescuentoRequest is the JSON body for creating a discount code.
type CodigoDescuentoRequest struct {
	Codigo       string  `json:"codigo" validate:"required,max=64"`
	ConvenioID   *int64  `json:"convenio_id" validate:"omitempty,gt=0"`
	FechaInicio  *string `json:"fecha_inicio" validate:"omitempty,datetime=2006-01-02"`
	FechaTermino *string `json:"fecha_termino" validate:"omitempty,datetime=2006-01-02"`
	MaxUsos      *int64  `json:"max_usos" validate:"omitempty,gt=0"`
}

// CodigoDescuentoResponse is the JSON representation of a discount code.
type CodigoDescuentoResponse struct {
	ID             int64   `json:"id"`
	Codigo         string  `json:"codigo"`
	ConvenioID     *int64  `json:"convenio_id"`
	FechaInicio    *string `json:"fecha_inicio"`
	FechaTermino   *string `json:"fecha_termino"`
	MaxUsos        *int64  `json:"max_usos"`
	UsosRealizados int64   `json:"usos_realizados"`
	Estado         string  `json:"estado"`
}

func toCodigoResponse(c *domain.CodigoDescuento) CodigoDescuentoResponse {
	return CodigoDescuentoResponse{
		ID:             c.ID,
		Codigo:         c.Codigo,
		ConvenioID:     c.ConvenioID,
		FechaInicio:    formatFecha(c.FechaInicio),
		FechaTermino:   formatFecha(c.FechaTermino),
		MaxUsos:        c.MaxUsos,
		UsosRealizados: c.UsosRealizados,
		Estado:         string(c.Estado),
	}
}

// CompraRequest is the JSON body for a purchase or exchange.
type CompraRequest struct {
	Tipo              string  `json:"tipo" validate:"omitempty,oneof=COMPRA CAMBIO"`
	PasajeroID        int64   `json:"pasajero_id" validate:"required,gt=0"`
	EmpresaID         int64   `json:"empresa_id" validate:"required,gt=0"`
	ConvenioID        *int64  `json:"convenio_id" validate:"omitempty,gt=0"`
	CodigoDescuentoID *int64  `json:"codigo_descuento_id" validate:"omitempty,gt=0"`
	Codigo            string  `json:"codigo" validate:"omitempty,max=64"`
	TipoPasajeroID    *int64  `json:"tipo_pasajero_id" validate:"omitempty,gt=0"`
	CiudadOrigen      string  `json:"ciudad_origen" validate:"max=120"`
	CiudadDestino     string  `json:"ciudad_destino" validate:"max=120"`
	FechaViaje        *string `json:"fecha_viaje" validate:"omitempty,datetime=2006-01-02"`
	NumeroAsiento     string  `json:"numero_asiento" validate:"max=16"`
	NumeroTicket      string  `json:"numero_ticket" validate:"max=64"`
	PNR               string  `json:"pnr" validate:"max=64"`
	TarifaBase        int64   `json:"tarifa_base" validate:"gte=0"`
}

// DevolucionRequest is the JSON body for a refund.
type DevolucionRequest struct {
	EventoOrigenID int64  `json:"evento_origen_id" validate:"required,gt=0"`
	MontoDevuelto  *int64 `json:"monto_devuelto" validate:"omitempty,gte=0"`
}

// EventoResponse is the JSON representation of an event.
type EventoResponse struct {
	ID                  int64     `json:"id"`
	Tipo                string    `json:"tipo"`
	PasajeroID          int64     `json:"pasajero_id"`
	EmpresaID           int64     `json:"empresa_id"`
	ConvenioID          *int64    `json:"convenio_id"`
	CodigoDescuentoID   *int64    `json:"codigo_descuento_id"`
	EventoOrigenID      *int64    `json:"evento_origen_id"`
	CiudadOrigen        string    `json:"ciudad_origen"`
	CiudadDestino       string    `json:"ciudad_destino"`
	FechaViaje          *string   `json:"fecha_viaje"`
	NumeroAsiento       string    `json:"numero_asiento"`
	NumeroTicket        string    `json:"numero_ticket"`
	PNR                 string    `json:"pnr"`
	TarifaBase          *int64    `json:"tarifa_base"`
	PorcentajeDescuento int       `json:"porcentaje_descuento"`
	MontoPagado         *int64    `json:"monto_pagado"`
	MontoDevuelto       *int64    `json:"monto_devuelto"`
	Estado              string    `json:"estado"`
	Eliminado           bool      `json:"eliminado"`
	CreatedAt           time.Time `json:"created_at"`
}

func toEventoResponse(e *domain.Evento) EventoResponse {
	return EventoResponse{
		ID:                  e.ID,
		Tipo:                string(e.Tipo),
		PasajeroID:          e.PasajeroID,
		EmpresaID:           e.EmpresaID,
		ConvenioID:          e.ConvenioID,
		CodigoDescuentoID:   e.CodigoDescuentoID,
		EventoOrigenID:      e.EventoOrigenID,
		CiudadOrigen:        e.CiudadOrigen,
		CiudadDestino:       e.CiudadDestino,
		FechaViaje:          formatFecha(e.FechaViaje),
		NumeroAsiento:       e.NumeroAsiento,
		NumeroTicket:        e.NumeroTicket,
		PNR:                 e.PNR,
		TarifaBase:          e.TarifaBase,
		PorcentajeDescuento: e.PorcentajeDescuento,
		MontoPagado:         e.MontoPagado,
		MontoDevuelto:       e.MontoDevuelto,
		Estado:              string(e.Estado),
		Eliminado:           e.Eliminado,
		CreatedAt:           e.CreatedAt,
	}
}

func parseFecha(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, *value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", *value)
	}
	return &t, nil
}

func formatFecha(value *time.Time) *string {
	if value == nil {
		return nil
	}
	s := value.Format(time.DateOnly)
	return &s
}
