package api

import (
	"net/http"

	"convenios/internal/common/logging"
	"convenios/internal/common/types"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
)

// idempotencyHeader carries the optional retry key of purchase and refund requests.
const idempotencyHeader = "Idempotency-Key"

// CrearCompra handles POST /eventos/compra.
func (h *Handler) CrearCompra(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := types.ParseIdempotencyKey(r.Header.Get(idempotencyHeader))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req CompraRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	fechaViaje, err := parseFecha(req.FechaViaje)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.ConvenioID != nil {
		ctx = logging.WithConvenioID(ctx, *req.ConvenioID)
	}

	evento, err := h.service.CrearCompraEvento(ctx, application.CrearCompraRequest{
		CompraParams: domain.CompraParams{
			Tipo:              domain.TipoEvento(req.Tipo),
			PasajeroID:        req.PasajeroID,
			EmpresaID:         req.EmpresaID,
			ConvenioID:        req.ConvenioID,
			CodigoDescuentoID: req.CodigoDescuentoID,
			CiudadOrigen:      req.CiudadOrigen,
			CiudadDestino:     req.CiudadDestino,
			FechaViaje:        fechaViaje,
			NumeroAsiento:     req.NumeroAsiento,
			NumeroTicket:      req.NumeroTicket,
			PNR:               req.PNR,
			TarifaBase:        req.TarifaBase,
		},
		Codigo:         req.Codigo,
		TipoPasajeroID: req.TipoPasajeroID,
		IdempotencyKey: key.String(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventoResponse(evento))
}

// CrearDevolucion handles POST /eventos/devolucion.
func (h *Handler) CrearDevolucion(w http.ResponseWriter, r *http.Request) {
	key, err := types.ParseIdempotencyKey(r.Header.Get(idempotencyHeader))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req DevolucionRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	evento, err := h.service.CrearDevolucionEvento(r.Context(), application.CrearDevolucionRequest{
		EventoOrigenID: req.EventoOrigenID,
		MontoDevuelto:  req.MontoDevuelto,
		IdempotencyKey: key.String(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventoResponse(evento))
}

// ObtenerEvento handles GET /eventos/{id}.
func (h *Handler) ObtenerEvento(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	evento, err := h.service.ObtenerEvento(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventoResponse(evento))
}

// EliminarEvento handles DELETE /eventos/{id}.
func (h *Handler) EliminarEvento(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.service.EliminarEvento(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
