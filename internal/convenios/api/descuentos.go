package api

import (
	"net/http"

	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
)

// CrearDescuento handles POST /descuentos.
func (h *Handler) CrearDescuento(w http.ResponseWriter, r *http.Request) {
	var req DescuentoRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	descuento, err := h.service.CrearDescuento(r.Context(), domain.DescuentoParams{
		ConvenioID:        req.ConvenioID,
		CodigoDescuentoID: req.CodigoDescuentoID,
		TipoPasajeroID:    req.TipoPasajeroID,
		PasajeroID:        req.PasajeroID,
		Porcentaje:        req.Porcentaje,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDescuentoResponse(descuento))
}

// EliminarDescuento handles DELETE /descuentos/{id}.
func (h *Handler) EliminarDescuento(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.service.EliminarDescuento(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ObtenerDescuentoAplicable handles GET /descuentos/aplicable.
// Query parameters: convenio_id, codigo_descuento_id, codigo, tipo_pasajero_id.
func (h *Handler) ObtenerDescuentoAplicable(w http.ResponseWriter, r *http.Request) {
	var (
		criterios application.CriteriosDescuento
		err       error
	)
	if criterios.ConvenioID, err = queryInt64(r, "convenio_id"); err != nil {
		writeBadRequest(w, err)
		return
	}
	if criterios.CodigoDescuentoID, err = queryInt64(r, "codigo_descuento_id"); err != nil {
		writeBadRequest(w, err)
		return
	}
	if criterios.TipoPasajeroID, err = queryInt64(r, "tipo_pasajero_id"); err != nil {
		writeBadRequest(w, err)
		return
	}
	criterios.Codigo = r.URL.Query().Get("codigo")

	descuento, err := h.service.ObtenerDescuentoAplicable(r.Context(), criterios)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := AplicableResponse{}
	if descuento != nil {
		d := toDescuentoResponse(descuento)
		resp.Descuento = &d
		resp.Porcentaje = descuento.Porcentaje
	}
	writeJSON(w, http.StatusOK, resp)
}

// CrearCodigoDescuento handles POST /codigos-descuento.
func (h *Handler) CrearCodigoDescuento(w http.ResponseWriter, r *http.Request) {
	var req CodigoDescuentoRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	inicio, err := parseFecha(req.FechaInicio)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	termino, err := parseFecha(req.FechaTermino)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	codigo, err := h.service.CrearCodigoDescuento(r.Context(), domain.CodigoDescuentoParams{
		Codigo:       req.Codigo,
		ConvenioID:   req.ConvenioID,
		FechaInicio:  inicio,
		FechaTermino: termino,
		MaxUsos:      req.MaxUsos,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCodigoResponse(codigo))
}

// ObtenerCodigoDescuento handles GET /codigos-descuento/{id}.
func (h *Handler) ObtenerCodigoDescuento(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	codigo, err := h.service.ObtenerCodigoDescuento(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCodigoResponse(codigo))
}
