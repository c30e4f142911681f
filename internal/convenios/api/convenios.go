package api

import (
	"net/http"

	"convenios/internal/common/logging"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
)

// CrearConvenio handles POST /convenios.
func (h *Handler) CrearConvenio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConvenioRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	convenio, err := h.service.CrearConvenio(ctx, params)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toConvenioResponse(convenio))
}

// ObtenerConvenio handles GET /convenios/{id}.
func (h *Handler) ObtenerConvenio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	convenio, err := h.service.ObtenerConvenio(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toConvenioResponse(convenio))
}

// ActualizarConvenio handles PUT /convenios/{id}.
func (h *Handler) ActualizarConvenio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx := logging.WithConvenioID(r.Context(), id)

	var req ConvenioRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var estado *domain.Estado
	if req.Estado != nil {
		e := domain.Estado(*req.Estado)
		estado = &e
	}

	convenio, err := h.service.ActualizarConvenio(ctx, application.ActualizarConvenioRequest{
		ID:     id,
		Params: params,
		Estado: estado,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toConvenioResponse(convenio))
}

// EliminarConvenio handles DELETE /convenios/{id}.
func (h *Handler) EliminarConvenio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.service.EliminarConvenio(logging.WithConvenioID(r.Context(), id), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ValidarVigencia handles GET /convenios/{id}/vigencia.
func (h *Handler) ValidarVigencia(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	vigente, err := h.service.ValidarVigencia(logging.WithConvenioID(r.Context(), id), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"convenio_id": id, "vigente": vigente})
}

// VerificarLimites handles GET /convenios/{id}/limites?monto_descuento=N.
// An admissible purchase answers 200; a cap violation answers 400 with its code.
func (h *Handler) VerificarLimites(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	monto, err := queryInt64(r, "monto_descuento")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var montoDescuento int64
	if monto != nil {
		montoDescuento = *monto
	}

	ok, err := h.service.VerificarLimites(logging.WithConvenioID(r.Context(), id), id, montoDescuento)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"convenio_id": id, "admisible": ok})
}

// CalcularConsumo handles GET /convenios/{id}/consumo.
// The value is recomputed from the event log, not read from the counters.
func (h *Handler) CalcularConsumo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	consumo, err := h.service.CalcularConsumo(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, consumo)
}

// RecalcularConsumo handles POST /convenios/{id}/recalcular.
func (h *Handler) RecalcularConsumo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	result, err := h.service.RecalcularConsumo(logging.WithConvenioID(r.Context(), id), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RecalcularTodos handles POST /convenios/recalcular.
func (h *Handler) RecalcularTodos(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RecalcularTodos(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// DesactivarVencidos handles POST /convenios/desactivar-vencidos.
func (h *Handler) DesactivarVencidos(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DesactivarConveniosVencidos(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
