package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"convenios/internal/common/logging"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
)

// Handler handles HTTP requests for the convenios context.
type Handler struct {
	service  *application.ConvenioService
	validate *validator.Validate
}

// NewHandler creates a new Handler.
func NewHandler(service *application.ConvenioService) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes registers the convenios routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /convenios", h.CrearConvenio)
	mux.HandleFunc("GET /convenios/{id}", h.ObtenerConvenio)
	mux.HandleFunc("PUT /convenios/{id}", h.ActualizarConvenio)
	mux.HandleFunc("DELETE /convenios/{id}", h.EliminarConvenio)
	mux.HandleFunc("GET /convenios/{id}/vigencia", h.ValidarVigencia)
	mux.HandleFunc("GET /convenios/{id}/limites", h.VerificarLimites)
	mux.HandleFunc("GET /convenios/{id}/consumo", h.CalcularConsumo)
	mux.HandleFunc("POST /convenios/{id}/recalcular", h.RecalcularConsumo)
	mux.HandleFunc("POST /convenios/recalcular", h.RecalcularTodos)
	mux.HandleFunc("POST /convenios/desactivar-vencidos", h.DesactivarVencidos)

	mux.HandleFunc("POST /descuentos", h.CrearDescuento)
	mux.HandleFunc("DELETE /descuentos/{id}", h.EliminarDescuento)
	mux.HandleFunc("GET /descuentos/aplicable", h.ObtenerDescuentoAplicable)

	mux.HandleFunc("POST /codigos-descuento", h.CrearCodigoDescuento)
	mux.HandleFunc("GET /codigos-descuento/{id}", h.ObtenerCodigoDescuento)

	mux.HandleFunc("POST /eventos/compra", h.CrearCompra)
	mux.HandleFunc("POST /eventos/devolucion", h.CrearDevolucion)
	mux.HandleFunc("GET /eventos/{id}", h.ObtenerEvento)
	mux.HandleFunc("DELETE /eventos/{id}", h.EliminarEvento)
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// decode reads the JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *domain.NotFoundError
		business *domain.BusinessError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Code: notFound.Code, Message: notFound.Message})
	case errors.As(err, &business):
		status := http.StatusBadRequest
		if business.Code == domain.CodeClaveReutilizada {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{Error: "business rule violated", Code: business.Code, Message: business.Message})
	case errors.Is(err, domain.ErrOptimisticLock), errors.Is(err, domain.ErrLockTimeout):
		writeError(w, http.StatusConflict, "concurrent modification detected, please retry")
	default:
		logging.ErrorContext(r.Context(), "Unhandled error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid request",
		Code:    domain.CodeDatosInvalidos,
		Message: err.Error(),
	})
}
