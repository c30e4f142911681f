package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"convenios/internal/convenios/api"
	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
	"convenios/internal/convenios/infrastructure/memory"
)

// HandlerSuite tests HTTP handler behavior including error mapping.
//
// Justification: Error-to-status-code mapping is a boundary concern that requires
// HTTP-level testing. Domain errors must translate to appropriate HTTP responses.
type HandlerSuite struct {
	suite.Suite
	handler http.Handler
	service *application.ConvenioService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.service = application.NewConvenioService(memory.NewDataStore(),
		application.WithClock(func() time.Time { return now }),
		application.WithLocation(time.UTC),
	)

	mux := http.NewServeMux()
	api.NewHandler(s.service).RegisterRoutes(mux)
	s.handler = api.CorrelationMiddleware(5*time.Second, mux)
}

func (s *HandlerSuite) doRequest(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		s.Require().NoError(err)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dst))
}

func (s *HandlerSuite) crearConvenio(body map[string]any) api.ConvenioResponse {
	if _, ok := body["nombre"]; !ok {
		body["nombre"] = "Convenio Test"
	}
	if _, ok := body["empresa_id"]; !ok {
		body["empresa_id"] = 1
	}
	rec := s.doRequest(http.MethodPost, "/convenios", body)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp api.ConvenioResponse
	s.decode(rec, &resp)
	return resp
}

func (s *HandlerSuite) compra(convenioID int64, tarifa int64, headers ...string) *httptest.ResponseRecorder {
	return s.doRequest(http.MethodPost, "/eventos/compra", map[string]any{
		"pasajero_id":    10,
		"empresa_id":     1,
		"convenio_id":    convenioID,
		"ciudad_origen":  "Santiago",
		"ciudad_destino": "Temuco",
		"tarifa_base":    tarifa,
	}, headers...)
}

func (s *HandlerSuite) TestConvenioLifecycle() {
	created := s.crearConvenio(map[string]any{
		"fecha_inicio":          "2025-01-01",
		"fecha_termino":         "2025-12-31",
		"tope_cantidad_tickets": 10,
	})
	s.Equal("ACTIVO", created.Estado)
	s.Equal("2025-12-31", *created.FechaTermino)

	rec := s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d", created.ID), nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d/vigencia", created.ID), nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(fmt.Sprintf(`{"convenio_id":%d,"vigente":true}`, created.ID), rec.Body.String())

	rec = s.doRequest(http.MethodDelete, fmt.Sprintf("/convenios/%d", created.ID), nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d", created.ID), nil)
	var found api.ConvenioResponse
	s.decode(rec, &found)
	s.Equal("INACTIVO", found.Estado)

	rec = s.doRequest(http.MethodPut, fmt.Sprintf("/convenios/%d", created.ID), map[string]any{
		"nombre":     "Convenio Reactivado",
		"empresa_id": 1,
		"estado":     "ACTIVO",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &found)
	s.Equal("ACTIVO", found.Estado)
	s.Equal("Convenio Reactivado", found.Nombre)
}

func (s *HandlerSuite) TestErrorMapping() {
	s.Run("validation failure returns 400", func() {
		rec := s.doRequest(http.MethodPost, "/convenios", map[string]any{"empresa_id": 1})
		s.Equal(http.StatusBadRequest, rec.Code)

		var resp api.ErrorResponse
		s.decode(rec, &resp)
		s.Equal(domain.CodeDatosInvalidos, resp.Code)
		s.Contains(resp.Message, "Nombre")
	})

	s.Run("malformed body returns 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/convenios", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("non numeric id returns 400", func() {
		rec := s.doRequest(http.MethodGet, "/convenios/abc", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown convenio returns 404", func() {
		rec := s.doRequest(http.MethodGet, "/convenios/999", nil)
		s.Equal(http.StatusNotFound, rec.Code)

		var resp api.ErrorResponse
		s.decode(rec, &resp)
		s.Equal(domain.CodeConvenioNoEncontrado, resp.Code)
	})

	s.Run("business rule returns 400 with code", func() {
		rec := s.doRequest(http.MethodPost, "/descuentos", map[string]any{"porcentaje": 150, "tipo_pasajero_id": 1})
		s.Equal(http.StatusBadRequest, rec.Code)

		var resp api.ErrorResponse
		s.decode(rec, &resp)
		s.Equal(domain.CodePorcentajeInvalido, resp.Code)
	})
}

func (s *HandlerSuite) TestCompraRespectsTicketCap() {
	c := s.crearConvenio(map[string]any{"tope_cantidad_tickets": 1})

	rec := s.compra(c.ID, 10000)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.compra(c.ID, 10000)
	s.Equal(http.StatusBadRequest, rec.Code)
	var resp api.ErrorResponse
	s.decode(rec, &resp)
	s.Equal(domain.CodeLimiteTicketsExcedido, resp.Code)

	rec = s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d/limites", c.ID), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCompraAppliesDiscount() {
	c := s.crearConvenio(map[string]any{})
	rec := s.doRequest(http.MethodPost, "/descuentos", map[string]any{"convenio_id": c.ID, "porcentaje": 20})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.doRequest(http.MethodGet, fmt.Sprintf("/descuentos/aplicable?convenio_id=%d&tipo_pasajero_id=3", c.ID), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var aplicable api.AplicableResponse
	s.decode(rec, &aplicable)
	s.Equal(20, aplicable.Porcentaje)

	rec = s.compra(c.ID, 10000)
	s.Require().Equal(http.StatusCreated, rec.Code)
	var evento api.EventoResponse
	s.decode(rec, &evento)
	s.Equal(20, evento.PorcentajeDescuento)
	s.Equal(int64(8000), *evento.MontoPagado)

	rec = s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d/consumo", c.ID), nil)
	s.JSONEq(`{"tickets":1,"monto":2000}`, rec.Body.String())
}

func (s *HandlerSuite) TestDevolucion() {
	c := s.crearConvenio(map[string]any{})
	rec := s.compra(c.ID, 5000)
	s.Require().Equal(http.StatusCreated, rec.Code)
	var compra api.EventoResponse
	s.decode(rec, &compra)

	rec = s.doRequest(http.MethodPost, "/eventos/devolucion", map[string]any{"evento_origen_id": compra.ID})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var devolucion api.EventoResponse
	s.decode(rec, &devolucion)
	s.Equal("DEVOLUCION", devolucion.Tipo)
	s.Equal(compra.ID, *devolucion.EventoOrigenID)

	rec = s.doRequest(http.MethodPost, "/eventos/devolucion", map[string]any{"evento_origen_id": compra.ID})
	s.Equal(http.StatusBadRequest, rec.Code)
	var resp api.ErrorResponse
	s.decode(rec, &resp)
	s.Equal(domain.CodeEventoYaDevuelto, resp.Code)
}

func (s *HandlerSuite) TestIdempotentCompra() {
	c := s.crearConvenio(map[string]any{})

	first := s.compra(c.ID, 5000, "Idempotency-Key", "abc-123")
	s.Require().Equal(http.StatusCreated, first.Code)
	second := s.compra(c.ID, 5000, "Idempotency-Key", "abc-123")
	s.Require().Equal(http.StatusCreated, second.Code)

	var a, b api.EventoResponse
	s.decode(first, &a)
	s.decode(second, &b)
	s.Equal(a.ID, b.ID)

	rec := s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d", c.ID), nil)
	var found api.ConvenioResponse
	s.decode(rec, &found)
	s.Equal(int64(1), found.Consumo.Tickets)

	bad := s.compra(c.ID, 5000, "Idempotency-Key", "dos palabras")
	s.Equal(http.StatusBadRequest, bad.Code)
	var errResp api.ErrorResponse
	s.decode(bad, &errResp)
	s.Equal(domain.CodeDatosInvalidos, errResp.Code)
}

func (s *HandlerSuite) TestIdempotencyKeyReusedAcrossOperations() {
	c := s.crearConvenio(map[string]any{})
	s.Require().Equal(http.StatusCreated, s.compra(c.ID, 5000, "Idempotency-Key", "k1").Code)

	var origen api.EventoResponse
	s.decode(s.compra(c.ID, 5000), &origen)

	rec := s.doRequest(http.MethodPost, "/eventos/devolucion",
		map[string]any{"evento_origen_id": origen.ID}, "Idempotency-Key", "k1")
	s.Equal(http.StatusConflict, rec.Code)
	var errResp api.ErrorResponse
	s.decode(rec, &errResp)
	s.Equal(domain.CodeClaveReutilizada, errResp.Code)
}

func (s *HandlerSuite) TestVerificarLimitesRejectsNegativeAmount() {
	c := s.crearConvenio(map[string]any{"tope_monto_ventas": 100})

	rec := s.doRequest(http.MethodGet, fmt.Sprintf("/convenios/%d/limites?monto_descuento=-50", c.ID), nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	var errResp api.ErrorResponse
	s.decode(rec, &errResp)
	s.Equal(domain.CodeDatosInvalidos, errResp.Code)
}

func (s *HandlerSuite) TestCorrelationHeader() {
	rec := s.doRequest(http.MethodGet, "/convenios/999", nil, "X-Correlation-ID", "corr-1")
	s.Equal("corr-1", rec.Header().Get("X-Correlation-ID"))

	rec = s.doRequest(http.MethodGet, "/convenios/999", nil)
	s.NotEmpty(rec.Header().Get("X-Correlation-ID"))
}
