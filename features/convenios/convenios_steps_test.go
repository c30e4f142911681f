package convenios

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"convenios/internal/convenios/application"
	"convenios/internal/convenios/domain"
	"convenios/internal/convenios/infrastructure/memory"
)

type conveniosState struct {
	ctx        context.Context
	loc        *time.Location
	now        time.Time
	service    *application.ConvenioService
	convenio   *domain.Convenio
	compras    []*domain.Evento
	lastError  error
	errores    int
	vigente    bool
	barrido    application.ResultadoBarrido
	resuelto   *domain.Descuento
	recalculos []application.ResultadoRecalculo
}

func InitializeConveniosScenario(ctx *godog.ScenarioContext) {
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		loc = time.UTC
	}
	state := &conveniosState{
		ctx: context.Background(),
		loc: loc,
	}
	state.service = application.NewConvenioService(memory.NewDataStore(),
		application.WithClock(func() time.Time { return state.now }),
		application.WithLocation(loc),
	)

	// Background steps
	ctx.Step(`^today is "([^"]*)"$`, state.todayIs)

	// Convenio setup
	ctx.Step(`^a convenio with a ticket cap of (\d+)$`, state.aConvenioWithATicketCapOf)
	ctx.Step(`^a convenio with a monetary cap of (\d+)$`, state.aConvenioWithAMonetaryCapOf)
	ctx.Step(`^a convenio without caps$`, state.aConvenioWithoutCaps)
	ctx.Step(`^a convenio ending "([^"]*)"$`, state.aConvenioEnding)
	ctx.Step(`^the convenio grants a general discount of (\d+) percent$`, state.theConvenioGrantsAGeneralDiscount)
	ctx.Step(`^the convenio grants a discount of (\d+) percent to passenger type (\d+)$`, state.theConvenioGrantsATypedDiscount)

	// Purchase and refund steps
	ctx.Step(`^I purchase a ticket with fare (\d+)$`, state.iPurchaseATicketWithFare)
	ctx.Step(`^I purchase (\d+) tickets with fare (\d+)$`, state.iPurchaseTicketsWithFare)
	ctx.Step(`^I refund purchase (\d+)$`, state.iRefundPurchase)
	ctx.Step(`^the purchase is admitted$`, state.thePurchaseIsAdmitted)
	ctx.Step(`^every purchase is admitted$`, state.everyPurchaseIsAdmitted)
	ctx.Step(`^the purchase is rejected with a message containing "([^"]*)"$`, state.thePurchaseIsRejectedWithAMessageContaining)

	// Consumption steps
	ctx.Step(`^the convenio has consumed (\d+) tickets$`, state.theConvenioHasConsumedTickets)
	ctx.Step(`^the convenio has consumed an amount of (\d+)$`, state.theConvenioHasConsumedAnAmountOf)
	ctx.Step(`^I recompute the consumption twice$`, state.iRecomputeTheConsumptionTwice)
	ctx.Step(`^both recomputations report (\d+) tickets and an amount of (\d+)$`, state.bothRecomputationsReport)

	// Lifecycle steps
	ctx.Step(`^I check the vigency of the convenio$`, state.iCheckTheVigencyOfTheConvenio)
	ctx.Step(`^the convenio is vigent$`, state.theConvenioIsVigent)
	ctx.Step(`^the convenio is not vigent$`, state.theConvenioIsNotVigent)
	ctx.Step(`^the convenio status is "([^"]*)"$`, state.theConvenioStatusIs)
	ctx.Step(`^the expiry sweep runs$`, state.theExpirySweepRuns)
	ctx.Step(`^(\d+) convenio is deactivated$`, state.convenioIsDeactivated)

	// Resolver steps
	ctx.Step(`^I resolve the discount for passenger type (\d+)$`, state.iResolveTheDiscountForPassengerType)
	ctx.Step(`^the resolved discount is (\d+) percent$`, state.theResolvedDiscountIs)
}

func (s *conveniosState) todayIs(date string) error {
	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return err
	}
	s.now = day.Add(12 * time.Hour)
	return nil
}

func (s *conveniosState) crearConvenio(p domain.ConvenioParams) error {
	p.Nombre = "Convenio BDD"
	p.EmpresaID = 1
	c, err := s.service.CrearConvenio(s.ctx, p)
	if err != nil {
		return err
	}
	s.convenio = c
	return nil
}

func (s *conveniosState) aConvenioWithATicketCapOf(tope int64) error {
	return s.crearConvenio(domain.ConvenioParams{TopeCantidadTickets: &tope})
}

func (s *conveniosState) aConvenioWithAMonetaryCapOf(tope int64) error {
	return s.crearConvenio(domain.ConvenioParams{TopeMontoVentas: &tope})
}

func (s *conveniosState) aConvenioWithoutCaps() error {
	return s.crearConvenio(domain.ConvenioParams{})
}

func (s *conveniosState) aConvenioEnding(date string) error {
	termino, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return err
	}
	return s.crearConvenio(domain.ConvenioParams{FechaTermino: &termino})
}

func (s *conveniosState) convenioID() *int64 {
	id := s.convenio.ID()
	return &id
}

func (s *conveniosState) theConvenioGrantsAGeneralDiscount(porcentaje int) error {
	_, err := s.service.CrearDescuento(s.ctx, domain.DescuentoParams{
		ConvenioID: s.convenioID(),
		Porcentaje: porcentaje,
	})
	return err
}

func (s *conveniosState) theConvenioGrantsATypedDiscount(porcentaje int, tipo int64) error {
	_, err := s.service.CrearDescuento(s.ctx, domain.DescuentoParams{
		ConvenioID:     s.convenioID(),
		TipoPasajeroID: &tipo,
		Porcentaje:     porcentaje,
	})
	return err
}

func (s *conveniosState) iPurchaseATicketWithFare(tarifa int64) error {
	evento, err := s.service.CrearCompraEvento(s.ctx, application.CrearCompraRequest{
		CompraParams: domain.CompraParams{
			PasajeroID:    int64(len(s.compras) + 1),
			EmpresaID:     1,
			ConvenioID:    s.convenioID(),
			CiudadOrigen:  "Santiago",
			CiudadDestino: "La Serena",
			NumeroTicket:  fmt.Sprintf("T-%d", len(s.compras)+1),
			TarifaBase:    tarifa,
		},
	})
	s.lastError = err
	if err != nil {
		s.errores++
		return nil // We capture errors in state for later assertions
	}
	s.compras = append(s.compras, evento)
	return nil
}

func (s *conveniosState) iPurchaseTicketsWithFare(n int, tarifa int64) error {
	for i := 0; i < n; i++ {
		if err := s.iPurchaseATicketWithFare(tarifa); err != nil {
			return err
		}
	}
	return nil
}

func (s *conveniosState) iRefundPurchase(n int) error {
	if n < 1 || n > len(s.compras) {
		return fmt.Errorf("purchase %d does not exist (have %d)", n, len(s.compras))
	}
	_, err := s.service.CrearDevolucionEvento(s.ctx, application.CrearDevolucionRequest{
		EventoOrigenID: s.compras[n-1].ID,
	})
	return err
}

func (s *conveniosState) thePurchaseIsAdmitted() error {
	if s.lastError != nil {
		return fmt.Errorf("expected purchase to be admitted, got: %w", s.lastError)
	}
	return nil
}

func (s *conveniosState) everyPurchaseIsAdmitted() error {
	if s.errores > 0 {
		return fmt.Errorf("%d purchases were rejected, last: %v", s.errores, s.lastError)
	}
	return nil
}

func (s *conveniosState) thePurchaseIsRejectedWithAMessageContaining(fragment string) error {
	if s.lastError == nil {
		return fmt.Errorf("expected purchase to be rejected, but it was admitted")
	}
	if !strings.Contains(s.lastError.Error(), fragment) {
		return fmt.Errorf("expected error containing %q, got %q", fragment, s.lastError.Error())
	}
	return nil
}

func (s *conveniosState) reload() (*domain.Convenio, error) {
	c, err := s.service.ObtenerConvenio(s.ctx, s.convenio.ID())
	if err != nil {
		return nil, err
	}
	s.convenio = c
	return c, nil
}

func (s *conveniosState) theConvenioHasConsumedTickets(expected int64) error {
	c, err := s.reload()
	if err != nil {
		return err
	}
	if c.ConsumoTickets() != expected {
		return fmt.Errorf("expected %d tickets consumed, got %d", expected, c.ConsumoTickets())
	}
	return nil
}

func (s *conveniosState) theConvenioHasConsumedAnAmountOf(expected int64) error {
	c, err := s.reload()
	if err != nil {
		return err
	}
	if c.ConsumoMonto() != expected {
		return fmt.Errorf("expected amount consumed %d, got %d", expected, c.ConsumoMonto())
	}
	return nil
}

func (s *conveniosState) iRecomputeTheConsumptionTwice() error {
	for i := 0; i < 2; i++ {
		result, err := s.service.RecalcularConsumo(s.ctx, s.convenio.ID())
		if err != nil {
			return err
		}
		s.recalculos = append(s.recalculos, result)
	}
	return nil
}

func (s *conveniosState) bothRecomputationsReport(tickets, monto int64) error {
	if len(s.recalculos) != 2 {
		return fmt.Errorf("expected 2 recomputations, got %d", len(s.recalculos))
	}
	want := domain.Consumo{Tickets: tickets, Monto: monto}
	for i, r := range s.recalculos {
		if r.Actual != want {
			return fmt.Errorf("recomputation %d: expected %+v, got %+v", i+1, want, r.Actual)
		}
	}
	if s.recalculos[1].Corregido {
		return fmt.Errorf("second recomputation should not correct anything")
	}
	return nil
}

func (s *conveniosState) iCheckTheVigencyOfTheConvenio() error {
	vigente, err := s.service.ValidarVigencia(s.ctx, s.convenio.ID())
	if err != nil {
		return err
	}
	s.vigente = vigente
	return nil
}

func (s *conveniosState) theConvenioIsVigent() error {
	if !s.vigente {
		return fmt.Errorf("expected convenio to be vigent")
	}
	return nil
}

func (s *conveniosState) theConvenioIsNotVigent() error {
	if s.vigente {
		return fmt.Errorf("expected convenio not to be vigent")
	}
	return nil
}

func (s *conveniosState) theConvenioStatusIs(estado string) error {
	c, err := s.reload()
	if err != nil {
		return err
	}
	if string(c.Estado()) != estado {
		return fmt.Errorf("expected status %s, got %s", estado, c.Estado())
	}
	return nil
}

func (s *conveniosState) theExpirySweepRuns() error {
	result, err := s.service.DesactivarConveniosVencidos(s.ctx)
	if err != nil {
		return err
	}
	s.barrido = result
	return nil
}

func (s *conveniosState) convenioIsDeactivated(expected int) error {
	if s.barrido.Total != expected {
		return fmt.Errorf("expected %d convenios deactivated, got %d", expected, s.barrido.Total)
	}
	return nil
}

func (s *conveniosState) iResolveTheDiscountForPassengerType(tipo int64) error {
	d, err := s.service.ObtenerDescuentoAplicable(s.ctx, application.CriteriosDescuento{
		ConvenioID:     s.convenioID(),
		TipoPasajeroID: &tipo,
	})
	if err != nil {
		return err
	}
	s.resuelto = d
	return nil
}

func (s *conveniosState) theResolvedDiscountIs(porcentaje int) error {
	if s.resuelto == nil {
		return fmt.Errorf("expected a %d%% discount, got none", porcentaje)
	}
	if s.resuelto.Porcentaje != porcentaje {
		return fmt.Errorf("expected %d%% discount, got %d%%", porcentaje, s.resuelto.Porcentaje)
	}
	return nil
}
