package domain

import (
	"strings"
	"time"

	"convenios/internal/common/types"
)

// Vigencia is the outcome of evaluating a convenio against the clock.
type Vigencia int

const (
	VigenciaActiva Vigencia = iota
	VigenciaInactiva
	VigenciaVencida
	VigenciaNoIniciada
)

func (v Vigencia) String() string {
	switch v {
	case VigenciaActiva:
		return "activa"
	case VigenciaInactiva:
		return "inactiva"
	case VigenciaVencida:
		return "vencida"
	case VigenciaNoIniciada:
		return "no_iniciada"
	default:
		return "desconocida"
	}
}

// Vigente reports whether purchases may be admitted.
func (v Vigencia) Vigente() bool {
	return v == VigenciaActiva
}

// ConvenioParams holds the admin-editable attributes of a convenio.
type ConvenioParams struct {
	Nombre              string
	EmpresaID           int64
	FechaInicio         *time.Time
	FechaTermino        *time.Time
	TopeCantidadTickets *int64
	TopeMontoVentas     *int64
}

// Validate checks the attribute-level rules shared by creation and update.
func (p ConvenioParams) Validate() error {
	if strings.TrimSpace(p.Nombre) == "" {
		return NewBusinessError(CodeDatosInvalidos, "El nombre del convenio es obligatorio")
	}
	if p.TopeCantidadTickets != nil && *p.TopeCantidadTickets < 0 {
		return NewBusinessError(CodeDatosInvalidos, "El tope de cantidad de tickets no puede ser negativo")
	}
	if p.TopeMontoVentas != nil && *p.TopeMontoVentas < 0 {
		return NewBusinessError(CodeDatosInvalidos, "El tope de monto de ventas no puede ser negativo")
	}
	if p.FechaInicio != nil && p.FechaTermino != nil && Date(*p.FechaTermino).Before(Date(*p.FechaInicio)) {
		return NewBusinessError(CodeDatosInvalidos, "La fecha de término no puede ser anterior a la fecha de inicio")
	}
	return nil
}

// Convenio is a corporate discount agreement (aggregate root).
// Invariants:
//   - consumoTickets and consumoMonto are never negative
//   - counters change only through RegistrarCompra, RegistrarDevolucion and AplicarConsumo
type Convenio struct {
	id             int64
	nombre         string
	empresaID      int64
	estado         Estado
	fechaInicio    *time.Time
	fechaTermino   *time.Time
	topeTickets    *int64
	topeMonto      *int64
	consumoTickets int64
	consumoMonto   int64
	version        int
	loadedVersion  int
	createdAt      time.Time
	updatedAt      time.Time
}

// NewConvenio creates an ACTIVO convenio with zero consumption.
// The now parameter makes the function pure and testable.
func NewConvenio(p ConvenioParams, now time.Time) (*Convenio, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &Convenio{
		estado:    EstadoActivo,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}
	c.apply(p)
	return c, nil
}

// ReconstructConvenio reconstructs a Convenio from persistence.
// This bypasses validation - only use for loading from database.
func ReconstructConvenio(
	id int64,
	p ConvenioParams,
	estado Estado,
	consumoTickets int64,
	consumoMonto int64,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
) *Convenio {
	c := &Convenio{
		id:             id,
		estado:         estado,
		consumoTickets: consumoTickets,
		consumoMonto:   consumoMonto,
		version:        version,
		loadedVersion:  version,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
	c.apply(p)
	return c
}

func (c *Convenio) apply(p ConvenioParams) {
	c.nombre = strings.TrimSpace(p.Nombre)
	c.empresaID = p.EmpresaID
	c.fechaInicio = datePtr(p.FechaInicio)
	c.fechaTermino = datePtr(p.FechaTermino)
	c.topeTickets = cloneInt64(p.TopeCantidadTickets)
	c.topeMonto = cloneInt64(p.TopeMontoVentas)
}

// Actualizar replaces the admin-editable attributes and, when estado is set,
// the status. It is the only path from INACTIVO back to ACTIVO.
func (c *Convenio) Actualizar(p ConvenioParams, estado *Estado, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if estado != nil && !estado.Valid() {
		return NewBusinessError(CodeDatosInvalidos, "Estado de convenio inválido: %s", *estado)
	}
	c.apply(p)
	c.touch(now)
	if estado != nil {
		if *estado == EstadoActivo {
			c.Reactivar(now)
		} else {
			c.Desactivar(now)
		}
	}
	return nil
}

// EvaluarVigencia classifies the convenio against now without side effects.
// Expiry uses end-of-day semantics: a convenio ending today stays vigent
// until 23:59:59.999 in now's location.
func (c *Convenio) EvaluarVigencia(now time.Time) Vigencia {
	switch {
	case c.estado == EstadoInactivo:
		return VigenciaInactiva
	case expired(now, c.fechaTermino):
		return VigenciaVencida
	case notStarted(now, c.fechaInicio):
		return VigenciaNoIniciada
	default:
		return VigenciaActiva
	}
}

// Desactivar flips the convenio to INACTIVO. Returns false when it already was.
func (c *Convenio) Desactivar(now time.Time) bool {
	if c.estado == EstadoInactivo {
		return false
	}
	c.estado = EstadoInactivo
	c.touch(now)
	return true
}

// Reactivar flips the convenio back to ACTIVO. Returns false when it already was.
// Reactivating an expired convenio without moving its fecha_termino leaves it
// not vigent.
func (c *Convenio) Reactivar(now time.Time) bool {
	if c.estado == EstadoActivo {
		return false
	}
	c.estado = EstadoActivo
	c.touch(now)
	return true
}

// TieneTopes reports whether any cap is configured.
func (c *Convenio) TieneTopes() bool {
	return c.topeTickets != nil || c.topeMonto != nil
}

// VerificarAdmision decides whether one more ticket granting montoDescuento
// of discount fits within the caps given the current consumption.
// Reaching a cap exactly is allowed; exceeding it is not.
func (c *Convenio) VerificarAdmision(consumo Consumo, montoDescuento int64) error {
	if !c.TieneTopes() {
		return nil
	}
	if c.topeMonto != nil && consumo.Monto+montoDescuento > *c.topeMonto {
		return NewBusinessError(CodeLimiteMontoExcedido,
			"Límite de monto de ventas excedido. Tope: %s, consumido: %s, intento: %s",
			types.FormatCLP(*c.topeMonto), types.FormatCLP(consumo.Monto), types.FormatCLP(montoDescuento))
	}
	if c.topeTickets != nil && consumo.Tickets+1 > *c.topeTickets {
		return NewBusinessError(CodeLimiteTicketsExcedido,
			"Límite de cantidad de tickets excedido. Tope: %d, consumidos: %d",
			*c.topeTickets, consumo.Tickets)
	}
	return nil
}

// RegistrarCompra adds one ticket and its granted discount to the cached counters.
func (c *Convenio) RegistrarCompra(montoDescuento int64, now time.Time) {
	c.consumoTickets++
	c.consumoMonto += types.ClampNonNegative(montoDescuento)
	c.touch(now)
}

// RegistrarDevolucion removes one ticket and its discount from the cached
// counters, clamping both at zero.
func (c *Convenio) RegistrarDevolucion(montoDescuento int64, now time.Time) {
	c.consumoTickets = types.ClampNonNegative(c.consumoTickets - 1)
	c.consumoMonto = types.ClampNonNegative(c.consumoMonto - types.ClampNonNegative(montoDescuento))
	c.touch(now)
}

// AplicarConsumo overwrites the cached counters with a recomputed value.
// Returns true when the counters changed.
func (c *Convenio) AplicarConsumo(consumo Consumo, now time.Time) bool {
	consumo = consumo.normalized()
	if consumo == c.Consumo() {
		return false
	}
	c.consumoTickets = consumo.Tickets
	c.consumoMonto = consumo.Monto
	c.touch(now)
	return true
}

func (c *Convenio) touch(now time.Time) {
	c.version = c.loadedVersion + 1
	c.updatedAt = now
}

// AssignID sets the identity generated by the store on insert.
func (c *Convenio) AssignID(id int64) { c.id = id }

// MarkPersisted records that the current version has been stored, so later
// saves in the same unit of work compare against it.
func (c *Convenio) MarkPersisted() { c.loadedVersion = c.version }

// Getters

func (c *Convenio) ID() int64 { return c.id }
func (c *Convenio) Nombre() string { return c.nombre }
func (c *Convenio) EmpresaID() int64 { return c.empresaID }
func (c *Convenio) Estado() Estado { return c.estado }
func (c *Convenio) FechaInicio() *time.Time { return c.fechaInicio }
func (c *Convenio) FechaTermino() *time.Time { return c.fechaTermino }
func (c *Convenio) TopeCantidadTickets() *int64 { return c.topeTickets }
func (c *Convenio) TopeMontoVentas() *int64 { return c.topeMonto }
func (c *Convenio) ConsumoTickets() int64 { return c.consumoTickets }
func (c *Convenio) ConsumoMonto() int64 { return c.consumoMonto }
func (c *Convenio) Consumo() Consumo { return Consumo{Tickets: c.consumoTickets, Monto: c.consumoMonto} }
func (c *Convenio) Version() int { return c.version }
func (c *Convenio) ExpectedVersion() int { return c.loadedVersion }
func (c *Convenio) CreatedAt() time.Time { return c.createdAt }
func (c *Convenio) UpdatedAt() time.Time { return c.updatedAt }

// Params returns the admin-editable attributes.
func (c *Convenio) Params() ConvenioParams {
	return ConvenioParams{
		Nombre:              c.nombre,
		EmpresaID:           c.empresaID,
		FechaInicio:         datePtr(c.fechaInicio),
		FechaTermino:        datePtr(c.fechaTermino),
		TopeCantidadTickets: cloneInt64(c.topeTickets),
		TopeMontoVentas:     cloneInt64(c.topeMonto),
	}
}

// Clone returns a deep copy. Stores use it so callers never share state.
func (c *Convenio) Clone() *Convenio {
	cp := *c
	cp.fechaInicio = datePtr(c.fechaInicio)
	cp.fechaTermino = datePtr(c.fechaTermino)
	cp.topeTickets = cloneInt64(c.topeTickets)
	cp.topeMonto = cloneInt64(c.topeMonto)
	return &cp
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Date(*t)
	return &d
}
