package domain

import (
	"strings"
	"time"

	"convenios/internal/common/types"
)

// DescuentoParams describes a new discount rule. At least one scope must be set.
type DescuentoParams struct {
	ConvenioID        *int64
	CodigoDescuentoID *int64
	TipoPasajeroID    *int64
	PasajeroID        *int64
	Porcentaje        int
}

// Descuento is a percentage discount rule scoped to a convenio, a discount
// code, a passenger type or a single passenger.
type Descuento struct {
	ID                int64
	ConvenioID        *int64
	CodigoDescuentoID *int64
	TipoPasajeroID    *int64
	PasajeroID        *int64
	Porcentaje        int
	Estado            Estado
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDescuento validates p and returns an ACTIVO rule.
func NewDescuento(p DescuentoParams, now time.Time) (*Descuento, error) {
	if err := types.ValidatePercentage(p.Porcentaje); err != nil {
		return nil, NewBusinessError(CodePorcentajeInvalido,
			"El porcentaje de descuento debe estar entre 0 y 100 (recibido %d)", p.Porcentaje)
	}
	if p.ConvenioID == nil && p.CodigoDescuentoID == nil && p.TipoPasajeroID == nil && p.PasajeroID == nil {
		return nil, NewBusinessError(CodeDatosInvalidos, "El descuento debe indicar al menos un ámbito de aplicación")
	}
	return &Descuento{
		ConvenioID:        cloneInt64(p.ConvenioID),
		CodigoDescuentoID: cloneInt64(p.CodigoDescuentoID),
		TipoPasajeroID:    cloneInt64(p.TipoPasajeroID),
		PasajeroID:        cloneInt64(p.PasajeroID),
		Porcentaje:        p.Porcentaje,
		Estado:            EstadoActivo,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Activo reports whether the rule can be applied.
func (d *Descuento) Activo() bool {
	return d.Estado == EstadoActivo
}

// Desactivar retires the rule. Returns false when it was already inactive.
func (d *Descuento) Desactivar(now time.Time) bool {
	if d.Estado == EstadoInactivo {
		return false
	}
	d.Estado = EstadoInactivo
	d.UpdatedAt = now
	return true
}

// ConvenioScope reports whether the rule is a convenio-level rule (general or
// per passenger type) and, if so, returns the convenio and tipo it is keyed on.
// Only one ACTIVO rule may exist per key.
func (d *Descuento) ConvenioScope() (convenioID int64, tipoPasajeroID *int64, ok bool) {
	if d.ConvenioID == nil || d.CodigoDescuentoID != nil || d.PasajeroID != nil {
		return 0, nil, false
	}
	return *d.ConvenioID, d.TipoPasajeroID, true
}

// Clone returns a deep copy.
func (d *Descuento) Clone() *Descuento {
	cp := *d
	cp.ConvenioID = cloneInt64(d.ConvenioID)
	cp.CodigoDescuentoID = cloneInt64(d.CodigoDescuentoID)
	cp.TipoPasajeroID = cloneInt64(d.TipoPasajeroID)
	cp.PasajeroID = cloneInt64(d.PasajeroID)
	return &cp
}

// CodigoDescuentoParams describes a new discount code.
type CodigoDescuentoParams struct {
	Codigo       string
	ConvenioID   *int64
	FechaInicio  *time.Time
	FechaTermino *time.Time
	MaxUsos      *int64
}

// CodigoDescuento is a literal code a buyer enters at checkout.
type CodigoDescuento struct {
	ID             int64
	Codigo         string
	ConvenioID     *int64
	FechaInicio    *time.Time
	FechaTermino   *time.Time
	MaxUsos        *int64
	UsosRealizados int64
	Estado         Estado
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizarCodigo is the canonical form codes are stored and looked up in.
func NormalizarCodigo(codigo string) string {
	return strings.ToUpper(strings.TrimSpace(codigo))
}

// NewCodigoDescuento validates p and returns an ACTIVO code with no uses.
func NewCodigoDescuento(p CodigoDescuentoParams, now time.Time) (*CodigoDescuento, error) {
	codigo := NormalizarCodigo(p.Codigo)
	if codigo == "" {
		return nil, NewBusinessError(CodeDatosInvalidos, "El código de descuento es obligatorio")
	}
	if p.MaxUsos != nil && *p.MaxUsos <= 0 {
		return nil, NewBusinessError(CodeDatosInvalidos, "El máximo de usos debe ser mayor a cero")
	}
	if p.FechaInicio != nil && p.FechaTermino != nil && Date(*p.FechaTermino).Before(Date(*p.FechaInicio)) {
		return nil, NewBusinessError(CodeDatosInvalidos, "La fecha de término no puede ser anterior a la fecha de inicio")
	}
	return &CodigoDescuento{
		Codigo:       codigo,
		ConvenioID:   cloneInt64(p.ConvenioID),
		FechaInicio:  datePtr(p.FechaInicio),
		FechaTermino: datePtr(p.FechaTermino),
		MaxUsos:      cloneInt64(p.MaxUsos),
		Estado:       EstadoActivo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Vigente reports whether the code is ACTIVO and now falls inside its window.
// Exhaustion is not considered here.
func (c *CodigoDescuento) Vigente(now time.Time) bool {
	return c.Estado == EstadoActivo && !expired(now, c.FechaTermino) && !notStarted(now, c.FechaInicio)
}

// Agotado reports whether the usage cap has been reached.
func (c *CodigoDescuento) Agotado() bool {
	return c.MaxUsos != nil && c.UsosRealizados >= *c.MaxUsos
}

// Validar checks that the code can be redeemed once more.
func (c *CodigoDescuento) Validar(now time.Time) error {
	if !c.Vigente(now) {
		return NewBusinessError(CodeCodigoNoVigente, "El código de descuento %s no está vigente", c.Codigo)
	}
	if c.Agotado() {
		return NewBusinessError(CodeCodigoAgotado,
			"El código de descuento %s alcanzó su máximo de %d usos", c.Codigo, *c.MaxUsos)
	}
	return nil
}

// RegistrarUso validates and consumes one use of the code.
func (c *CodigoDescuento) RegistrarUso(now time.Time) error {
	if err := c.Validar(now); err != nil {
		return err
	}
	c.UsosRealizados++
	c.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (c *CodigoDescuento) Clone() *CodigoDescuento {
	cp := *c
	cp.ConvenioID = cloneInt64(c.ConvenioID)
	cp.FechaInicio = datePtr(c.FechaInicio)
	cp.FechaTermino = datePtr(c.FechaTermino)
	cp.MaxUsos = cloneInt64(c.MaxUsos)
	return &cp
}
