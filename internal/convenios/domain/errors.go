package domain

import (
	"errors"
	"fmt"
)

// Error classes. Typed errors below match these with errors.Is so callers can
// branch on the class without caring about the specific code.
var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrBusinessRule is matched by every BusinessError.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrOptimisticLock is returned when an optimistic lock conflict occurs.
	ErrOptimisticLock = errors.New("optimistic lock conflict")

	// ErrLockTimeout is returned when a row lock could not be taken in time.
	// Like ErrOptimisticLock the caller may retry.
	ErrLockTimeout = errors.New("row lock timeout")

	// ErrCorruptData is returned when data loaded from persistence is invalid.
	ErrCorruptData = errors.New("corrupt data in database")
)

// Machine codes carried by NotFoundError and BusinessError.
const (
	CodeConvenioNoEncontrado     = "CONVENIO_NO_ENCONTRADO"
	CodeDescuentoNoEncontrado    = "DESCUENTO_NO_ENCONTRADO"
	CodeCodigoNoEncontrado       = "CODIGO_DESCUENTO_NO_ENCONTRADO"
	CodeEventoNoEncontrado       = "EVENTO_NO_ENCONTRADO"
	CodeConvenioNoVigente        = "CONVENIO_NO_VIGENTE"
	CodeLimiteTicketsExcedido    = "LIMITE_TICKETS_EXCEDIDO"
	CodeLimiteMontoExcedido      = "LIMITE_MONTO_EXCEDIDO"
	CodeDescuentoActivoDuplicado = "DESCUENTO_ACTIVO_DUPLICADO"
	CodePorcentajeInvalido       = "PORCENTAJE_INVALIDO"
	CodeCodigoNoVigente          = "CODIGO_DESCUENTO_NO_VIGENTE"
	CodeCodigoAgotado            = "CODIGO_DESCUENTO_AGOTADO"
	CodeCodigoConvenioDistinto   = "CODIGO_DESCUENTO_CONVENIO_DISTINTO"
	CodeDatosInvalidos           = "DATOS_INVALIDOS"
	CodeEventoNoReembolsable     = "EVENTO_NO_REEMBOLSABLE"
	CodeEventoYaDevuelto         = "EVENTO_YA_DEVUELTO"
	CodeClaveReutilizada         = "CLAVE_IDEMPOTENCIA_REUTILIZADA"
)

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Code    string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for every NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// BusinessError reports a rule violation. It is not retryable without
// changing the input.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrBusinessRule) true for every BusinessError.
func (e *BusinessError) Is(target error) bool {
	return target == ErrBusinessRule
}

// NewNotFound builds a NotFoundError with a formatted message.
func NewNotFound(code, format string, args ...any) *NotFoundError {
	return &NotFoundError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewBusinessError builds a BusinessError with a formatted message.
func NewBusinessError(code, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ConvenioNotFound is returned when a convenio id does not resolve.
func ConvenioNotFound(id int64) *NotFoundError {
	return NewNotFound(CodeConvenioNoEncontrado, "Convenio %d no encontrado", id)
}

// DescuentoNotFound is returned when a descuento id does not resolve.
func DescuentoNotFound(id int64) *NotFoundError {
	return NewNotFound(CodeDescuentoNoEncontrado, "Descuento %d no encontrado", id)
}

// EventoNotFound is returned when an evento id does not resolve.
func EventoNotFound(id int64) *NotFoundError {
	return NewNotFound(CodeEventoNoEncontrado, "Evento %d no encontrado", id)
}

// CodigoNotFound is returned when a discount code cannot be resolved by id or literal.
func CodigoNotFound(ref string) *NotFoundError {
	return NewNotFound(CodeCodigoNoEncontrado, "Código de descuento %s no encontrado", ref)
}

// CodeOf returns the machine code of a NotFoundError or BusinessError, or "".
func CodeOf(err error) string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Code
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
