package domain

import "time"

// Estado is the ACTIVO/INACTIVO status shared by convenios, descuentos and
// discount codes.
type Estado string

const (
	EstadoActivo   Estado = "ACTIVO"
	EstadoInactivo Estado = "INACTIVO"
)

// Valid reports whether e is a known status.
func (e Estado) Valid() bool {
	return e == EstadoActivo || e == EstadoInactivo
}

// Calendar dates (fecha_inicio, fecha_termino) carry only year, month and day.
// They are interpreted in the location of the "now" they are compared with.

func startOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// endOfDay is 23:59:59.999 of date.
func endOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, loc)
}

// expired reports whether now is past the end of the termino date.
func expired(now time.Time, termino *time.Time) bool {
	return termino != nil && now.After(endOfDay(*termino, now.Location()))
}

// notStarted reports whether now precedes the start of the inicio date.
func notStarted(now time.Time, inicio *time.Time) bool {
	return inicio != nil && now.Before(startOfDay(*inicio, now.Location()))
}

// Date truncates t to a calendar date at UTC midnight, the form in which
// dates are stored.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
