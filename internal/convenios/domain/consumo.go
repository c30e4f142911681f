package domain

import "convenios/internal/common/types"

// Consumo is the net usage of a convenio's caps.
type Consumo struct {
	Tickets int64 `json:"tickets"`
	Monto   int64 `json:"monto"`
}

func (c Consumo) normalized() Consumo {
	return Consumo{Tickets: types.ClampNonNegative(c.Tickets), Monto: types.ClampNonNegative(c.Monto)}
}

// CalcularConsumo recomputes consumption from a convenio's event log.
//
// Confirmed, non-deleted COMPRA and CAMBIO events add one ticket and their
// discount amount. A confirmed, non-deleted DEVOLUCION subtracts the same only
// when the purchase it reverses was itself counted, and each purchase is
// reversed at most once. Refunds are linked by EventoOrigenID; refunds without
// one fall back to matching an unreversed purchase with the same ticket number
// and PNR. Both totals are clamped at zero.
func CalcularConsumo(eventos []*Evento) Consumo {
	contadas := make(map[int64]*Evento)
	porTicket := make(map[string][]*Evento)
	for _, e := range eventos {
		if !e.Reembolsable() {
			continue
		}
		contadas[e.ID] = e
		if clave, ok := e.claveTicket(); ok {
			porTicket[clave] = append(porTicket[clave], e)
		}
	}

	var total Consumo
	for _, e := range contadas {
		total.Tickets++
		total.Monto += e.MontoDescuento()
	}

	// Explicit links are settled before legacy ticket matching so a legacy
	// refund never claims a purchase that has its own linked refund.
	revertidas := make(map[int64]bool)
	for _, legacy := range []bool{false, true} {
		for _, e := range eventos {
			if e.Tipo != TipoDevolucion || !e.Cuenta() || (e.EventoOrigenID == nil) != legacy {
				continue
			}
			origen := origenDe(e, contadas, porTicket, revertidas)
			if origen == nil {
				continue
			}
			revertidas[origen.ID] = true
			total.Tickets--
			total.Monto -= e.MontoDescuento()
		}
	}

	return total.normalized()
}

func origenDe(dev *Evento, contadas map[int64]*Evento, porTicket map[string][]*Evento, revertidas map[int64]bool) *Evento {
	if dev.EventoOrigenID != nil {
		origen, ok := contadas[*dev.EventoOrigenID]
		if !ok || revertidas[origen.ID] {
			return nil
		}
		return origen
	}
	clave, ok := dev.claveTicket()
	if !ok {
		return nil
	}
	for _, candidata := range porTicket[clave] {
		if !revertidas[candidata.ID] {
			return candidata
		}
	}
	return nil
}
