package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyCLP is the ISO 4217 code for the Chilean peso. Amounts are whole
// pesos; the currency has no minor unit.
const CurrencyCLP = "CLP"

// ErrInvalidPercentage is returned when a percentage falls outside [0, 100].
var ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")

var hundred = decimal.NewFromInt(100)

// ValidatePercentage checks that pct is within [0, 100].
func ValidatePercentage(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPercentage, pct)
	}
	return nil
}

// ApplyPercentage returns pct percent of amount rounded half away from zero
// to whole pesos.
func ApplyPercentage(amount int64, pct int) int64 {
	if amount <= 0 || pct <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(pct))).
		Div(hundred).
		Round(0).
		IntPart()
}

// NetOfDiscount returns what remains of amount after a pct discount.
func NetOfDiscount(amount int64, pct int) int64 {
	return amount - ApplyPercentage(amount, pct)
}

// ClampNonNegative returns v, or zero when v is negative.
func ClampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// FormatCLP renders a peso amount with thousands separators, e.g. "$5.000".
func FormatCLP(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, d)
	}
	return sign + "$" + string(out)
}
