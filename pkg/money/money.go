// Package money converts between the int64 minor units stored in the
// database and the decimal amounts used on the wire.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor currency units.
type Cents = int64

// ToDecimal converts minor units to a two-place decimal.
func ToDecimal(c Cents) decimal.Decimal {
	return decimal.New(c, -2)
}

// FromDecimal converts a decimal amount to minor units. Amounts with more
// than two fractional digits are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", d.String())
	}
	return shifted.IntPart(), nil
}

// String formats minor units as a fixed two-place decimal string.
func String(c Cents) string {
	return ToDecimal(c).StringFixed(2)
}
