package cart

import (
	"github.com/shopspring/decimal"
)

var minorUnitsPerMajor = decimal.NewFromInt(100)

// ToMinorUnits converts an amount to integer cents/öre, rounding half up.
// Display and charge must never diverge by more than one minor unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
}
