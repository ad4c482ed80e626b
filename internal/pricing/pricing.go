// Package pricing derives order totals from a cart snapshot. Totals are
// never stored; callers recompute them from the live cart so no cached
// figure can drift from the cart's contents.
package pricing

import "math"

// Rates holds the fixed tax and card-fee percentages. The card fee is
// applied to the tax-inclusive amount, not the bare subtotal.
type Rates struct {
	Tax     float64 `mapstructure:"tax_rate"`
	CardFee float64 `mapstructure:"card_fee_rate"`
}

// DefaultRates matches the store's current configuration: 7% sales tax,
// 3% card processing fee.
var DefaultRates = Rates{Tax: 0.07, CardFee: 0.03}

// Totals is the full monetary breakdown for a cart plus tip.
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	Tax        float64 `json:"tax"`
	CardFee    float64 `json:"card_fee"`
	GrandTotal float64 `json:"grand_total"`
	Tip        float64 `json:"tip"`
	FinalTotal float64 `json:"final_total"`
}

// LineTotaler is anything with a per-line total, i.e. a cart entry.
type LineTotaler interface {
	LineTotal() float64
}

// Compute derives all totals from the line totals. Arithmetic stays in
// float64; rounding happens only at display formatting or minor-unit
// conversion, matching the store's accepted approximation.
func Compute[T LineTotaler](lines []T, rates Rates, tip float64) Totals {
	var subtotal float64
	for _, l := range lines {
		subtotal += l.LineTotal()
	}

	tax := subtotal * rates.Tax
	cardFee := (subtotal + tax) * rates.CardFee
	grand := subtotal + tax + cardFee

	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		CardFee:    cardFee,
		GrandTotal: grand,
		Tip:        tip,
		FinalTotal: grand + tip,
	}
}

// MinorUnits converts a display-unit amount to integer minor units
// (dollars to cents), rounding half away from zero. Gateway adapters own
// this conversion; the rest of the code stays in display units.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
