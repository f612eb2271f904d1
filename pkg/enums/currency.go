package enums

import "strings"

// Currency is the ISO-4217 code carried on orders. Settlement is
// single-currency; the code is stored for display and gateway calls.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

// Normalize upper-cases the code and falls back to INR when empty.
func NormalizeCurrency(value string) Currency {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return CurrencyINR
	}
	return Currency(v)
}
