package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217-like code. It is a label only: amounts in
// different currencies are never converted into each other.
type Currency string

// zeroDecimal lists currencies without a minor unit. Amounts in these are
// split to whole units.
var zeroDecimal = map[Currency]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true,
	"JPY": true, "KMF": true, "KRW": true, "MGA": true, "PYG": true,
	"RWF": true, "UGX": true, "VND": true, "VUV": true, "XAF": true,
	"XOF": true, "XPF": true,
}

// ParseCurrency normalizes a currency code. Codes are three or four ASCII
// letters, case-insensitive.
func ParseCurrency(s string) (Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) < 3 || len(code) > 4 {
		return "", &InvalidExpenseError{Field: "currency", Reason: "must be 3 or 4 letters"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", &InvalidExpenseError{Field: "currency", Reason: "must be letters only"}
		}
	}
	return Currency(code), nil
}

// Scale returns the number of minor-unit digits: 0 for zero-decimal
// currencies, 2 otherwise.
func (c Currency) Scale() int32 {
	if zeroDecimal[c] {
		return 0
	}
	return 2
}

// Round rounds an amount to the currency's minor unit, half away from zero.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.Scale())
}

// Format renders an amount with exactly Scale() fractional digits.
func (c Currency) Format(d decimal.Decimal) string {
	return d.StringFixed(c.Scale())
}
