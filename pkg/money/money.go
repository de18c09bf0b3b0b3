// Package money holds helpers for integer minor-unit amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent is the number of minor-unit digits per currency; unknown
// currencies default to two.
var minorExponent = map[string]int32{
	"INR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"JPY": 0,
}

func exponent(currency string) int32 {
	if exp, ok := minorExponent[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ApplyRate returns amount * rate rounded half away from zero to whole minor units.
func ApplyRate(amountMinor int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amountMinor).Mul(rate).Round(0).IntPart()
}

// ToMajor converts a minor-unit amount into a decimal in major units.
func ToMajor(amountMinor int64, currency string) decimal.Decimal {
	return decimal.New(amountMinor, -exponent(currency))
}

// Format renders an amount for display, e.g. "INR 295.00".
func Format(amountMinor int64, currency string) string {
	exp := exponent(currency)
	return fmt.Sprintf("%s %s", strings.ToUpper(currency), ToMajor(amountMinor, currency).StringFixed(exp))
}

// ValidCurrency reports whether code looks like an ISO 4217 alpha code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
