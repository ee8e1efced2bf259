// Package core holds the expense domain: parsing free text into records,
// period windows and the aggregations rendered by the bot.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted, along with
// spaces used as thousands separators ("1 500"). Sign and zero checks are
// left to the caller.
//
// Examples:
//
//	ParseAmount("99,5") -> 99.5
//	ParseAmount("1 500") -> 1500
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals, the way replies show it.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Average divides total by count, returning zero for an empty set.
func Average(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}
