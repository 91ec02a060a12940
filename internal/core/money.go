// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and formatting them for reasoning text and CLI output.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CentsPlaces is the number of decimal places kept for monetary amounts.
const CentsPlaces = 2

// ParseAmount converts a decimal string to an exact amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Rounding is half away from zero on the third decimal
// place. Exponents, NaN and infinities are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-3")     -> -3.00, nil
//	ParseAmount("1e3")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	body := s
	if strings.HasPrefix(body, "+") || strings.HasPrefix(body, "-") {
		body = body[1:]
	}
	if body == "" || strings.Count(body, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, r := range body {
		if r == '.' {
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
		digits++
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(CentsPlaces), nil
}

// RoundCents rounds an amount to cents.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentsPlaces)
}

// FormatMoney formats an amount as a dollar string with two decimals (e.g. "$12.30").
func FormatMoney(d decimal.Decimal) string {
	d = RoundCents(d)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(CentsPlaces)
	}
	return "$" + d.StringFixed(CentsPlaces)
}
