package model

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bizbilling/internal/domain"
)

// FormatMinor renders minor units as a two-decimal string ("1500" -> "15.00").
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// FormatMoney renders an amount for humans, e.g. "15.00 USD".
func FormatMoney(amount int64, currency string) string {
	return fmt.Sprintf("%s %s", FormatMinor(amount), currency)
}

// ParseMinor parses a decimal string ("15.00") into minor units.
// Values with more than two fractional digits are rejected.
func ParseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, domain.ErrInvalidArgument)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has sub-cent precision: %w", s, domain.ErrInvalidArgument)
	}
	return cents.IntPart(), nil
}
