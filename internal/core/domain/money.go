package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by Money.
const MoneyScale = 2

// Amounts outside these bounds are rejected before any arithmetic, so an
// exponent like 1e-2000000000 never reaches Shift or IsInteger.
const (
	maxAmountLength    = 64
	maxAmountExponent  = 20
	minAmountExponent  = -(MoneyScale + 20)
	maxCoefficientBits = 128
)

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount in minor units (cents). Floating point is never used.
type Money int64

// ParseMoney converts a decimal string such as "250.00" into minor units.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if len(s) > maxAmountLength {
		return 0, fmt.Errorf("%w: amount longer than %d characters", ErrInvalidAmount, maxAmountLength)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}

	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts d into minor units, rejecting sub-cent precision
// and values that do not fit in an int64.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if exp := d.Exponent(); exp > maxAmountExponent || exp < minAmountExponent {
		return 0, fmt.Errorf("%w: exponent %d is out of range", ErrInvalidAmount, exp)
	}
	if d.Coefficient().BitLen() > maxCoefficientBits {
		return 0, fmt.Errorf("%w: too many significant digits", ErrInvalidAmount)
	}

	minor := d.Shift(MoneyScale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), MoneyScale)
	}

	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}

	return Money(minor.IntPart()), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MoneyScale)
}

// String renders the amount with exactly two decimals, e.g. "1250.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(MoneyScale)
}

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool {
	return m > 0
}

// Add returns m+o and false when the sum overflows.
func (m Money) Add(o Money) (Money, bool) {
	sum := m + o
	if (o > 0 && sum < m) || (o < 0 && sum > m) {
		return 0, false
	}
	return sum, true
}

// Sub returns m-o and false when the difference overflows.
func (m Money) Sub(o Money) (Money, bool) {
	diff := m - o
	if (o > 0 && diff > m) || (o < 0 && diff < m) {
		return 0, false
	}
	return diff, true
}

// MarshalJSON encodes the amount as a fixed two-decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("%w: malformed amount", ErrInvalidAmount)
		}
		raw = unquoted
	}

	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
