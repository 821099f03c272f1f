package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseDecimalToCents converts a decimal string to cents, rounding half-up on the
// third decimal place.
//
// Dot (12.34), comma (12,34) and BRL formatted ("R$ 1.234,56") inputs are accepted.
// Zero is a valid amount; negative values are rejected.
//
//	ParseDecimalToCents("12.345")      -> 1235, nil
//	ParseDecimalToCents("R$ 1.234,56") -> 123456, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = normalizeAmount(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return DecimalToCents(d)
}

// DecimalToCents rounds d to two places and returns the cent value.
// The exponent and digit count are bounded before any arithmetic.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	exp := int(d.Exponent())
	if exp > maxExponent || exp < -maxExponent || d.Coefficient().BitLen() > maxCoefficientBits {
		return 0, ErrInvalidAmount
	}
	if d.NumDigits()+exp > maxIntDigits {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

const (
	maxCents = (1<<63 - 1) / 100

	maxExponent        = 18
	maxCoefficientBits = 128
	maxIntDigits       = 16 // digits of maxCents/100
)

// ParseAmount is ParseDecimalToCents returning Money.
func ParseAmount(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// normalizeAmount strips the currency symbol and thousands separators and leaves a
// dot as the only decimal separator.
func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		// 1.234,56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		// 1,234.56
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return "x"
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}

// Decimal returns the amount as an exact decimal in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimals and a dot separator.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// BRL renders the amount the way the dashboard displays it: "R$ 1.234,56".
func (m Money) BRL() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	whole := decimal.NewFromInt(c / 100).String()
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	frac := decimal.NewFromInt(c % 100).String()
	if len(frac) == 1 {
		frac = "0" + frac
	}
	prefix := "R$ "
	if neg {
		prefix = "-R$ "
	}
	return prefix + b.String() + "," + frac
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
