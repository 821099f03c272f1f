package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"R$ 1.234,56", 123456, true},
		{"1,234.56", 123456, true},
		{"R$ 0,99", 99, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1,2,3", 0, false},
		{"", 0, false},
		{"R$", 0, false},
		{"1e2", 10000, true},
		{"1e30000000", 0, false},
		{"1e-30000000", 0, false},
		{"99999999999999999", 0, false},
		{"0." + strings.Repeat("1", 5000), 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("%q expected invalid input, got %v", tc.in, err)
			}
		}
	}
}

func TestParseDecimalToCentsNegative(t *testing.T) {
	if _, err := ParseDecimalToCents("-5,00"); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestMoneyFormatting(t *testing.T) {
	cases := []struct {
		cents int64
		plain string
		brl   string
	}{
		{0, "0.00", "R$ 0,00"},
		{5, "0.05", "R$ 0,05"},
		{1050, "10.50", "R$ 10,50"},
		{123456, "1234.56", "R$ 1.234,56"},
		{123456789, "1234567.89", "R$ 1.234.567,89"},
	}
	for _, tc := range cases {
		m := Money{Cents: tc.cents}
		if got := m.String(); got != tc.plain {
			t.Errorf("String(%d) = %q, want %q", tc.cents, got, tc.plain)
		}
		if got := m.BRL(); got != tc.brl {
			t.Errorf("BRL(%d) = %q, want %q", tc.cents, got, tc.brl)
		}
	}
}

func TestBRLRoundTrip(t *testing.T) {
	for _, c := range []int64{0, 1, 99, 100, 123456, 100000000} {
		m := Money{Cents: c}
		got, err := ParseAmount(m.BRL())
		if err != nil {
			t.Fatalf("parse %q: %v", m.BRL(), err)
		}
		if got != m {
			t.Fatalf("round trip %d -> %q -> %d", c, m.BRL(), got.Cents)
		}
	}
}
