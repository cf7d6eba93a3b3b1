package graph

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnmarshalDecimal_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"USD 20,000", "20000"},
		{"EUR -20,000", "-20000"},
		{"  $1,234.50  ", "1234.5"},
		{"7.5", "7.5"},
	}
	for _, tc := range cases {
		d, err := UnmarshalDecimal(tc.in)
		if err != nil {
			t.Fatalf("UnmarshalDecimal(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("UnmarshalDecimal(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestUnmarshalDecimal_AcceptsNumbers(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{json.Number("12.25"), "12.25"},
		{int64(10), "10"},
		{int(3), "3"},
		{float64(0.1), "0.1"},
	}
	for _, tc := range cases {
		d, err := UnmarshalDecimal(tc.in)
		if err != nil {
			t.Fatalf("UnmarshalDecimal(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("UnmarshalDecimal(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestUnmarshalDecimal_RejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"", "USD", true, nil} {
		if _, err := UnmarshalDecimal(in); err == nil {
			t.Fatalf("UnmarshalDecimal(%v) expected an error", in)
		}
	}
}

func TestMarshalDecimal(t *testing.T) {
	var buf bytes.Buffer
	MarshalDecimal(decimal.RequireFromString("10.50")).MarshalGQL(&buf)
	if buf.String() != "10.5" {
		t.Fatalf("expected 10.5, got %s", buf.String())
	}
}
