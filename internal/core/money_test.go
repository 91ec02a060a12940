package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half away from zero
		{" 2.50 ", "2.5", true},
		{"-1", "-1", true},
		{"+4.2", "4.2", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"NaN", "", false},
		{"Inf", "", false},
		{"-", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"120":     "$120.00",
		"99.999":  "$100.00",
		"0":       "$0.00",
		"-3.5":    "-$3.50",
		"1234.56": "$1234.56",
	}
	for in, want := range cases {
		if got := FormatMoney(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatMoney(%s) = %q, want %q", in, got, want)
		}
	}
}
