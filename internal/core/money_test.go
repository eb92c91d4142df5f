package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyFromDecimal(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"2.50", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"-0.01", 0, false},
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		if err != nil {
			t.Fatalf("bad test input %q: %v", tc.in, err)
		}
		got, err := MoneyFromDecimal(d)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d cents, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFloatRoundTrip(t *testing.T) {
	cases := []struct {
		cents int64
		want  float64
	}{
		{0, 0},
		{1, 0.01},
		{123, 1.23},
		{10000, 100},
		{99999, 999.99},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).Float(); got != tc.want {
			t.Fatalf("%d cents expected %v, got %v", tc.cents, tc.want, got)
		}
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		part, total int64
		want        float64
	}{
		{0, 0, 0},
		{50, 0, 0},
		{50, 100, 50},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{15000, 17500, 85.71},
		{-5000, 10000, -50},
	}
	for _, tc := range cases {
		if got := Percentage(tc.part, tc.total); got != tc.want {
			t.Fatalf("%d/%d expected %v, got %v", tc.part, tc.total, tc.want, got)
		}
	}
}
