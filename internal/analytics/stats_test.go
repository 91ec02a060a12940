package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		values   []decimal.Decimal
		wantMean float64
		wantStd  float64
		wantErr  error
	}{
		{
			name:    "empty sequence",
			values:  nil,
			wantErr: ErrInsufficientData,
		},
		{
			name:     "single value has no spread",
			values:   decimals("42.00"),
			wantMean: 42,
			wantStd:  0,
		},
		{
			name:     "identical values have exactly zero spread",
			values:   decimals("10.10", "10.10", "10.10", "10.10"),
			wantMean: 10.1,
			wantStd:  0,
		},
		{
			name:     "population standard deviation",
			values:   decimals("10", "20", "30"),
			wantMean: 20,
			wantStd:  math.Sqrt(200.0 / 3.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Describe(tt.values)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Describe() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Describe() unexpected error: %v", err)
			}
			if got.Count != len(tt.values) {
				t.Errorf("Describe().Count = %d, want %d", got.Count, len(tt.values))
			}
			if !almostEqual(got.Mean, tt.wantMean) {
				t.Errorf("Describe().Mean = %v, want %v", got.Mean, tt.wantMean)
			}
			if !almostEqual(got.StdDev, tt.wantStd) {
				t.Errorf("Describe().StdDev = %v, want %v", got.StdDev, tt.wantStd)
			}
		})
	}
}

func TestDescribeFloats(t *testing.T) {
	got, err := DescribeFloats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if err != nil {
		t.Fatalf("DescribeFloats() unexpected error: %v", err)
	}
	if got.Mean != 5 || got.StdDev != 2 {
		t.Errorf("DescribeFloats() = %+v, want mean 5 std 2", got)
	}

	if _, err := DescribeFloats(nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("DescribeFloats(nil) error = %v, want %v", err, ErrInsufficientData)
	}
	if _, err := DescribeFloats([]float64{1, math.NaN()}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("DescribeFloats(NaN) error = %v, want %v", err, ErrInvalidInput)
	}
	if _, err := DescribeFloats([]float64{math.Inf(1)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("DescribeFloats(Inf) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		mean    float64
		std     float64
		want    float64
		wantErr bool
	}{
		{name: "above mean", value: 30, mean: 20, std: 5, want: 2},
		{name: "below mean is absolute", value: 10, mean: 20, std: 5, want: 2},
		{name: "zero spread yields zero", value: 100, mean: 10, std: 0, want: 0},
		{name: "negative std", value: 1, mean: 1, std: -1, wantErr: true},
		{name: "NaN value", value: math.NaN(), mean: 1, std: 1, wantErr: true},
		{name: "infinite mean", value: 1, mean: math.Inf(-1), std: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ZScore(tt.value, tt.mean, tt.std)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("ZScore() error = %v, want %v", err, ErrInvalidInput)
				}
				return
			}
			if err != nil {
				t.Fatalf("ZScore() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ZScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoments_RemoveMatchesRebuild(t *testing.T) {
	all := NewMoments(decimals("20", "22", "19", "21", "20", "60")...)
	without := all.Remove(decimal.RequireFromString("60"))
	rebuilt := NewMoments(decimals("20", "22", "19", "21", "20")...)

	if without.Count() != rebuilt.Count() {
		t.Fatalf("Count() = %d, want %d", without.Count(), rebuilt.Count())
	}
	if !without.Sum().Equal(rebuilt.Sum()) {
		t.Errorf("Sum() = %s, want %s", without.Sum(), rebuilt.Sum())
	}

	a, _ := without.Summary()
	b, _ := rebuilt.Summary()
	if a != b {
		t.Errorf("Summary() = %+v, want %+v", a, b)
	}
	if !almostEqual(a.StdDev, math.Sqrt(26)/5) {
		t.Errorf("StdDev = %v, want %v", a.StdDev, math.Sqrt(26)/5)
	}
}

func TestMoments_Empty(t *testing.T) {
	var m Moments
	if _, err := m.Mean(); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Mean() error = %v, want %v", err, ErrInsufficientData)
	}
	if _, err := m.ZScore(decimal.NewFromInt(1)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("ZScore() error = %v, want %v", err, ErrInsufficientData)
	}
	if got := m.Remove(decimal.NewFromInt(1)); got.Count() != 0 {
		t.Errorf("Remove() on empty Count() = %d, want 0", got.Count())
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name    string
		current string
		prior   string
		want    float64
	}{
		{name: "increase", current: "100", prior: "80", want: 25},
		{name: "decrease", current: "50", prior: "200", want: -75},
		{name: "no change", current: "12.50", prior: "12.50", want: 0},
		{name: "zero prior yields zero", current: "100", prior: "0", want: 0},
		{name: "rounded to four places", current: "1", prior: "3", want: -66.6667},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.prior))
			if got != tt.want {
				t.Errorf("PercentChange(%s, %s) = %v, want %v", tt.current, tt.prior, got, tt.want)
			}
		})
	}
}
