// Package analytics implements the spending analytics engine: descriptive
// statistics, anomaly detection, forecasting, budget recommendations and
// dashboard insights over a user's transaction history.
//
// Everything in this package is a pure function of its inputs except the
// Engine's single ledger read per operation. Nothing here logs; errors are
// returned to the caller.
package analytics

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Summary describes a sample with its population standard deviation.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
}

// Moments accumulates count, sum and sum of squares exactly. Adding or
// removing a value is O(1), so leave-one-out statistics never rescan the
// sample, and zero variance is detected exactly instead of as float residue.
type Moments struct {
	n          int
	sum        decimal.Decimal
	sumSquares decimal.Decimal
}

// NewMoments accumulates the given values.
func NewMoments(values ...decimal.Decimal) Moments {
	var m Moments
	for _, v := range values {
		m = m.Add(v)
	}
	return m
}

// Add returns the moments with v included.
func (m Moments) Add(v decimal.Decimal) Moments {
	return Moments{
		n:          m.n + 1,
		sum:        m.sum.Add(v),
		sumSquares: m.sumSquares.Add(v.Mul(v)),
	}
}

// Remove returns the moments with one occurrence of v taken out. v must have
// been added before; removing from empty moments is a no-op.
func (m Moments) Remove(v decimal.Decimal) Moments {
	if m.n == 0 {
		return m
	}
	return Moments{
		n:          m.n - 1,
		sum:        m.sum.Sub(v),
		sumSquares: m.sumSquares.Sub(v.Mul(v)),
	}
}

// Count returns the number of accumulated values.
func (m Moments) Count() int {
	return m.n
}

// Sum returns the exact sum of the accumulated values.
func (m Moments) Sum() decimal.Decimal {
	return m.sum
}

// Mean returns the exact mean rounded to 8 places. Empty moments yield ErrInsufficientData.
func (m Moments) Mean() (decimal.Decimal, error) {
	if m.n == 0 {
		return decimal.Zero, fmt.Errorf("%w: mean of empty sequence", ErrInsufficientData)
	}
	return m.sum.DivRound(decimal.NewFromInt(int64(m.n)), 8), nil
}

// Summary returns mean and population standard deviation.
func (m Moments) Summary() (Summary, error) {
	mean, err := m.Mean()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Count:  m.n,
		Mean:   mean.InexactFloat64(),
		StdDev: m.stdDev(),
	}, nil
}

// ZScore returns |v - mean| / std for the accumulated sample, computed from
// the exact deviation. Zero spread yields 0.
func (m Moments) ZScore(v decimal.Decimal) (float64, error) {
	if m.n == 0 {
		return 0, fmt.Errorf("%w: z-score against empty sequence", ErrInsufficientData)
	}
	std := m.stdDev()
	if std == 0 {
		return 0, nil
	}
	n := decimal.NewFromInt(int64(m.n))
	deviation := v.Mul(n).Sub(m.sum).Abs().InexactFloat64() / float64(m.n)
	return deviation / std, nil
}

// stdDev is sqrt(n*Σx² - (Σx)²) / n. The radicand is exact, so identical
// values give exactly 0.
func (m Moments) stdDev() float64 {
	if m.n < 2 {
		return 0
	}
	n := decimal.NewFromInt(int64(m.n))
	radicand := m.sumSquares.Mul(n).Sub(m.sum.Mul(m.sum))
	if radicand.Sign() <= 0 {
		return 0
	}
	return math.Sqrt(radicand.InexactFloat64()) / float64(m.n)
}

// Describe summarizes exact amounts. An empty sequence fails with ErrInsufficientData.
func Describe(values []decimal.Decimal) (Summary, error) {
	return NewMoments(values...).Summary()
}

// DescribeFloats summarizes real numbers with a two-pass mean/variance.
// NaN or infinite values fail with ErrInvalidInput.
func DescribeFloats(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, fmt.Errorf("%w: describe empty sequence", ErrInsufficientData)
	}
	var sum float64
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Summary{}, fmt.Errorf("%w: value %d is %v", ErrInvalidInput, i, v)
		}
		sum += v
	}
	mean := sum / float64(len(values))
	var squares float64
	for _, v := range values {
		d := v - mean
		squares += d * d
	}
	return Summary{
		Count:  len(values),
		Mean:   mean,
		StdDev: math.Sqrt(squares / float64(len(values))),
	}, nil
}

// ZScore returns |value - mean| / std. A distribution without spread has no
// outliers, so std == 0 yields 0.
func ZScore(value, mean, std float64) (float64, error) {
	for _, f := range []float64{value, mean, std} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: z-score argument %v", ErrInvalidInput, f)
		}
	}
	if std < 0 {
		return 0, fmt.Errorf("%w: negative standard deviation %v", ErrInvalidInput, std)
	}
	if std == 0 {
		return 0, nil
	}
	return math.Abs(value-mean) / std, nil
}

// PercentChange returns (current - prior) / prior * 100. A zero prior
// yields 0 rather than a division by zero.
func PercentChange(current, prior decimal.Decimal) float64 {
	if prior.IsZero() {
		return 0
	}
	return current.Sub(prior).Div(prior).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}
