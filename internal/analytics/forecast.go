package analytics

import (
	"fmt"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

// ForecastInput is the history a forecast extrapolates from.
type ForecastInput struct {
	UserID      string
	Category    string
	Amounts     []decimal.Decimal
	WindowDays  int
	HorizonDays int
	AsOf        core.Date
}

// Forecaster produces linear spend forecasts. This is a deliberately simple
// extrapolation of the window average, not a trend model: the window is
// treated as WindowDays/SubperiodDays equal sub-periods and the per-sub-period
// average is scaled to the horizon.
type Forecaster struct {
	SubperiodDays  int
	MinSamples     int
	HighConfidence float64
	LowConfidence  float64
}

// NewForecaster builds a forecaster from engine params.
func NewForecaster(p Params) Forecaster {
	return Forecaster{
		SubperiodDays:  p.SubperiodDays,
		MinSamples:     p.MinSamples,
		HighConfidence: p.HighConfidence,
		LowConfidence:  p.LowConfidence,
	}
}

// Forecast extrapolates in.Amounts over in.HorizonDays. It fails with
// ErrInsufficientData when there is no sample at all.
func (f Forecaster) Forecast(in ForecastInput) (core.SpendForecast, error) {
	if in.WindowDays < 1 || in.HorizonDays < 1 || f.SubperiodDays < 1 {
		return core.SpendForecast{}, fmt.Errorf("%w: window %d, horizon %d, sub-period %d days",
			ErrInvalidInput, in.WindowDays, in.HorizonDays, f.SubperiodDays)
	}
	if len(in.Amounts) == 0 {
		return core.SpendForecast{}, fmt.Errorf("%w: no history for %q", ErrInsufficientData, in.Category)
	}

	m := NewMoments(in.Amounts...)
	total := m.Sum()
	mean, err := m.Mean()
	if err != nil {
		return core.SpendForecast{}, err
	}

	window := decimal.NewFromInt(int64(in.WindowDays))
	horizon := decimal.NewFromInt(int64(in.HorizonDays))
	subperiods := window.Div(decimal.NewFromInt(int64(f.SubperiodDays)))

	// average per sub-period × sub-periods in horizon == total × horizon / window
	predicted := core.RoundCents(total.Mul(horizon).Div(window))

	confidence := f.LowConfidence
	if len(in.Amounts) >= f.MinSamples && !total.IsZero() {
		confidence = f.HighConfidence
	}

	fc := f.skeleton(in)
	fc.PredictedAmount = predicted
	fc.Confidence = clampConfidence(confidence)
	fc.Basis = core.ForecastBasis{
		SampleCount:       len(in.Amounts),
		WindowTotal:       total,
		HistoricalAverage: core.RoundCents(mean),
		SubperiodAverage:  core.RoundCents(total.Div(subperiods)),
	}
	return fc, nil
}

// Zero is the explicit forecast for a category without history: zero spend
// at low confidence, with an empty basis so callers can tell it apart.
func (f Forecaster) Zero(in ForecastInput) core.SpendForecast {
	fc := f.skeleton(in)
	fc.PredictedAmount = decimal.Zero
	fc.Confidence = clampConfidence(f.LowConfidence)
	fc.Basis = core.ForecastBasis{
		WindowTotal:       decimal.Zero,
		HistoricalAverage: decimal.Zero,
		SubperiodAverage:  decimal.Zero,
	}
	return fc
}

// skeleton fills identity and period: the horizon starts the day after as-of.
func (f Forecaster) skeleton(in ForecastInput) core.SpendForecast {
	return core.SpendForecast{
		UserID:      in.UserID,
		Category:    in.Category,
		PeriodStart: in.AsOf.AddDays(1),
		PeriodEnd:   in.AsOf.AddDays(in.HorizonDays),
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
