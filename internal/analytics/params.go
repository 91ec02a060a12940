package analytics

import (
	"fmt"
	"strings"
)

// Params holds the tunable business assumptions of the engine.
type Params struct {
	// AnomalyWindowDays is the trailing window for anomaly comparison sets (default: 30)
	AnomalyWindowDays int `toml:"anomaly_window_days"`

	// ZThreshold is the z-score a transaction must exceed to be flagged (default: 2.0)
	ZThreshold float64 `toml:"z_threshold"`

	// ForecastWindowDays is the trailing window a forecast is built from (default: 90)
	ForecastWindowDays int `toml:"forecast_window_days"`

	// HorizonDays is the forward period a forecast covers (default: 30)
	HorizonDays int `toml:"horizon_days"`

	// SubperiodDays is the length of the equal sub-periods the window is split into (default: 7)
	SubperiodDays int `toml:"subperiod_days"`

	// MinSamples is the sample count at which a forecast gets HighConfidence (default: 3)
	MinSamples int `toml:"min_samples"`

	// HighConfidence and LowConfidence are the heuristic forecast confidences (default: 0.85, 0.5)
	HighConfidence float64 `toml:"high_confidence"`
	LowConfidence  float64 `toml:"low_confidence"`

	// BudgetBuffer is the headroom added on top of a forecast (default: 0.2)
	BudgetBuffer float64 `toml:"budget_buffer"`

	// TopCategories is how many categories the dashboard breakdown keeps (default: 5)
	TopCategories int `toml:"top_categories"`
}

// DefaultParams returns the documented defaults
func DefaultParams() Params {
	return Params{
		AnomalyWindowDays:  30,
		ZThreshold:         2.0,
		ForecastWindowDays: 90,
		HorizonDays:        30,
		SubperiodDays:      7,
		MinSamples:         3,
		HighConfidence:     0.85,
		LowConfidence:      0.5,
		BudgetBuffer:       0.2,
		TopCategories:      5,
	}
}

// Validate returns an error listing every invalid parameter
func (p Params) Validate() error {
	var errors []string

	if p.AnomalyWindowDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid anomaly window %d: must be at least 1 day", p.AnomalyWindowDays))
	}
	if p.ZThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("invalid z threshold %v: must be positive", p.ZThreshold))
	}
	if p.ForecastWindowDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid forecast window %d: must be at least 1 day", p.ForecastWindowDays))
	}
	if p.HorizonDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid horizon %d: must be at least 1 day", p.HorizonDays))
	}
	if p.SubperiodDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid sub-period %d: must be at least 1 day", p.SubperiodDays))
	}
	if p.MinSamples < 1 {
		errors = append(errors, fmt.Sprintf("invalid min samples %d: must be at least 1", p.MinSamples))
	}
	if p.HighConfidence < 0 || p.HighConfidence > 1 {
		errors = append(errors, fmt.Sprintf("invalid high confidence %v: must be within [0,1]", p.HighConfidence))
	}
	if p.LowConfidence < 0 || p.LowConfidence > 1 {
		errors = append(errors, fmt.Sprintf("invalid low confidence %v: must be within [0,1]", p.LowConfidence))
	}
	if p.LowConfidence > p.HighConfidence {
		errors = append(errors, "low confidence must not exceed high confidence")
	}
	if p.BudgetBuffer < 0 {
		errors = append(errors, fmt.Sprintf("invalid budget buffer %v: must not be negative", p.BudgetBuffer))
	}
	if p.TopCategories < 1 {
		errors = append(errors, fmt.Sprintf("invalid top categories %d: must be at least 1", p.TopCategories))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: analytics params:\n- %s", ErrInvalidInput, strings.Join(errors, "\n- "))
	}
	return nil
}
