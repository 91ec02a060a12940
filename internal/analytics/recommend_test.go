package analytics

import (
	"errors"
	"strings"
	"testing"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

func foodForecast(t *testing.T) core.SpendForecast {
	t.Helper()
	fc, err := NewForecaster(DefaultParams()).Forecast(ForecastInput{
		UserID:      "u1",
		Category:    "Food",
		Amounts:     decimals("100", "100", "100"),
		WindowDays:  90,
		HorizonDays: 30,
		AsOf:        asOf,
	})
	if err != nil {
		t.Fatalf("Forecast() unexpected error: %v", err)
	}
	return fc
}

func TestRecommender_Recommend(t *testing.T) {
	r := Recommender{Buffer: 0.2, WindowDays: 90}
	rec, err := r.Recommend(foodForecast(t), decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("Recommend() unexpected error: %v", err)
	}

	if rec.RecommendedAmount.String() != "120" {
		t.Errorf("RecommendedAmount = %s, want 120", rec.RecommendedAmount)
	}
	if rec.CurrentAverage.String() != "100" {
		t.Errorf("CurrentAverage = %s, want 100", rec.CurrentAverage)
	}
	if rec.RiskLevel != core.RiskLow {
		t.Errorf("RiskLevel = %v, want %v", rec.RiskLevel, core.RiskLow)
	}
	if rec.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", rec.Confidence)
	}

	want := "Based on your average spending of $100.00 per 30 days in Food (3 transactions over the last 90 days), " +
		"we recommend a budget of $120.00, which includes 20% headroom. " +
		"You have spent $50.00 in the last 30 days (42% of the recommended budget). Risk: low."
	if rec.ReasoningText != want {
		t.Errorf("ReasoningText =\n%q\nwant\n%q", rec.ReasoningText, want)
	}
}

func TestRecommender_NoHistory(t *testing.T) {
	f := NewForecaster(DefaultParams())
	fc := f.Zero(ForecastInput{UserID: "u1", Category: "Travel", WindowDays: 90, HorizonDays: 30, AsOf: asOf})

	rec, err := Recommender{Buffer: 0.2, WindowDays: 90}.Recommend(fc, decimal.Zero)
	if err != nil {
		t.Fatalf("Recommend() unexpected error: %v", err)
	}
	if !rec.RecommendedAmount.IsZero() {
		t.Errorf("RecommendedAmount = %s, want 0", rec.RecommendedAmount)
	}
	if rec.RiskLevel != core.RiskLow {
		t.Errorf("RiskLevel = %v, want %v", rec.RiskLevel, core.RiskLow)
	}
	if !strings.HasPrefix(rec.ReasoningText, "No Travel spending was recorded over the last 90 days") {
		t.Errorf("ReasoningText = %q", rec.ReasoningText)
	}
}

func TestRecommender_ReasoningOnlyUsesRecordNumbers(t *testing.T) {
	rec, err := Recommender{Buffer: 0, WindowDays: 90}.Recommend(foodForecast(t), decimal.RequireFromString("99.999"))
	if err != nil {
		t.Fatalf("Recommend() unexpected error: %v", err)
	}
	if rec.CurrentSpend.String() != "100" {
		t.Errorf("CurrentSpend = %s, want rounded 100", rec.CurrentSpend)
	}
	for _, s := range []string{core.FormatMoney(rec.RecommendedAmount), core.FormatMoney(rec.CurrentSpend), string(rec.RiskLevel)} {
		if !strings.Contains(rec.ReasoningText, s) {
			t.Errorf("ReasoningText %q does not mention %q", rec.ReasoningText, s)
		}
	}
}

func TestRecommender_InvalidInput(t *testing.T) {
	fc := foodForecast(t)
	if _, err := (Recommender{Buffer: -0.1, WindowDays: 90}).Recommend(fc, decimal.Zero); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Recommend(negative buffer) error = %v, want %v", err, ErrInvalidInput)
	}
	if _, err := (Recommender{Buffer: 0.2, WindowDays: 90}).Recommend(fc, decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Recommend(negative spend) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		name        string
		recommended string
		actual      string
		want        core.RiskLevel
	}{
		{name: "well under budget", recommended: "120", actual: "50", want: core.RiskLow},
		{name: "just under medium share", recommended: "120", actual: "71.99", want: core.RiskLow},
		{name: "at medium share", recommended: "120", actual: "72", want: core.RiskMedium},
		{name: "at high share", recommended: "120", actual: "108", want: core.RiskMedium},
		{name: "over high share", recommended: "120", actual: "108.01", want: core.RiskHigh},
		{name: "over budget", recommended: "120", actual: "300", want: core.RiskHigh},
		{name: "zero budget with spend", recommended: "0", actual: "5", want: core.RiskHigh},
		{name: "zero budget without spend", recommended: "0", actual: "0", want: core.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskFor(decimal.RequireFromString(tt.recommended), decimal.RequireFromString(tt.actual))
			if got != tt.want {
				t.Errorf("RiskFor(%s, %s) = %v, want %v", tt.recommended, tt.actual, got, tt.want)
			}
		})
	}
}
