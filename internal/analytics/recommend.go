package analytics

import (
	"fmt"
	"strings"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

// Risk cut-offs on actual spend as a share of the recommended budget.
var (
	highRiskShare   = decimal.RequireFromString("0.9")
	mediumRiskShare = decimal.RequireFromString("0.6")
)

// Recommender turns a forecast into a budget ceiling with headroom.
// It only proposes; acceptance is tracked by the record store.
type Recommender struct {
	Buffer     float64
	WindowDays int
}

// Recommend builds a recommendation from fc and the actual spend of the most
// recent comparable period. The reasoning text is derived only from numbers
// present on the returned record.
func (r Recommender) Recommend(fc core.SpendForecast, actual decimal.Decimal) (core.BudgetRecommendation, error) {
	if r.Buffer < 0 {
		return core.BudgetRecommendation{}, fmt.Errorf("%w: negative buffer %v", ErrInvalidInput, r.Buffer)
	}
	if actual.IsNegative() {
		return core.BudgetRecommendation{}, fmt.Errorf("%w: negative actual spend %s", ErrInvalidInput, actual)
	}

	buffer := decimal.NewFromFloat(r.Buffer)
	recommended := core.RoundCents(fc.PredictedAmount.Mul(decimal.NewFromInt(1).Add(buffer)))
	actual = core.RoundCents(actual)

	rec := core.BudgetRecommendation{
		UserID:            fc.UserID,
		Category:          fc.Category,
		RecommendedAmount: recommended,
		CurrentAverage:    fc.PredictedAmount,
		CurrentSpend:      actual,
		Confidence:        clampConfidence(fc.Confidence),
		RiskLevel:         RiskFor(recommended, actual),
	}
	rec.ReasoningText = r.reasoning(fc, rec)
	return rec, nil
}

// RiskFor classifies actual spend against a recommended ceiling.
func RiskFor(recommended, actual decimal.Decimal) core.RiskLevel {
	if !recommended.IsPositive() {
		if actual.IsPositive() {
			return core.RiskHigh
		}
		return core.RiskLow
	}
	switch {
	case actual.GreaterThan(recommended.Mul(highRiskShare)):
		return core.RiskHigh
	case actual.GreaterThanOrEqual(recommended.Mul(mediumRiskShare)):
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

func (r Recommender) reasoning(fc core.SpendForecast, rec core.BudgetRecommendation) string {
	horizon := horizonDays(fc)
	var b strings.Builder

	if fc.HasHistory() {
		fmt.Fprintf(&b, "Based on your average spending of %s per %d days in %s (%d transactions over the last %d days), ",
			core.FormatMoney(rec.CurrentAverage), horizon, rec.Category, fc.Basis.SampleCount, r.WindowDays)
	} else {
		fmt.Fprintf(&b, "No %s spending was recorded over the last %d days, so ", rec.Category, r.WindowDays)
	}
	fmt.Fprintf(&b, "we recommend a budget of %s, which includes %s headroom. ",
		core.FormatMoney(rec.RecommendedAmount), formatPercent(r.Buffer*100))
	fmt.Fprintf(&b, "You have spent %s in the last %d days", core.FormatMoney(rec.CurrentSpend), horizon)
	if rec.RecommendedAmount.IsPositive() {
		share := rec.CurrentSpend.Div(rec.RecommendedAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
		fmt.Fprintf(&b, " (%s of the recommended budget)", formatPercent(share))
	}
	fmt.Fprintf(&b, ". Risk: %s.", rec.RiskLevel)
	return b.String()
}

func horizonDays(fc core.SpendForecast) int {
	if fc.PeriodStart.IsZero() || fc.PeriodEnd.IsZero() {
		return 0
	}
	return int(fc.PeriodEnd.Sub(fc.PeriodStart.Time).Hours()/24) + 1
}

func formatPercent(p float64) string {
	return decimal.NewFromFloat(p).Round(0).String() + "%"
}
