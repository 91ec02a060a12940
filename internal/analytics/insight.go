package analytics

import (
	"fmt"
	"sort"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

type insightState int

const (
	insightPending insightState = iota
	insightCollectingCurrent
	insightCollectingPrior
	insightComputed
)

func (s insightState) String() string {
	switch s {
	case insightPending:
		return "pending"
	case insightCollectingCurrent:
		return "collecting_current"
	case insightCollectingPrior:
		return "collecting_prior"
	case insightComputed:
		return "computed"
	default:
		return fmt.Sprintf("insight_state(%d)", int(s))
	}
}

// InsightAggregator builds one DashboardInsight per invocation. It moves
// Pending → CollectingCurrent → CollectingPrior → Computed; calling a step out
// of order is an error. The aggregator is not safe for concurrent use and is
// never reused.
type InsightAggregator struct {
	state  insightState
	userID string
	asOf   core.Date
	topN   int

	byCategory   map[string]decimal.Decimal
	currentTotal decimal.Decimal
	count        int
	priorTotal   decimal.Decimal
}

// NewInsightAggregator starts an aggregation for userID as of the given day.
func NewInsightAggregator(userID string, asOf core.Date, topN int) *InsightAggregator {
	if topN < 1 {
		topN = 1
	}
	return &InsightAggregator{
		userID:     userID,
		asOf:       core.DateOf(asOf.Time),
		topN:       topN,
		byCategory: make(map[string]decimal.Decimal),
	}
}

// CurrentPeriod is the month of as-of, up to and including as-of.
func (a *InsightAggregator) CurrentPeriod() (start, end core.Date) {
	return a.asOf.MonthStart(), a.asOf
}

// PriorPeriod is the whole calendar month before the current one.
func (a *InsightAggregator) PriorPeriod() (start, end core.Date) {
	cur := a.asOf.MonthStart()
	return core.Date{Time: cur.AddDate(0, -1, 0)}, cur.AddDays(-1)
}

// CollectCurrent totals the current-period expenses. Transactions outside the
// period are ignored.
func (a *InsightAggregator) CollectCurrent(txs []core.Transaction) error {
	if err := a.advance(insightPending, insightCollectingCurrent); err != nil {
		return err
	}
	if err := validateOwned(a.userID, txs); err != nil {
		return err
	}
	start, end := a.CurrentPeriod()
	for _, tx := range txs {
		if !tx.IsExpense() || !inPeriod(tx.OccurredOn, start, end) {
			continue
		}
		a.currentTotal = a.currentTotal.Add(tx.Amount)
		a.byCategory[tx.Category] = a.byCategory[tx.Category].Add(tx.Amount)
		a.count++
	}
	return nil
}

// CollectPrior totals the prior-period expenses.
func (a *InsightAggregator) CollectPrior(txs []core.Transaction) error {
	if err := a.advance(insightCollectingCurrent, insightCollectingPrior); err != nil {
		return err
	}
	if err := validateOwned(a.userID, txs); err != nil {
		return err
	}
	start, end := a.PriorPeriod()
	for _, tx := range txs {
		if !tx.IsExpense() || !inPeriod(tx.OccurredOn, start, end) {
			continue
		}
		a.priorTotal = a.priorTotal.Add(tx.Amount)
	}
	return nil
}

// Compute finishes the aggregation. Output depends only on the collected
// transactions and as-of.
func (a *InsightAggregator) Compute() (core.DashboardInsight, error) {
	if err := a.advance(insightCollectingPrior, insightComputed); err != nil {
		return core.DashboardInsight{}, err
	}

	totals := make([]core.CategoryTotal, 0, len(a.byCategory))
	for category, amount := range a.byCategory {
		totals = append(totals, core.CategoryTotal{Category: category, Amount: core.RoundCents(amount)})
	}
	// Highest total first; ties by name keep the output stable.
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Amount.Cmp(totals[j].Amount); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
	if len(totals) > a.topN {
		totals = totals[:a.topN]
	}

	insight := core.DashboardInsight{
		UserID:             a.userID,
		AsOf:               a.asOf,
		PeriodTotal:        core.RoundCents(a.currentTotal),
		PriorPeriodTotal:   core.RoundCents(a.priorTotal),
		PercentChange:      PercentChange(a.currentTotal, a.priorTotal),
		TopCategoryAmount:  decimal.Zero,
		TopCategories:      totals,
		TransactionCount:   a.count,
		AverageTransaction: decimal.Zero,
	}
	if len(totals) > 0 {
		insight.TopCategory = totals[0].Category
		insight.TopCategoryAmount = totals[0].Amount
	}
	if a.count > 0 {
		insight.AverageTransaction = a.currentTotal.DivRound(decimal.NewFromInt(int64(a.count)), core.CentsPlaces)
	}
	return insight, nil
}

func (a *InsightAggregator) advance(from, to insightState) error {
	if a.state != from {
		return fmt.Errorf("%w: insight aggregator is %s, cannot move to %s", ErrInvalidInput, a.state, to)
	}
	a.state = to
	return nil
}

func inPeriod(d, start, end core.Date) bool {
	day := core.DateOf(d.Time)
	return !day.Before(start.Time) && !day.After(end.Time)
}
