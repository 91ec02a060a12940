package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/internal/core"
	"finsight/internal/ledger"

	"github.com/shopspring/decimal"
)

// Engine exposes the analytics operations over a ledger. It holds no mutable
// state, so one Engine serves any number of concurrent callers.
type Engine struct {
	ledger ledger.Reader
	params Params
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used when a request leaves AsOf empty.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading from r with validated params.
func NewEngine(r ledger.Reader, params Params, opts ...Option) (*Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil ledger reader", ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{ledger: r, params: params, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the engine defaults.
func (e *Engine) Params() Params {
	return e.params
}

// AnomalyRequest selects the transactions to score. Zero fields take the
// engine defaults; a zero AsOf means now.
type AnomalyRequest struct {
	UserID     string
	WindowDays int
	ZThreshold float64
	AsOf       time.Time
}

// ForecastRequest selects the history to extrapolate.
type ForecastRequest struct {
	UserID      string
	Category    string
	WindowDays  int
	HorizonDays int
	AsOf        time.Time
}

// RecommendRequest selects the forecast a budget is derived from. A nil
// Buffer takes the default; an explicit zero means no headroom.
type RecommendRequest struct {
	UserID      string
	Category    string
	Buffer      *float64
	WindowDays  int
	HorizonDays int
	AsOf        time.Time
}

// Buffer is a helper for RecommendRequest.Buffer.
func Buffer(v float64) *float64 {
	return &v
}

// DetectAnomalies scores every expense of the user inside the trailing window
// against the other expenses of its category.
func (e *Engine) DetectAnomalies(ctx context.Context, req AnomalyRequest) ([]core.AnomalyFinding, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	window := orDefault(req.WindowDays, e.params.AnomalyWindowDays)
	threshold := req.ZThreshold
	if threshold == 0 {
		threshold = e.params.ZThreshold
	}
	asOf := e.asOf(req.AsOf)

	txs, err := e.fetch(ctx, ledger.Query{
		UserID: req.UserID,
		Start:  windowStart(asOf, window),
		End:    asOf,
	})
	if err != nil {
		return nil, err
	}
	return NewDetector(threshold).DetectAll(req.UserID, txs, asOf.Time)
}

// ForecastSpend extrapolates one category. A category without history gets an
// explicit zero forecast at low confidence rather than an error.
func (e *Engine) ForecastSpend(ctx context.Context, req ForecastRequest) (core.SpendForecast, error) {
	if err := requireUser(req.UserID); err != nil {
		return core.SpendForecast{}, err
	}
	if strings.TrimSpace(req.Category) == "" {
		return core.SpendForecast{}, fmt.Errorf("%w: empty category", ErrInvalidInput)
	}
	in := e.forecastInput(req.UserID, req.Category, req.WindowDays, req.HorizonDays, req.AsOf)

	txs, err := e.fetch(ctx, ledger.Query{
		UserID:   req.UserID,
		Category: req.Category,
		Start:    windowStart(in.AsOf, in.WindowDays),
		End:      in.AsOf,
	})
	if err != nil {
		return core.SpendForecast{}, err
	}
	fc, _, err := e.forecastFrom(in, txs)
	return fc, err
}

// ForecastAll forecasts every category with expenses in the window and
// returns the forecasts sorted by category together with their total.
func (e *Engine) ForecastAll(ctx context.Context, req ForecastRequest) ([]core.SpendForecast, decimal.Decimal, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, decimal.Zero, err
	}
	in := e.forecastInput(req.UserID, "", req.WindowDays, req.HorizonDays, req.AsOf)

	txs, err := e.fetch(ctx, ledger.Query{
		UserID: req.UserID,
		Start:  windowStart(in.AsOf, in.WindowDays),
		End:    in.AsOf,
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	series, err := BuildSeries(req.UserID, txs)
	if err != nil {
		return nil, decimal.Zero, err
	}

	f := NewForecaster(e.params)
	total := decimal.Zero
	out := make([]core.SpendForecast, 0, len(series))
	for _, s := range series {
		in.Category = s.Category
		in.Amounts = amounts(s.Transactions)
		fc, err := f.Forecast(in)
		if err != nil {
			return nil, decimal.Zero, err
		}
		total = total.Add(fc.PredictedAmount)
		out = append(out, fc)
	}
	return out, total, nil
}

// RecommendBudget forecasts the category and sizes a budget with headroom,
// rating risk by the spend of the latest horizon-length period.
func (e *Engine) RecommendBudget(ctx context.Context, req RecommendRequest) (core.BudgetRecommendation, error) {
	if err := requireUser(req.UserID); err != nil {
		return core.BudgetRecommendation{}, err
	}
	if strings.TrimSpace(req.Category) == "" {
		return core.BudgetRecommendation{}, fmt.Errorf("%w: empty category", ErrInvalidInput)
	}
	in := e.forecastInput(req.UserID, req.Category, req.WindowDays, req.HorizonDays, req.AsOf)

	start := windowStart(in.AsOf, in.WindowDays)
	recentStart := windowStart(in.AsOf, in.HorizonDays)
	if recentStart.Before(start.Time) {
		start = recentStart
	}
	txs, err := e.fetch(ctx, ledger.Query{
		UserID:   req.UserID,
		Category: req.Category,
		Start:    start,
		End:      in.AsOf,
	})
	if err != nil {
		return core.BudgetRecommendation{}, err
	}

	fc, _, err := e.forecastFrom(in, txs)
	if err != nil {
		return core.BudgetRecommendation{}, err
	}
	return e.recommender(req.Buffer, in.WindowDays).Recommend(fc, spentSince(txs, recentStart))
}

// RecommendAll recommends a budget for every category with expenses in the
// forecast window, sorted by category.
func (e *Engine) RecommendAll(ctx context.Context, req RecommendRequest) ([]core.BudgetRecommendation, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	in := e.forecastInput(req.UserID, "", req.WindowDays, req.HorizonDays, req.AsOf)

	start := windowStart(in.AsOf, in.WindowDays)
	recentStart := windowStart(in.AsOf, in.HorizonDays)
	if recentStart.Before(start.Time) {
		start = recentStart
	}
	txs, err := e.fetch(ctx, ledger.Query{UserID: req.UserID, Start: start, End: in.AsOf})
	if err != nil {
		return nil, err
	}
	series, err := BuildSeries(req.UserID, txs)
	if err != nil {
		return nil, err
	}

	r := e.recommender(req.Buffer, in.WindowDays)
	out := make([]core.BudgetRecommendation, 0, len(series))
	for _, s := range series {
		in.Category = s.Category
		fc, hasWindowData, err := e.forecastFrom(in, s.Transactions)
		if err != nil {
			return nil, err
		}
		if !hasWindowData {
			continue
		}
		rec, err := r.Recommend(fc, spentSince(s.Transactions, recentStart))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ComputeDashboardInsight summarizes the month of asOf against the prior
// month. The result depends only on the ledger contents and asOf.
func (e *Engine) ComputeDashboardInsight(ctx context.Context, userID string, asOf time.Time) (core.DashboardInsight, error) {
	if err := requireUser(userID); err != nil {
		return core.DashboardInsight{}, err
	}
	agg := NewInsightAggregator(userID, e.asOf(asOf), e.params.TopCategories)
	priorStart, _ := agg.PriorPeriod()
	_, currentEnd := agg.CurrentPeriod()

	txs, err := e.fetch(ctx, ledger.Query{UserID: userID, Start: priorStart, End: currentEnd})
	if err != nil {
		return core.DashboardInsight{}, err
	}
	if err := agg.CollectCurrent(txs); err != nil {
		return core.DashboardInsight{}, err
	}
	if err := agg.CollectPrior(txs); err != nil {
		return core.DashboardInsight{}, err
	}
	return agg.Compute()
}

func (e *Engine) fetch(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	txs, err := e.ledger.FetchTransactions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch transactions for %q: %w", ErrDataUnavailable, q.UserID, err)
	}
	return txs, nil
}

func (e *Engine) asOf(t time.Time) core.Date {
	if t.IsZero() {
		t = e.now()
	}
	return core.DateOf(t)
}

func (e *Engine) forecastInput(userID, category string, window, horizon int, asOf time.Time) ForecastInput {
	return ForecastInput{
		UserID:      userID,
		Category:    category,
		WindowDays:  orDefault(window, e.params.ForecastWindowDays),
		HorizonDays: orDefault(horizon, e.params.HorizonDays),
		AsOf:        e.asOf(asOf),
	}
}

// forecastFrom forecasts in.Category from the expenses of txs that fall in
// the forecast window. The boolean reports whether any did.
func (e *Engine) forecastFrom(in ForecastInput, txs []core.Transaction) (core.SpendForecast, bool, error) {
	if err := validateOwned(in.UserID, txs); err != nil {
		return core.SpendForecast{}, false, err
	}
	start := windowStart(in.AsOf, in.WindowDays)
	var windowed []core.Transaction
	for _, tx := range txs {
		if tx.IsExpense() && tx.Category == in.Category && inPeriod(tx.OccurredOn, start, in.AsOf) {
			windowed = append(windowed, tx)
		}
	}

	f := NewForecaster(e.params)
	if len(windowed) == 0 {
		return f.Zero(in), false, nil
	}
	in.Amounts = amounts(windowed)
	fc, err := f.Forecast(in)
	return fc, true, err
}

func (e *Engine) recommender(buffer *float64, window int) Recommender {
	b := e.params.BudgetBuffer
	if buffer != nil {
		b = *buffer
	}
	return Recommender{Buffer: b, WindowDays: window}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	return nil
}

// windowStart is the first day of a trailing window of days ending on asOf.
func windowStart(asOf core.Date, days int) core.Date {
	return asOf.AddDays(-(days - 1))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func amounts(txs []core.Transaction) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Amount)
	}
	return out
}

func spentSince(txs []core.Transaction, start core.Date) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.IsExpense() && !core.DateOf(tx.OccurredOn.Time).Before(start.Time) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}
