package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/core"
	"finsight/internal/ledger"
	"finsight/internal/log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Operation names one analysis step of a run.
type Operation string

const (
	OpAnomalies       Operation = "anomalies"
	OpForecasts       Operation = "forecasts"
	OpRecommendations Operation = "recommendations"
	OpInsight         Operation = "insight"
)

// AllOperations returns every operation in run order.
func AllOperations() []Operation {
	return []Operation{OpAnomalies, OpForecasts, OpRecommendations, OpInsight}
}

// ParseOperations validates operation names. No names means all operations.
func ParseOperations(names []string) ([]Operation, error) {
	if len(names) == 0 {
		return AllOperations(), nil
	}
	out := make([]Operation, 0, len(names))
	for _, n := range names {
		op := Operation(n)
		if !slices.Contains(AllOperations(), op) {
			return nil, fmt.Errorf("%w: unknown operation %q", analytics.ErrInvalidInput, n)
		}
		if !slices.Contains(out, op) {
			out = append(out, op)
		}
	}
	return out, nil
}

// Notifier announces anomaly findings to the notifications subsystem.
type Notifier interface {
	NotifyAnomaly(ctx context.Context, f core.AnomalyFinding) error
}

// AnalysisConfig holds configuration for the analysis service
type AnalysisConfig struct {
	// NotifyMinSeverity is the least severe finding that gets announced (default: high)
	NotifyMinSeverity core.Severity

	// InsightCacheSize is how many (user, day) insights are memoized (default: 256)
	InsightCacheSize int

	// InsightCacheTTL is how long a memoized insight stays valid (default: 5m)
	InsightCacheTTL time.Duration
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		NotifyMinSeverity: core.SeverityHigh,
		InsightCacheSize:  256,
		InsightCacheTTL:   5 * time.Minute,
	}
}

// RunReport is everything one analysis run produced.
type RunReport struct {
	UserID          string                      `json:"user_id"`
	AsOf            core.Date                   `json:"as_of"`
	Findings        []core.AnomalyFinding       `json:"findings,omitempty"`
	Forecasts       []core.SpendForecast        `json:"forecasts,omitempty"`
	ForecastTotal   decimal.Decimal             `json:"forecast_total"`
	Recommendations []core.BudgetRecommendation `json:"recommendations,omitempty"`
	Insight         *core.DashboardInsight      `json:"insight,omitempty"`
	Notified        int                         `json:"notified"`
}

// AnalysisService runs the engine for a user, persists the outputs to the
// record store and announces notable findings.
type AnalysisService struct {
	engine    *analytics.Engine
	records   ledger.RecordStore
	scheduler ledger.Scheduler
	notifier  Notifier
	insights  *InsightCache
	config    AnalysisConfig
	now       func() time.Time
}

// AnalysisOption configures an AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithNotifier announces findings through n.
func WithNotifier(n Notifier) AnalysisOption {
	return func(s *AnalysisService) { s.notifier = n }
}

// WithScheduler records each completed run in sched.
func WithScheduler(sched ledger.Scheduler) AnalysisOption {
	return func(s *AnalysisService) { s.scheduler = sched }
}

// WithServiceClock sets the clock used for empty as-of days and run times.
func WithServiceClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) { s.now = now }
}

func NewAnalysisService(engine *analytics.Engine, records ledger.RecordStore, config AnalysisConfig, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		engine:  engine,
		records: records,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.insights = NewInsightCache(engine, config.InsightCacheSize, config.InsightCacheTTL)
	return s
}

// Insights returns the service's insight cache.
func (s *AnalysisService) Insights() *InsightCache {
	return s.insights
}

// RunForUser runs ops (all when empty) for userID as of the day of asOf,
// a zero asOf meaning today. Steps run concurrently; the first failure
// cancels the rest and nothing is persisted.
func (s *AnalysisService) RunForUser(ctx context.Context, userID string, asOf time.Time, ops ...Operation) (*RunReport, error) {
	started := s.now()
	if len(ops) == 0 {
		ops = AllOperations()
	}
	for _, op := range ops {
		if !slices.Contains(AllOperations(), op) {
			return nil, fmt.Errorf("%w: unknown operation %q", analytics.ErrInvalidInput, op)
		}
	}
	if asOf.IsZero() {
		asOf = started
	}
	day := core.DateOf(asOf)
	report := &RunReport{UserID: userID, AsOf: day, ForecastTotal: decimal.Zero}

	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		op := op
		switch op {
		case OpAnomalies:
			g.Go(func() error {
				findings, err := s.engine.DetectAnomalies(gctx, analytics.AnomalyRequest{UserID: userID, AsOf: day.Time})
				report.Findings = findings
				return wrapOp(op, err)
			})
		case OpForecasts:
			g.Go(func() error {
				forecasts, total, err := s.engine.ForecastAll(gctx, analytics.ForecastRequest{UserID: userID, AsOf: day.Time})
				report.Forecasts, report.ForecastTotal = forecasts, total
				return wrapOp(op, err)
			})
		case OpRecommendations:
			g.Go(func() error {
				recs, err := s.engine.RecommendAll(gctx, analytics.RecommendRequest{UserID: userID, AsOf: day.Time})
				report.Recommendations = recs
				return wrapOp(op, err)
			})
		case OpInsight:
			g.Go(func() error {
				in, err := s.insights.Get(gctx, userID, day.Time)
				if err == nil {
					report.Insight = &in
				}
				return wrapOp(op, err)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyse user %q: %w", userID, err)
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, fmt.Errorf("persist analysis of %q: %w", userID, err)
	}
	report.Notified = s.notify(ctx, report.Findings)

	if s.scheduler != nil {
		if err := s.scheduler.RecordRun(ctx, userID, s.now()); err != nil {
			return nil, fmt.Errorf("record run of %q: %w", userID, err)
		}
	}

	log.FromContext(ctx).WithComponent(log.ComponentAnalytics).InfoContext(ctx, "Analysis completed",
		log.FieldUserID, userID,
		log.FieldAsOf, day.String(),
		"findings", len(report.Findings),
		"forecasts", len(report.Forecasts),
		"recommendations", len(report.Recommendations),
		"notified", report.Notified,
		log.FieldDuration, s.now().Sub(started).Milliseconds())
	return report, nil
}

func (s *AnalysisService) persist(ctx context.Context, r *RunReport) error {
	if len(r.Findings) > 0 {
		if err := s.records.SaveFindings(ctx, r.Findings); err != nil {
			return fmt.Errorf("save findings: %w", err)
		}
	}
	if len(r.Forecasts) > 0 {
		if err := s.records.SaveForecasts(ctx, r.Forecasts); err != nil {
			return fmt.Errorf("save forecasts: %w", err)
		}
	}
	if len(r.Recommendations) > 0 {
		if err := s.records.SaveRecommendations(ctx, r.Recommendations); err != nil {
			return fmt.Errorf("save recommendations: %w", err)
		}
	}
	if r.Insight != nil {
		if err := s.records.SaveInsight(ctx, *r.Insight); err != nil {
			return fmt.Errorf("save insight: %w", err)
		}
	}
	return nil
}

// notify announces findings at or above the configured severity. A failed
// announcement is logged and does not fail the run.
func (s *AnalysisService) notify(ctx context.Context, findings []core.AnomalyFinding) int {
	if s.notifier == nil {
		return 0
	}
	logger := log.FromContext(ctx).WithComponent(log.ComponentAnalytics)
	sent := 0
	for _, f := range findings {
		if !f.Severity.AtLeast(s.config.NotifyMinSeverity) {
			continue
		}
		if err := s.notifier.NotifyAnomaly(ctx, f); err != nil {
			logger.WarnContext(ctx, "Failed to announce anomaly",
				log.FieldFindingID, f.ID,
				log.FieldUserID, f.UserID,
				log.FieldError, err)
			continue
		}
		sent++
	}
	return sent
}

func wrapOp(op Operation, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
