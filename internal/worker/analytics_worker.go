// Package worker handles analysis requests delivered over AMQP and runs the
// startup sweep that catches users whose scheduled run was missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/analytics"
	"finsight/internal/log"
	"finsight/internal/services"
)

// Sweeper runs every user whose analysis is due.
type Sweeper interface {
	ProcessDueUsers(ctx context.Context, now time.Time) (services.SweepResult, error)
}

// InsightInvalidator drops memoized insights of a user.
type InsightInvalidator interface {
	Invalidate(userID string) int
}

type AnalyticsWorker struct {
	runner   services.Runner
	sweeper  Sweeper
	insights InsightInvalidator
	now      func() time.Time
}

// Option configures an AnalyticsWorker.
type Option func(*AnalyticsWorker)

// WithInsightInvalidator drops the user's cached insights before each
// requested run. Requests follow ledger writes made by other processes.
func WithInsightInvalidator(inv InsightInvalidator) Option {
	return func(w *AnalyticsWorker) { w.insights = inv }
}

func NewAnalyticsWorker(runner services.Runner, sweeper Sweeper, opts ...Option) *AnalyticsWorker {
	w := &AnalyticsWorker{runner: runner, sweeper: sweeper, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleAnalysisRequest runs the requested analysis. Requests that can never
// succeed (bad input, not enough data) are logged and acknowledged; other
// failures are returned so the message is redelivered.
func (w *AnalyticsWorker) HandleAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequest) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker).With(
		log.FieldMessageID, msg.MessageID,
		log.FieldUserID, msg.UserID)

	logger.InfoContext(ctx, "Processing analysis request",
		log.FieldAsOf, msg.AsOf,
		"operations", msg.Operations)

	day, err := msg.Day()
	if err != nil {
		logger.WarnContext(ctx, "Dropping analysis request", log.FieldError, err)
		return nil
	}
	ops, err := services.ParseOperations(msg.Operations)
	if err != nil {
		logger.WarnContext(ctx, "Dropping analysis request", log.FieldError, err)
		return nil
	}

	if w.insights != nil {
		if n := w.insights.Invalidate(msg.UserID); n > 0 {
			logger.DebugContext(ctx, "Dropped cached insights", log.FieldCount, n)
		}
	}

	report, err := w.runner.RunForUser(ctx, msg.UserID, day.Time, ops...)
	switch {
	case err == nil:
	case errors.Is(err, analytics.ErrInvalidInput), errors.Is(err, analytics.ErrInsufficientData):
		logger.WarnContext(ctx, "Skipping analysis request", log.FieldError, err)
		return nil
	default:
		return fmt.Errorf("run analysis for %q: %w", msg.UserID, err)
	}

	logger.InfoContext(ctx, "Analysis request completed",
		"findings", len(report.Findings),
		"notified", report.Notified)
	return nil
}

// StartupSweep runs every due user once, recovering runs missed while the
// worker was down.
func (w *AnalyticsWorker) StartupSweep(ctx context.Context) (services.SweepResult, error) {
	res, err := w.sweeper.ProcessDueUsers(ctx, w.now())
	if err != nil {
		return res, fmt.Errorf("startup sweep: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentWorker).InfoContext(ctx, "Startup sweep finished",
		log.FieldOperation, log.OpSweep,
		"due", res.Due,
		"succeeded", res.Succeeded,
		"failed", res.Failed)
	return res, nil
}
