// Package ledger defines the ports between the analytics engine and the
// record store that owns transactions and persisted analytics outputs.
package ledger

import (
	"context"
	"errors"
	"slices"
	"time"

	"finsight/internal/core"
)

// ErrNotFound is returned when a record addressed by id or key does not exist.
var ErrNotFound = errors.New("record not found")

// AnomalyTypeAmount marks findings raised by the amount outlier detector.
const AnomalyTypeAmount = "amount"

// Query selects a user's transactions. Start and End are inclusive calendar
// days; an empty Category matches every category.
type Query struct {
	UserID     string
	Category   string
	Start      core.Date
	End        core.Date
	ExcludeIDs []string
}

// Matches reports whether tx satisfies the query.
func (q Query) Matches(tx core.Transaction) bool {
	if tx.UserID != q.UserID {
		return false
	}
	if q.Category != "" && tx.Category != q.Category {
		return false
	}
	day := core.DateOf(tx.OccurredOn.Time)
	if !q.Start.IsZero() && day.Before(q.Start.Time) {
		return false
	}
	if !q.End.IsZero() && day.After(q.End.Time) {
		return false
	}
	return !slices.Contains(q.ExcludeIDs, tx.ID)
}

// Ports for outbound adapters.
type (
	// Reader supplies transactions. Amounts are exact decimals; order is unspecified.
	Reader interface {
		FetchTransactions(ctx context.Context, q Query) ([]core.Transaction, error)
	}

	// Writer appends transactions to the ledger.
	Writer interface {
		AppendTransactions(ctx context.Context, txs []core.Transaction) (int, error)
	}

	// UserLister enumerates users that own at least one transaction.
	UserLister interface {
		ListUsers(ctx context.Context) ([]string, error)
	}

	// RecordStore persists analytics outputs. Ownership of every record
	// passes to the store on save.
	RecordStore interface {
		SaveFindings(ctx context.Context, findings []core.AnomalyFinding) error
		SaveForecasts(ctx context.Context, forecasts []core.SpendForecast) error
		SaveRecommendations(ctx context.Context, recs []core.BudgetRecommendation) error
		SaveInsight(ctx context.Context, insight core.DashboardInsight) error
		GetInsight(ctx context.Context, userID string, asOf core.Date) (core.DashboardInsight, error)
	}

	// Reviewer tracks user review state of persisted outputs. The engine
	// never reads it; re-saving a record keeps its review state.
	Reviewer interface {
		AcceptRecommendation(ctx context.Context, userID, category string, at time.Time) error
		MarkInvestigated(ctx context.Context, findingID string) error
		ListFindings(ctx context.Context, userID string) ([]FindingRecord, error)
		ListRecommendations(ctx context.Context, userID string) ([]RecommendationRecord, error)
	}

	// Scheduler keeps per-user analysis cadence and last run time.
	Scheduler interface {
		ListSchedules(ctx context.Context) ([]Schedule, error)
		SetCadence(ctx context.Context, userID string, cadence core.Cadence) error
		RecordRun(ctx context.Context, userID string, at time.Time) error
	}
)

// FindingRecord is a persisted anomaly finding with its review state.
type FindingRecord struct {
	core.AnomalyFinding
	AnomalyType    string
	IsInvestigated bool
}

// RecommendationRecord is a persisted recommendation with its review state.
// Acceptance is cleared when a later save changes the recommended amount.
type RecommendationRecord struct {
	core.BudgetRecommendation
	IsAccepted bool
	AcceptedAt time.Time
}

// Schedule is the analysis cadence of one user. Users without an explicit
// cadence run daily; a zero LastRunAt means never run.
type Schedule struct {
	UserID    string
	Cadence   core.Cadence
	LastRunAt time.Time
}
