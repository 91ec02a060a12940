// Package memory is an in-process ledger and record store, seeded from a CSV
// file. It backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/ledger"
)

type Store struct {
	mu        sync.Mutex
	items     []core.Transaction
	ids       map[string]struct{}
	findings  map[string]ledger.FindingRecord
	forecasts map[string]core.SpendForecast
	recs      map[string]ledger.RecommendationRecord
	insights  map[string]core.DashboardInsight
	schedules map[string]ledger.Schedule
}

var (
	_ ledger.Reader      = (*Store)(nil)
	_ ledger.Writer      = (*Store)(nil)
	_ ledger.UserLister  = (*Store)(nil)
	_ ledger.RecordStore = (*Store)(nil)
	_ ledger.Reviewer    = (*Store)(nil)
	_ ledger.Scheduler   = (*Store)(nil)
)

// New returns a store holding txs. It panics when a seed transaction is
// invalid; use NewFromCSV for untrusted input.
func New(txs ...core.Transaction) *Store {
	s := newStore()
	if _, err := s.AppendTransactions(context.Background(), txs); err != nil {
		panic(fmt.Sprintf("memory: invalid seed transactions: %v", err))
	}
	return s
}

func newStore() *Store {
	return &Store{
		ids:       make(map[string]struct{}),
		findings:  make(map[string]ledger.FindingRecord),
		forecasts: make(map[string]core.SpendForecast),
		recs:      make(map[string]ledger.RecommendationRecord),
		insights:  make(map[string]core.DashboardInsight),
		schedules: make(map[string]ledger.Schedule),
	}
}

// NewFromCSV seeds the store from path. A missing file yields an empty store.
func NewFromCSV(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	txs, err := ledger.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	s := newStore()
	if _, err := s.AppendTransactions(context.Background(), txs); err != nil {
		return nil, fmt.Errorf("seed from %s: %w", path, err)
	}
	return s, nil
}

// AppendTransactions stores valid transactions, skipping ids already present.
// It returns the number of transactions added.
func (s *Store) AppendTransactions(_ context.Context, txs []core.Transaction) (int, error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, tx := range txs {
		if _, dup := s.ids[tx.ID]; dup {
			continue
		}
		s.ids[tx.ID] = struct{}{}
		s.items = append(s.items, tx)
		added++
	}
	return added, nil
}

// FetchTransactions returns copies of the matching transactions.
func (s *Store) FetchTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.items {
		if q.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// ListUsers returns the distinct user ids, sorted.
func (s *Store) ListUsers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersLocked(), nil
}

func (s *Store) usersLocked() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tx := range s.items {
		if _, ok := seen[tx.UserID]; ok {
			continue
		}
		seen[tx.UserID] = struct{}{}
		out = append(out, tx.UserID)
	}
	sort.Strings(out)
	return out
}

func (s *Store) SaveFindings(_ context.Context, findings []core.AnomalyFinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range findings {
		rec := s.findings[f.ID]
		rec.AnomalyFinding = f
		rec.AnomalyType = ledger.AnomalyTypeAmount
		s.findings[f.ID] = rec
	}
	return nil
}

func (s *Store) SaveForecasts(_ context.Context, forecasts []core.SpendForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range forecasts {
		s.forecasts[f.UserID+"/"+f.Category+"/"+f.PeriodStart.String()] = f
	}
	return nil
}

// SaveRecommendations keeps acceptance while the recommended amount is unchanged.
func (s *Store) SaveRecommendations(_ context.Context, recs []core.BudgetRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		key := r.UserID + "/" + r.Category
		prev, ok := s.recs[key]
		next := ledger.RecommendationRecord{BudgetRecommendation: r}
		if ok && prev.RecommendedAmount.Equal(r.RecommendedAmount) {
			next.IsAccepted, next.AcceptedAt = prev.IsAccepted, prev.AcceptedAt
		}
		s.recs[key] = next
	}
	return nil
}

func (s *Store) SaveInsight(_ context.Context, insight core.DashboardInsight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights[insight.UserID+"/"+insight.AsOf.String()] = insight
	return nil
}

func (s *Store) GetInsight(_ context.Context, userID string, asOf core.Date) (core.DashboardInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.insights[userID+"/"+asOf.String()]
	if !ok {
		return core.DashboardInsight{}, fmt.Errorf("insight %s/%s: %w", userID, asOf, ledger.ErrNotFound)
	}
	return in, nil
}

func (s *Store) AcceptRecommendation(_ context.Context, userID, category string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + category
	rec, ok := s.recs[key]
	if !ok {
		return fmt.Errorf("recommendation %s: %w", key, ledger.ErrNotFound)
	}
	rec.IsAccepted, rec.AcceptedAt = true, at
	s.recs[key] = rec
	return nil
}

func (s *Store) MarkInvestigated(_ context.Context, findingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.findings[findingID]
	if !ok {
		return fmt.Errorf("finding %s: %w", findingID, ledger.ErrNotFound)
	}
	rec.IsInvestigated = true
	s.findings[findingID] = rec
	return nil
}

// ListFindings returns the saved findings of a user, newest first.
func (s *Store) ListFindings(_ context.Context, userID string) ([]ledger.FindingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.FindingRecord
	for _, f := range s.findings {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].TransactionRef < out[j].TransactionRef
	})
	return out, nil
}

// ListRecommendations returns the saved recommendations of a user ordered by category.
func (s *Store) ListRecommendations(_ context.Context, userID string) ([]ledger.RecommendationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.RecommendationRecord
	for _, r := range s.recs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// ListSchedules returns a schedule for every ledger user, daily by default.
func (s *Store) ListSchedules(_ context.Context) ([]ledger.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.usersLocked()
	out := make([]ledger.Schedule, 0, len(users))
	for _, u := range users {
		sched, ok := s.schedules[u]
		if !ok {
			sched = ledger.Schedule{UserID: u, Cadence: core.CadenceDaily}
		}
		out = append(out, sched)
	}
	return out, nil
}

func (s *Store) SetCadence(_ context.Context, userID string, cadence core.Cadence) error {
	if _, err := core.ParseCadence(string(cadence)); err != nil {
		return fmt.Errorf("cadence %q: %w", cadence, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sched := s.scheduleLocked(userID)
	sched.Cadence = cadence
	s.schedules[userID] = sched
	return nil
}

func (s *Store) RecordRun(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched := s.scheduleLocked(userID)
	sched.LastRunAt = at
	s.schedules[userID] = sched
	return nil
}

func (s *Store) scheduleLocked(userID string) ledger.Schedule {
	if sched, ok := s.schedules[userID]; ok {
		return sched
	}
	return ledger.Schedule{UserID: userID, Cadence: core.CadenceDaily}
}
