package analytics

import (
	"fmt"
	"sort"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

// CategorySeries is the time-ordered expense history of one (user, category)
// pair inside a lookback window. It lives for a single analysis call.
type CategorySeries struct {
	UserID       string
	Category     string
	Transactions []core.Transaction
	moments      Moments
}

// Moments returns the exact moments over the series amounts.
func (s CategorySeries) Moments() Moments {
	return s.moments
}

// Total returns the summed amount of the series.
func (s CategorySeries) Total() decimal.Decimal {
	return s.moments.Sum()
}

// validateOwned checks every transaction is well formed and belongs to userID.
func validateOwned(userID string, txs []core.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: transaction %q: %v", ErrInvalidInput, tx.ID, err)
		}
		if tx.UserID != userID {
			return fmt.Errorf("%w: transaction %q belongs to user %q, not %q", ErrInvalidInput, tx.ID, tx.UserID, userID)
		}
	}
	return nil
}

// sortTransactions orders by date, then id, so every derived output has a
// deterministic order whatever order the ledger returned.
func sortTransactions(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.OccurredOn.Equal(b.OccurredOn.Time) {
			return a.OccurredOn.Before(b.OccurredOn.Time)
		}
		return a.ID < b.ID
	})
}

// BuildSeries validates txs and splits the expenses into per-category series,
// sorted by category name. Income is ignored.
func BuildSeries(userID string, txs []core.Transaction) ([]CategorySeries, error) {
	if err := validateOwned(userID, txs); err != nil {
		return nil, err
	}

	byCategory := make(map[string][]core.Transaction)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		byCategory[tx.Category] = append(byCategory[tx.Category], tx)
	}

	out := make([]CategorySeries, 0, len(byCategory))
	for category, list := range byCategory {
		sorted := append([]core.Transaction(nil), list...)
		sortTransactions(sorted)
		var m Moments
		for _, tx := range sorted {
			m = m.Add(tx.Amount)
		}
		out = append(out, CategorySeries{
			UserID:       userID,
			Category:     category,
			Transactions: sorted,
			moments:      m,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
