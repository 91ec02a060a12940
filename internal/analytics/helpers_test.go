package analytics

import (
	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

var asOf = core.NewDate(2024, 3, 15)

func expense(id, category, amount string, day core.Date) core.Transaction {
	return core.Transaction{
		ID:         id,
		UserID:     "u1",
		Category:   category,
		Amount:     decimal.RequireFromString(amount),
		OccurredOn: day,
		Kind:       core.KindExpense,
	}
}

func income(id, amount string, day core.Date) core.Transaction {
	tx := expense(id, "Salary", amount, day)
	tx.Kind = core.KindIncome
	return tx
}

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
