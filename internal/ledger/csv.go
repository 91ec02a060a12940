package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"finsight/internal/core"
)

// CSVHeader is the column layout accepted by ParseCSV.
var CSVHeader = []string{"id", "user_id", "category", "amount", "occurred_on", "kind", "description"}

// ParseCSV reads transactions in CSVHeader layout. The header row is
// required; blank lines and lines starting with '#' are skipped. Malformed
// amounts are rejected here so the engine only ever sees clean decimals.
func ParseCSV(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range CSVHeader[:6] {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []core.Transaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		amount, err := core.ParseAmount(field("amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: amount %q: %w", line, field("amount"), err)
		}
		day, err := time.Parse("2006-01-02", field("occurred_on"))
		if err != nil {
			return nil, fmt.Errorf("line %d: occurred_on %q: %w", line, field("occurred_on"), core.ErrInvalidDate)
		}
		kind := core.TransactionKind(strings.ToLower(field("kind")))
		if kind == "" {
			kind = core.KindExpense
		}

		tx := core.Transaction{
			ID:          field("id"),
			UserID:      field("user_id"),
			Category:    field("category"),
			Description: field("description"),
			Amount:      amount,
			OccurredOn:  core.DateOf(day),
			Kind:        kind,
		}
		if tx.ID == "" {
			return nil, fmt.Errorf("line %d: empty id", line)
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
