package services

import (
	"context"
	"fmt"
	"io"
	"sort"

	"finsight/internal/core"
	"finsight/internal/ledger"
	"finsight/internal/log"
)

// AnalysisRequester asks the worker to analyse a user.
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, userID string, asOf core.Date) error
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Parsed    int      `json:"parsed"`
	Added     int      `json:"added"`
	Users     []string `json:"users"`
	Requested int      `json:"requested"`
}

// LedgerService appends transactions and tells the rest of the system that
// the affected users changed.
type LedgerService struct {
	writer    ledger.Writer
	insights  *InsightCache
	requester AnalysisRequester
}

// NewLedgerService creates the service. insights and requester may be nil.
func NewLedgerService(writer ledger.Writer, insights *InsightCache, requester AnalysisRequester) *LedgerService {
	return &LedgerService{writer: writer, insights: insights, requester: requester}
}

// ImportCSV parses r and appends its transactions. Cached insights of the
// affected users are dropped and an analysis is requested for each of them.
// A failed request is logged; the import itself already succeeded.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	txs, err := ledger.ParseCSV(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse transactions: %w", err)
	}
	return s.Import(ctx, txs)
}

func (s *LedgerService) Import(ctx context.Context, txs []core.Transaction) (ImportResult, error) {
	added, err := s.writer.AppendTransactions(ctx, txs)
	if err != nil {
		return ImportResult{}, fmt.Errorf("append transactions: %w", err)
	}
	res := ImportResult{Parsed: len(txs), Added: added, Users: usersOf(txs)}
	if added == 0 {
		return res, nil
	}

	logger := log.FromContext(ctx).WithComponent(log.ComponentBackend)
	for _, u := range res.Users {
		if s.insights != nil {
			s.insights.Invalidate(u)
		}
		if s.requester == nil {
			continue
		}
		if err := s.requester.RequestAnalysis(ctx, u, core.Date{}); err != nil {
			logger.ErrorContext(ctx, "Failed to request analysis",
				log.FieldUserID, u,
				log.FieldError, err)
			continue
		}
		res.Requested++
	}

	logger.InfoContext(ctx, "Transactions imported",
		log.FieldOperation, log.OpImport,
		"parsed", res.Parsed,
		"added", res.Added,
		"users", len(res.Users))
	return res, nil
}

func usersOf(txs []core.Transaction) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tx := range txs {
		if _, ok := seen[tx.UserID]; !ok {
			seen[tx.UserID] = struct{}{}
			out = append(out, tx.UserID)
		}
	}
	sort.Strings(out)
	return out
}
