package analytics

import (
	"fmt"
	"time"

	"finsight/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity cut-offs on the z-score.
const (
	CriticalZ = 3.5
	HighZ     = 3.0
	MediumZ   = 2.5
)

// findingNamespace scopes deterministic finding ids, so re-running detection
// over the same transaction yields the same id.
var findingNamespace = uuid.MustParse("6f1d4a52-8a0b-4c3e-9d4f-3b2a1c0e9f87")

// FindingID returns the stable id of the finding for a user's transaction.
func FindingID(userID, transactionID string) string {
	return uuid.NewSHA1(findingNamespace, []byte(userID+"/"+transactionID)).String()
}

// SeverityFor maps a z-score to a severity.
func SeverityFor(z float64) core.Severity {
	switch {
	case z > CriticalZ:
		return core.SeverityCritical
	case z > HighZ:
		return core.SeverityHigh
	case z > MediumZ:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

// Detector flags expenses that lie more than Threshold standard deviations
// from the mean of the other expenses in the same category.
type Detector struct {
	Threshold float64
}

// NewDetector creates a detector with the given z cut-off.
func NewDetector(threshold float64) Detector {
	return Detector{Threshold: threshold}
}

// Evaluate scores target against history, the same-user same-category
// transactions of the trailing window. The target itself, income and other
// categories are excluded from the comparison set. It returns nil when the
// target is not anomalous or there is nothing to compare against.
func (d Detector) Evaluate(target core.Transaction, history []core.Transaction, detectedAt time.Time) (*core.AnomalyFinding, error) {
	if err := validateOwned(target.UserID, append([]core.Transaction{target}, history...)); err != nil {
		return nil, err
	}
	if !target.IsExpense() {
		return nil, nil
	}

	var comparison Moments
	for _, tx := range history {
		if tx.ID == target.ID || !tx.IsExpense() || tx.Category != target.Category {
			continue
		}
		comparison = comparison.Add(tx.Amount)
	}
	return d.score(target, comparison, detectedAt)
}

// DetectAll scores every expense in txs against the other expenses of its
// category. Each comparison set is derived from the category moments in O(1),
// so the window is scanned once regardless of its size.
func (d Detector) DetectAll(userID string, txs []core.Transaction, detectedAt time.Time) ([]core.AnomalyFinding, error) {
	series, err := BuildSeries(userID, txs)
	if err != nil {
		return nil, err
	}

	var findings []core.AnomalyFinding
	for _, s := range series {
		for _, tx := range s.Transactions {
			f, err := d.score(tx, s.Moments().Remove(tx.Amount), detectedAt)
			if err != nil {
				return nil, err
			}
			if f != nil {
				findings = append(findings, *f)
			}
		}
	}
	return findings, nil
}

func (d Detector) score(target core.Transaction, comparison Moments, detectedAt time.Time) (*core.AnomalyFinding, error) {
	if d.Threshold <= 0 {
		return nil, fmt.Errorf("%w: z threshold %v", ErrInvalidInput, d.Threshold)
	}
	// Absence of history is not anomalous.
	if comparison.Count() == 0 {
		return nil, nil
	}

	z, err := comparison.ZScore(target.Amount)
	if err != nil {
		return nil, err
	}
	if z <= d.Threshold {
		return nil, nil
	}

	summary, err := comparison.Summary()
	if err != nil {
		return nil, err
	}
	mean, err := comparison.Mean()
	if err != nil {
		return nil, err
	}

	return &core.AnomalyFinding{
		ID:             FindingID(target.UserID, target.ID),
		UserID:         target.UserID,
		TransactionRef: target.ID,
		Category:       target.Category,
		Amount:         target.Amount,
		Score:          z,
		ExpectedRange:  expectedRange(mean, summary.StdDev, d.Threshold),
		Severity:       SeverityFor(z),
		DetectedAt:     detectedAt,
	}, nil
}

// expectedRange is mean ± threshold·std in cents. Amounts are never negative,
// so the lower bound is clamped at zero.
func expectedRange(mean decimal.Decimal, std, threshold float64) core.AmountRange {
	band := decimal.NewFromFloat(std * threshold)
	lo := core.RoundCents(mean.Sub(band))
	if lo.IsNegative() {
		lo = decimal.Zero
	}
	hi := core.RoundCents(mean.Add(band))
	if hi.LessThan(lo) {
		hi = lo
	}
	return core.AmountRange{Min: lo, Max: hi}
}
