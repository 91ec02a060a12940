package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finsight/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operations an analysis request may ask for. An empty list means all of them.
const (
	OpAnomalies       = "anomalies"
	OpForecasts       = "forecasts"
	OpRecommendations = "recommendations"
	OpInsight         = "insight"
)

// AnalysisRequest asks the worker to run analytics for one user.
// It carries only the user and day; the worker reads the ledger itself.
type AnalysisRequest struct {
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id"`
	AsOf       string    `json:"as_of,omitempty"`
	Operations []string  `json:"operations,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAnalysisRequest creates a request for userID. A zero asOf means "today"
// from the worker's point of view.
func NewAnalysisRequest(userID string, asOf core.Date, ops ...string) *AnalysisRequest {
	msg := &AnalysisRequest{
		MessageID:  uuid.NewString(),
		UserID:     userID,
		Operations: ops,
		Timestamp:  time.Now(),
	}
	if !asOf.IsZero() {
		msg.AsOf = asOf.String()
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *AnalysisRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Day returns the requested as-of day, zero when none was given.
func (m *AnalysisRequest) Day() (core.Date, error) {
	if m.AsOf == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse("2006-01-02", m.AsOf)
	if err != nil {
		return core.Date{}, fmt.Errorf("as_of %q: %w", m.AsOf, core.ErrInvalidDate)
	}
	return core.DateOf(t), nil
}

// AnalysisRequestFromJSON decodes and validates a request.
func AnalysisRequestFromJSON(data []byte) (*AnalysisRequest, error) {
	var msg AnalysisRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, fmt.Errorf("analysis request %s: %w", msg.MessageID, core.ErrEmptyUser)
	}
	if _, err := msg.Day(); err != nil {
		return nil, err
	}
	for _, op := range msg.Operations {
		switch op {
		case OpAnomalies, OpForecasts, OpRecommendations, OpInsight:
		default:
			return nil, fmt.Errorf("analysis request %s: unknown operation %q", msg.MessageID, op)
		}
	}
	return &msg, nil
}

// AnomalyNotification announces a finding to the notifications subsystem.
type AnomalyNotification struct {
	MessageID      string          `json:"message_id"`
	FindingID      string          `json:"finding_id"`
	UserID         string          `json:"user_id"`
	TransactionRef string          `json:"transaction_ref"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	Score          float64         `json:"score"`
	Severity       core.Severity   `json:"severity"`
	ExpectedMin    decimal.Decimal `json:"expected_min"`
	ExpectedMax    decimal.Decimal `json:"expected_max"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// NewAnomalyNotification builds the notification for a finding.
func NewAnomalyNotification(f core.AnomalyFinding) *AnomalyNotification {
	return &AnomalyNotification{
		MessageID:      uuid.NewString(),
		FindingID:      f.ID,
		UserID:         f.UserID,
		TransactionRef: f.TransactionRef,
		Category:       f.Category,
		Amount:         f.Amount,
		Score:          f.Score,
		Severity:       f.Severity,
		ExpectedMin:    f.ExpectedRange.Min,
		ExpectedMax:    f.ExpectedRange.Max,
		DetectedAt:     f.DetectedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *AnomalyNotification) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnomalyNotificationFromJSON creates a message from JSON bytes
func AnomalyNotificationFromJSON(data []byte) (*AnomalyNotification, error) {
	var msg AnomalyNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
