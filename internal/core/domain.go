package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Cadence is how often a user's scheduled analysis runs.
const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

type (
	TransactionKind string
	Severity        string
	RiskLevel       string
	Cadence         string

	Date struct {
		time.Time
	}

	// Transaction is an immutable ledger fact. Expense amounts are positive.
	Transaction struct {
		ID          string
		UserID      string
		Category    string
		Description string
		Amount      decimal.Decimal
		OccurredOn  Date
		Kind        TransactionKind
	}

	// AmountRange is the band of amounts considered ordinary for a category.
	AmountRange struct {
		Min decimal.Decimal
		Max decimal.Decimal
	}

	AnomalyFinding struct {
		ID             string
		UserID         string
		TransactionRef string
		Category       string
		Amount         decimal.Decimal
		Score          float64
		ExpectedRange  AmountRange
		Severity       Severity
		DetectedAt     time.Time
	}

	ForecastBasis struct {
		SampleCount       int
		WindowTotal       decimal.Decimal
		HistoricalAverage decimal.Decimal // mean transaction amount
		SubperiodAverage  decimal.Decimal // mean spend per sub-period
	}

	SpendForecast struct {
		UserID          string
		Category        string
		PeriodStart     Date
		PeriodEnd       Date
		PredictedAmount decimal.Decimal
		Confidence      float64
		Basis           ForecastBasis
	}

	BudgetRecommendation struct {
		UserID            string
		Category          string
		RecommendedAmount decimal.Decimal
		CurrentAverage    decimal.Decimal // forecast spend per horizon period
		CurrentSpend      decimal.Decimal // actual spend in the latest horizon period
		ReasoningText     string
		Confidence        float64
		RiskLevel         RiskLevel
	}

	CategoryTotal struct {
		Category string
		Amount   decimal.Decimal
	}

	DashboardInsight struct {
		UserID             string
		AsOf               Date
		PeriodTotal        decimal.Decimal
		PriorPeriodTotal   decimal.Decimal
		PercentChange      float64
		TopCategory        string
		TopCategoryAmount  decimal.Decimal
		TopCategories      []CategoryTotal
		TransactionCount   int
		AverageTransaction decimal.Decimal
	}
)

var (
	ErrEmptyUser       = errors.New("empty user id")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCadence  = errors.New("invalid cadence")
	ErrInvalidSeverity = errors.New("invalid severity")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location and returns it as UTC midnight.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// AddDays returns the date n days later (earlier if n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseCadence parses a cadence name, case-insensitively.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return c, nil
	default:
		return "", ErrInvalidCadence
	}
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.rank() == 0 {
		return "", ErrInvalidSeverity
	}
	return sev, nil
}

// AtLeast reports whether s is as severe as min or more.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (k TransactionKind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (t Transaction) IsExpense() bool {
	return t.Kind == KindExpense
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.OccurredOn.Validate(); err != nil {
		return err
	}
	if t.Kind == KindExpense && t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// HasHistory reports whether the forecast was computed from at least one sample.
// A zero forecast without history means "nothing to extrapolate from".
func (f SpendForecast) HasHistory() bool {
	return f.Basis.SampleCount > 0
}

// Contains reports whether amount falls inside the range, bounds included.
func (r AmountRange) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(r.Min) && amount.LessThanOrEqual(r.Max)
}
