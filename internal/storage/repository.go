// Package storage is the SQLite record store: it owns the transaction ledger
// and every persisted analytics output.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finsight/internal/core"
	"finsight/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	// ModelVersion identifies the forecast model persisted with each forecast.
	ModelVersion = "linear-v1"
	// PredictionType is the forecast granularity persisted with each forecast.
	PredictionType = "category_spend"

	dayLayout = "2006-01-02"
)

type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ ledger.Reader      = (*SQLiteRepository)(nil)
	_ ledger.Writer      = (*SQLiteRepository)(nil)
	_ ledger.UserLister  = (*SQLiteRepository)(nil)
	_ ledger.RecordStore = (*SQLiteRepository)(nil)
	_ ledger.Reviewer    = (*SQLiteRepository)(nil)
	_ ledger.Scheduler   = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// AppendTransactions implements ledger.Writer. Ids already present are
// skipped; the count of inserted rows is returned.
func (r *SQLiteRepository) AppendTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
	}

	added := 0
	err := r.inTx(ctx, func(q *sql.Tx) error {
		stmt, err := q.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (id, user_id, category, description, amount, occurred_on, kind)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, tx := range txs {
			res, err := stmt.ExecContext(ctx, tx.ID, tx.UserID, tx.Category, tx.Description,
				tx.Amount.String(), tx.OccurredOn.String(), string(tx.Kind))
			if err != nil {
				return fmt.Errorf("insert transaction %q: %w", tx.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transactions appended to SQLite", "received", len(txs), "added", added)
	return added, nil
}

// FetchTransactions implements ledger.Reader.
func (r *SQLiteRepository) FetchTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	query := `SELECT id, user_id, category, description, amount, occurred_on, kind FROM transactions WHERE user_id = ?`
	args := []any{q.UserID}

	if q.Category != "" {
		query += ` AND category = ?`
		args = append(args, q.Category)
	}
	if !q.Start.IsZero() {
		query += ` AND occurred_on >= ?`
		args = append(args, q.Start.String())
	}
	if !q.End.IsZero() {
		query += ` AND occurred_on <= ?`
		args = append(args, q.End.String())
	}
	if len(q.ExcludeIDs) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(q.ExcludeIDs)-1) + `)`
		for _, id := range q.ExcludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY occurred_on, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx             core.Transaction
			amount, day, k string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Category, &tx.Description, &amount, &day, &k); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %q amount %q: %w", tx.ID, amount, err)
		}
		if tx.OccurredOn, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
		tx.Kind = core.TransactionKind(k)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// ListUsers implements ledger.UserLister.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveFindings upserts findings by id. Investigation state survives re-detection.
func (r *SQLiteRepository) SaveFindings(ctx context.Context, findings []core.AnomalyFinding) error {
	return r.inTx(ctx, func(q *sql.Tx) error {
		for _, f := range findings {
			_, err := q.ExecContext(ctx, `
				INSERT INTO anomaly_findings
					(id, user_id, transaction_ref, category, amount, score, expected_min, expected_max, severity, anomaly_type, detected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					amount = excluded.amount,
					score = excluded.score,
					expected_min = excluded.expected_min,
					expected_max = excluded.expected_max,
					severity = excluded.severity,
					detected_at = excluded.detected_at`,
				f.ID, f.UserID, f.TransactionRef, f.Category, f.Amount.String(), f.Score,
				f.ExpectedRange.Min.String(), f.ExpectedRange.Max.String(), string(f.Severity),
				ledger.AnomalyTypeAmount, formatTime(f.DetectedAt))
			if err != nil {
				return fmt.Errorf("save finding %s: %w", f.ID, err)
			}
		}
		return nil
	})
}

// SaveForecasts upserts forecasts by (user, category, period start).
func (r *SQLiteRepository) SaveForecasts(ctx context.Context, forecasts []core.SpendForecast) error {
	return r.inTx(ctx, func(q *sql.Tx) error {
		for _, fc := range forecasts {
			_, err := q.ExecContext(ctx, `
				INSERT INTO spend_forecasts
					(user_id, category, period_start, period_end, predicted_amount, confidence, sample_count,
					 window_total, historical_average, subperiod_average, model_version, prediction_type)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, category, period_start) DO UPDATE SET
					period_end = excluded.period_end,
					predicted_amount = excluded.predicted_amount,
					confidence = excluded.confidence,
					sample_count = excluded.sample_count,
					window_total = excluded.window_total,
					historical_average = excluded.historical_average,
					subperiod_average = excluded.subperiod_average,
					model_version = excluded.model_version,
					prediction_type = excluded.prediction_type`,
				fc.UserID, fc.Category, fc.PeriodStart.String(), fc.PeriodEnd.String(),
				fc.PredictedAmount.String(), fc.Confidence, fc.Basis.SampleCount,
				fc.Basis.WindowTotal.String(), fc.Basis.HistoricalAverage.String(), fc.Basis.SubperiodAverage.String(),
				ModelVersion, PredictionType)
			if err != nil {
				return fmt.Errorf("save forecast %s/%s: %w", fc.UserID, fc.Category, err)
			}
		}
		return nil
	})
}

// SaveRecommendations upserts the latest recommendation per (user, category).
// Acceptance is kept only while the recommended amount is unchanged.
func (r *SQLiteRepository) SaveRecommendations(ctx context.Context, recs []core.BudgetRecommendation) error {
	return r.inTx(ctx, func(q *sql.Tx) error {
		for _, rec := range recs {
			_, err := q.ExecContext(ctx, `
				INSERT INTO budget_recommendations
					(user_id, category, recommended_amount, current_average, current_spend, reasoning_text, confidence, risk_level, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, category) DO UPDATE SET
					is_accepted = CASE WHEN recommended_amount = excluded.recommended_amount THEN is_accepted ELSE 0 END,
					accepted_at = CASE WHEN recommended_amount = excluded.recommended_amount THEN accepted_at ELSE NULL END,
					recommended_amount = excluded.recommended_amount,
					current_average = excluded.current_average,
					current_spend = excluded.current_spend,
					reasoning_text = excluded.reasoning_text,
					confidence = excluded.confidence,
					risk_level = excluded.risk_level,
					updated_at = excluded.updated_at`,
				rec.UserID, rec.Category, rec.RecommendedAmount.String(), rec.CurrentAverage.String(),
				rec.CurrentSpend.String(), rec.ReasoningText, rec.Confidence, string(rec.RiskLevel),
				formatTime(time.Now()))
			if err != nil {
				return fmt.Errorf("save recommendation %s/%s: %w", rec.UserID, rec.Category, err)
			}
		}
		return nil
	})
}

// SaveInsight upserts the insight for (user, as-of day).
func (r *SQLiteRepository) SaveInsight(ctx context.Context, in core.DashboardInsight) error {
	top, err := json.Marshal(toCategoryRows(in.TopCategories))
	if err != nil {
		return fmt.Errorf("encode top categories: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dashboard_insights
			(user_id, as_of, period_total, prior_period_total, percent_change, top_category,
			 top_category_amount, top_categories, transaction_count, average_transaction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, as_of) DO UPDATE SET
			period_total = excluded.period_total,
			prior_period_total = excluded.prior_period_total,
			percent_change = excluded.percent_change,
			top_category = excluded.top_category,
			top_category_amount = excluded.top_category_amount,
			top_categories = excluded.top_categories,
			transaction_count = excluded.transaction_count,
			average_transaction = excluded.average_transaction`,
		in.UserID, in.AsOf.String(), in.PeriodTotal.String(), in.PriorPeriodTotal.String(), in.PercentChange,
		in.TopCategory, in.TopCategoryAmount.String(), string(top), in.TransactionCount, in.AverageTransaction.String())
	if err != nil {
		return fmt.Errorf("save insight %s/%s: %w", in.UserID, in.AsOf, err)
	}
	return nil
}

// GetInsight returns the stored insight for a user and day.
func (r *SQLiteRepository) GetInsight(ctx context.Context, userID string, asOf core.Date) (core.DashboardInsight, error) {
	var (
		in                                     core.DashboardInsight
		day, total, prior, topAmount, top, avg string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, as_of, period_total, prior_period_total, percent_change, top_category,
			top_category_amount, top_categories, transaction_count, average_transaction
		FROM dashboard_insights WHERE user_id = ? AND as_of = ?`, userID, asOf.String()).
		Scan(&in.UserID, &day, &total, &prior, &in.PercentChange, &in.TopCategory, &topAmount, &top, &in.TransactionCount, &avg)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DashboardInsight{}, fmt.Errorf("insight %s/%s: %w", userID, asOf, ledger.ErrNotFound)
	}
	if err != nil {
		return core.DashboardInsight{}, fmt.Errorf("get insight: %w", err)
	}

	if in.AsOf, err = parseDay(day); err != nil {
		return core.DashboardInsight{}, err
	}
	amounts, err := parseDecimals(total, prior, topAmount, avg)
	if err != nil {
		return core.DashboardInsight{}, fmt.Errorf("insight %s/%s: %w", userID, asOf, err)
	}
	in.PeriodTotal, in.PriorPeriodTotal, in.TopCategoryAmount, in.AverageTransaction = amounts[0], amounts[1], amounts[2], amounts[3]

	var rows []categoryRow
	if err := json.Unmarshal([]byte(top), &rows); err != nil {
		return core.DashboardInsight{}, fmt.Errorf("decode top categories: %w", err)
	}
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return core.DashboardInsight{}, fmt.Errorf("top category %q amount: %w", row.Category, err)
		}
		in.TopCategories = append(in.TopCategories, core.CategoryTotal{Category: row.Category, Amount: amount})
	}
	return in, nil
}

// AcceptRecommendation implements ledger.Reviewer.
func (r *SQLiteRepository) AcceptRecommendation(ctx context.Context, userID, category string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_recommendations SET is_accepted = 1, accepted_at = ?
		WHERE user_id = ? AND category = ?`, formatTime(at), userID, category)
	if err != nil {
		return fmt.Errorf("accept recommendation: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("recommendation %s/%s: %w", userID, category, err)
	}
	slog.InfoContext(ctx, "Recommendation accepted", "user_id", userID, "category", category)
	return nil
}

// MarkInvestigated implements ledger.Reviewer.
func (r *SQLiteRepository) MarkInvestigated(ctx context.Context, findingID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE anomaly_findings SET is_investigated = 1 WHERE id = ?`, findingID)
	if err != nil {
		return fmt.Errorf("mark investigated: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("finding %s: %w", findingID, err)
	}
	return nil
}

// ListFindings implements ledger.Reviewer. Newest first.
func (r *SQLiteRepository) ListFindings(ctx context.Context, userID string) ([]ledger.FindingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, transaction_ref, category, amount, score, expected_min, expected_max,
			severity, anomaly_type, is_investigated, detected_at
		FROM anomaly_findings WHERE user_id = ?
		ORDER BY detected_at DESC, transaction_ref`, userID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []ledger.FindingRecord
	for rows.Next() {
		var (
			rec                           ledger.FindingRecord
			amount, lo, hi, sev, detected string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TransactionRef, &rec.Category, &amount, &rec.Score,
			&lo, &hi, &sev, &rec.AnomalyType, &rec.IsInvestigated, &detected); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		amounts, err := parseDecimals(amount, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("finding %s: %w", rec.ID, err)
		}
		rec.Amount, rec.ExpectedRange.Min, rec.ExpectedRange.Max = amounts[0], amounts[1], amounts[2]
		rec.Severity = core.Severity(sev)
		if rec.DetectedAt, err = parseTime(detected); err != nil {
			return nil, fmt.Errorf("finding %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRecommendations implements ledger.Reviewer. Ordered by category.
func (r *SQLiteRepository) ListRecommendations(ctx context.Context, userID string) ([]ledger.RecommendationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, category, recommended_amount, current_average, current_spend, reasoning_text,
			confidence, risk_level, is_accepted, accepted_at
		FROM budget_recommendations WHERE user_id = ?
		ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var out []ledger.RecommendationRecord
	for rows.Next() {
		var (
			rec                         ledger.RecommendationRecord
			recommended, average, spend string
			risk                        string
			acceptedAt                  sql.NullString
		)
		if err := rows.Scan(&rec.UserID, &rec.Category, &recommended, &average, &spend, &rec.ReasoningText,
			&rec.Confidence, &risk, &rec.IsAccepted, &acceptedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		amounts, err := parseDecimals(recommended, average, spend)
		if err != nil {
			return nil, fmt.Errorf("recommendation %s/%s: %w", rec.UserID, rec.Category, err)
		}
		rec.RecommendedAmount, rec.CurrentAverage, rec.CurrentSpend = amounts[0], amounts[1], amounts[2]
		rec.RiskLevel = core.RiskLevel(risk)
		if acceptedAt.Valid {
			if rec.AcceptedAt, err = parseTime(acceptedAt.String); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSchedules implements ledger.Scheduler. Every ledger user appears, with
// the daily cadence unless one was set.
func (r *SQLiteRepository) ListSchedules(ctx context.Context) ([]ledger.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.user_id, COALESCE(s.cadence, 'daily'), s.last_run_at
		FROM (SELECT DISTINCT user_id FROM transactions) u
		LEFT JOIN analysis_schedules s ON s.user_id = u.user_id
		ORDER BY u.user_id`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []ledger.Schedule
	for rows.Next() {
		var (
			s       ledger.Schedule
			cadence string
			lastRun sql.NullString
		)
		if err := rows.Scan(&s.UserID, &cadence, &lastRun); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.Cadence = core.Cadence(cadence)
		if lastRun.Valid {
			if s.LastRunAt, err = parseTime(lastRun.String); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetCadence implements ledger.Scheduler.
func (r *SQLiteRepository) SetCadence(ctx context.Context, userID string, cadence core.Cadence) error {
	if _, err := core.ParseCadence(string(cadence)); err != nil {
		return fmt.Errorf("cadence %q: %w", cadence, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_schedules (user_id, cadence) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET cadence = excluded.cadence`, userID, string(cadence))
	if err != nil {
		return fmt.Errorf("set cadence: %w", err)
	}
	return nil
}

// RecordRun implements ledger.Scheduler.
func (r *SQLiteRepository) RecordRun(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_schedules (user_id, last_run_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET last_run_at = excluded.last_run_at`, userID, formatTime(at))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type categoryRow struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

func toCategoryRows(totals []core.CategoryTotal) []categoryRow {
	out := make([]categoryRow, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryRow{Category: t.Category, Amount: t.Amount.String()})
	}
	return out
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func parseDay(s string) (core.Date, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("day %q: %w", s, core.ErrInvalidDate)
	}
	return core.DateOf(t), nil
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}
