package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/analytics"
	"finsight/internal/core"
	"finsight/internal/ledger/memory"
	"finsight/internal/services"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

type call struct {
	UserID string
	AsOf   time.Time
	Ops    []services.Operation
}

type fakeRunner struct {
	calls []call
	err   error
}

func (r *fakeRunner) RunForUser(_ context.Context, userID string, asOf time.Time, ops ...services.Operation) (*services.RunReport, error) {
	r.calls = append(r.calls, call{userID, asOf, ops})
	if r.err != nil {
		return nil, r.err
	}
	return &services.RunReport{UserID: userID}, nil
}

type fakeSweeper struct {
	at  time.Time
	res services.SweepResult
	err error
}

func (s *fakeSweeper) ProcessDueUsers(_ context.Context, now time.Time) (services.SweepResult, error) {
	s.at = now
	return s.res, s.err
}

func TestHandleAnalysisRequest(t *testing.T) {
	tests := []struct {
		name      string
		msg       *amqp.AnalysisRequest
		runErr    error
		wantErr   bool
		wantCalls []call
	}{
		{
			name: "runs requested operations",
			msg:  amqp.NewAnalysisRequest("u1", core.NewDate(2024, 3, 15), amqp.OpAnomalies),
			wantCalls: []call{{
				UserID: "u1",
				AsOf:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
				Ops:    []services.Operation{services.OpAnomalies},
			}},
		},
		{
			name: "empty request runs everything today",
			msg:  &amqp.AnalysisRequest{MessageID: "m1", UserID: "u1"},
			wantCalls: []call{{
				UserID: "u1",
				Ops:    services.AllOperations(),
			}},
		},
		{
			name:    "unavailable ledger is redelivered",
			msg:     amqp.NewAnalysisRequest("u1", core.Date{}),
			runErr:  fmt.Errorf("anomalies: %w", analytics.ErrDataUnavailable),
			wantErr: true,
			wantCalls: []call{{
				UserID: "u1",
				Ops:    services.AllOperations(),
			}},
		},
		{
			name:   "invalid input is acknowledged",
			msg:    amqp.NewAnalysisRequest(" ", core.Date{}),
			runErr: fmt.Errorf("anomalies: %w", analytics.ErrInvalidInput),
			wantCalls: []call{{
				UserID: " ",
				Ops:    services.AllOperations(),
			}},
		},
		{
			name: "bad day is dropped",
			msg:  &amqp.AnalysisRequest{MessageID: "m2", UserID: "u1", AsOf: "yesterday"},
		},
		{
			name: "unknown operation is dropped",
			msg:  &amqp.AnalysisRequest{MessageID: "m3", UserID: "u1", Operations: []string{"all"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			w := NewAnalyticsWorker(runner, &fakeSweeper{})

			err := w.HandleAnalysisRequest(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleAnalysisRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, analytics.ErrDataUnavailable) {
				t.Errorf("HandleAnalysisRequest() error = %v, want %v", err, analytics.ErrDataUnavailable)
			}
			if diff := cmp.Diff(tt.wantCalls, runner.calls); diff != "" {
				t.Errorf("runner calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStartupSweep(t *testing.T) {
	now := time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{res: services.SweepResult{Checked: 3, Due: 2, Succeeded: 2}}
	w := NewAnalyticsWorker(&fakeRunner{}, sweeper)
	w.now = func() time.Time { return now }

	res, err := w.StartupSweep(context.Background())
	if err != nil {
		t.Fatalf("StartupSweep() error = %v", err)
	}
	if res != sweeper.res || !sweeper.at.Equal(now) {
		t.Errorf("StartupSweep() = %+v at %v, want %+v at %v", res, sweeper.at, sweeper.res, now)
	}

	sweeper.err = errors.New("schedules unavailable")
	if _, err := w.StartupSweep(context.Background()); err == nil {
		t.Error("StartupSweep() error = nil, want error")
	}
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) Invalidate(userID string) int {
	r.users = append(r.users, userID)
	return 1
}

func TestHandleAnalysisRequest_InvalidatesInsights(t *testing.T) {
	tests := []struct {
		name string
		msg  *amqp.AnalysisRequest
		want []string
	}{
		{"valid request", amqp.NewAnalysisRequest("u1", core.NewDate(2024, 3, 15)), []string{"u1"}},
		{"dropped request", &amqp.AnalysisRequest{MessageID: "m1", UserID: "u1", AsOf: "yesterday"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvalidator{}
			w := NewAnalyticsWorker(&fakeRunner{}, &fakeSweeper{}, WithInsightInvalidator(inv))
			if err := w.HandleAnalysisRequest(context.Background(), tt.msg); err != nil {
				t.Fatalf("HandleAnalysisRequest() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, inv.users); diff != "" {
				t.Errorf("invalidated users mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleAnalysisRequest_SeesExternalAppend(t *testing.T) {
	ctx := context.Background()
	day := core.NewDate(2024, 3, 15)
	now := func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	expense := func(id, category, amount string, d core.Date) core.Transaction {
		return core.Transaction{
			ID:         id,
			UserID:     "u1",
			Category:   category,
			Amount:     decimal.RequireFromString(amount),
			OccurredOn: d,
			Kind:       core.KindExpense,
		}
	}

	store := memory.New(
		expense("t1", "Food", "100", core.NewDate(2024, 3, 5)),
		expense("t2", "Coffee", "20", core.NewDate(2024, 3, 10)),
	)
	engine, err := analytics.NewEngine(store, analytics.DefaultParams(), analytics.WithClock(now))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	svc := services.NewAnalysisService(engine, store, services.DefaultAnalysisConfig(), services.WithServiceClock(now))
	w := NewAnalyticsWorker(svc, &fakeSweeper{}, WithInsightInvalidator(svc.Insights()))

	if _, err := svc.RunForUser(ctx, "u1", day.Time, services.OpInsight); err != nil {
		t.Fatalf("RunForUser() error = %v", err)
	}

	// Another process appends to the shared ledger and requests a run.
	if _, err := store.AppendTransactions(ctx, []core.Transaction{expense("t3", "Food", "500", core.NewDate(2024, 3, 12))}); err != nil {
		t.Fatalf("AppendTransactions() error = %v", err)
	}
	if err := w.HandleAnalysisRequest(ctx, amqp.NewAnalysisRequest("u1", day, amqp.OpInsight)); err != nil {
		t.Fatalf("HandleAnalysisRequest() error = %v", err)
	}

	got, err := store.GetInsight(ctx, "u1", day)
	if err != nil {
		t.Fatalf("GetInsight() error = %v", err)
	}
	if want := decimal.RequireFromString("620"); !got.PeriodTotal.Equal(want) {
		t.Errorf("persisted PeriodTotal = %s, want %s", got.PeriodTotal, want)
	}
}
