package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"finsight/internal/core"
	"finsight/internal/ledger"
	"finsight/internal/log"

	"golang.org/x/sync/errgroup"
)

// DueProcessorConfig holds configuration for the due-user processor
type DueProcessorConfig struct {
	// PollInterval is how often schedules are checked (default: 1m)
	PollInterval time.Duration

	// Concurrency is how many users are analysed at once (default: 4)
	Concurrency int
}

func DefaultDueProcessorConfig() DueProcessorConfig {
	return DueProcessorConfig{
		PollInterval: time.Minute,
		Concurrency:  4,
	}
}

// Runner runs an analysis for one user.
type Runner interface {
	RunForUser(ctx context.Context, userID string, asOf time.Time, ops ...Operation) (*RunReport, error)
}

// SweepResult counts what one pass over the schedules did.
type SweepResult struct {
	Checked   int `json:"checked"`
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// DueUserProcessor periodically runs the analysis of every user whose
// cadence says a run is due.
type DueUserProcessor struct {
	schedules ledger.Scheduler
	runner    Runner
	config    DueProcessorConfig
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewDueUserProcessor(schedules ledger.Scheduler, runner Runner, config DueProcessorConfig) *DueUserProcessor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &DueUserProcessor{
		schedules: schedules,
		runner:    runner,
		config:    config,
		now:       time.Now,
	}
}

// ProcessDueUsers analyses every due user as of now. A failed user is logged
// and left due for the next sweep; only a failure to list schedules is returned.
func (p *DueUserProcessor) ProcessDueUsers(ctx context.Context, now time.Time) (SweepResult, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentScheduler)

	schedules, err := p.schedules.ListSchedules(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list schedules: %w", err)
	}

	res := SweepResult{Checked: len(schedules)}
	var succeeded, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)
	for _, sched := range schedules {
		sched := sched
		if !isDue(ctx, sched, now) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res.Due++
		g.Go(func() error {
			if _, err := p.runner.RunForUser(ctx, sched.UserID, now); err != nil {
				failed.Add(1)
				logger.ErrorContext(ctx, "Scheduled analysis failed",
					log.FieldUserID, sched.UserID,
					log.FieldCadence, sched.Cadence,
					log.FieldError, err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Succeeded, res.Failed = int(succeeded.Load()), int(failed.Load())
	if res.Due > 0 {
		logger.InfoContext(ctx, "Schedule sweep finished",
			"checked", res.Checked,
			"due", res.Due,
			"succeeded", res.Succeeded,
			"failed", res.Failed)
	}
	return res, ctx.Err()
}

// isDue falls back to daily for a cadence without a registered checker.
func isDue(ctx context.Context, sched ledger.Schedule, now time.Time) bool {
	checker, err := GetScheduleChecker(sched.Cadence)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Unknown cadence, treating as daily",
			log.FieldUserID, sched.UserID,
			log.FieldCadence, sched.Cadence)
		checker, _ = GetScheduleChecker(core.CadenceDaily)
	}
	return checker.IsDue(sched.LastRunAt, now)
}

// Start begins the sweep loop. Returns an error if already running.
func (p *DueUserProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("due-user processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	log.FromContext(ctx).WithComponent(log.ComponentScheduler).InfoContext(ctx, "Due-user processor started",
		"poll_interval", p.config.PollInterval,
		"concurrency", p.config.Concurrency)
	return nil
}

// Stop signals the loop to end and waits for the current sweep to finish.
func (p *DueUserProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	// A timed-out Stop already closed it.
	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *DueUserProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *DueUserProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *DueUserProcessor) sweep(ctx context.Context) {
	if _, err := p.ProcessDueUsers(ctx, p.now()); err != nil && ctx.Err() == nil {
		log.FromContext(ctx).WithComponent(log.ComponentScheduler).ErrorContext(ctx, "Schedule sweep failed",
			log.FieldError, err)
	}
}
