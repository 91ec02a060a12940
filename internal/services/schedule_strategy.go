// Package services orchestrates the analytics engine: running analyses for a
// user, persisting and announcing their outputs, and deciding which users are
// due for a scheduled run.
package services

import (
	"fmt"
	"sync"
	"time"

	"finsight/internal/core"
)

// ScheduleChecker decides whether a user's analysis is due again.
type ScheduleChecker interface {
	// IsDue reports whether a run is due at now given the last run. A zero
	// lastRun means the user was never analysed.
	IsDue(lastRun, now time.Time) bool
}

// DailyChecker is due once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return !core.DateOf(lastRun).Equal(core.DateOf(now).Time)
}

// WeeklyChecker is due when 7 or more days passed since the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= 7*24*time.Hour
}

// MonthlyChecker is due once per calendar month.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return lastRun.Year() != now.Year() || lastRun.Month() != now.Month()
}

var (
	scheduleMu       sync.RWMutex
	scheduleCheckers = map[core.Cadence]ScheduleChecker{
		core.CadenceDaily:   DailyChecker{},
		core.CadenceWeekly:  WeeklyChecker{},
		core.CadenceMonthly: MonthlyChecker{},
	}
)

// GetScheduleChecker returns the checker for cadence.
func GetScheduleChecker(cadence core.Cadence) (ScheduleChecker, error) {
	scheduleMu.RLock()
	defer scheduleMu.RUnlock()
	checker, ok := scheduleCheckers[cadence]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidCadence, cadence)
	}
	return checker, nil
}

// RegisterScheduleChecker adds or replaces the checker for cadence.
func RegisterScheduleChecker(cadence core.Cadence, checker ScheduleChecker) {
	scheduleMu.Lock()
	defer scheduleMu.Unlock()
	scheduleCheckers[cadence] = checker
}
