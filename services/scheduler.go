package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/dates"
)

const (
	scheduledRunTimeout = 10 * time.Minute
	tickLockTTL         = 15 * time.Minute
)

// SchedulerStatus describes the currently registered timer, if any.
type SchedulerStatus struct {
	Scheduled bool      `json:"scheduled"`
	Reason    string    `json:"reason,omitempty"`
	NextRun   time.Time `json:"nextRun,omitempty"`
}

// AutomationScheduler owns the single cron timer that triggers the daily
// run. Start, Stop and Restart are serialized so two timers never coexist.
type AutomationScheduler struct {
	service  *AutomationService
	lock     TickLock
	disabled bool
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	reason string

	// running is held for the whole of a scheduled run. It outlives the cron
	// instance, so a tick from a restarted timer skips while an older run is
	// still going.
	running sync.Mutex
}

func NewAutomationScheduler(service *AutomationService, lock TickLock, disabled bool, logger *slog.Logger) *AutomationScheduler {
	return &AutomationScheduler{
		service:  service,
		lock:     lock,
		disabled: disabled,
		logger:   logger,
	}
}

// Start registers the timer from the current configuration. A disabled job,
// a disabled configuration or an invalid expression leave the scheduler idle
// and are only logged; an error is returned when the configuration cannot be
// read at all.
func (s *AutomationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *AutomationScheduler) startLocked(ctx context.Context) error {
	if s.cron != nil {
		return nil
	}
	if s.disabled {
		s.reason = "disabled by AUTOMATION_JOB_DISABLED"
		s.logger.Info("automation job disabled by environment")
		return nil
	}

	cfg, err := s.service.Config(ctx)
	if err != nil {
		s.reason = "configuration unavailable"
		return err
	}
	if !cfg.Enabled {
		s.reason = "disabled in configuration"
		s.logger.Info("automation job disabled in configuration")
		return nil
	}
	if _, err := cron.ParseStandard(cfg.CronExpression); err != nil {
		s.reason = "invalid cron expression"
		s.logger.Error("invalid cron expression, automation job not scheduled", "expression", cfg.CronExpression, "error", err)
		return nil
	}
	loc, err := dates.LoadZone(cfg.TimeZone)
	if err != nil {
		s.reason = "invalid time zone"
		s.logger.Error("invalid time zone, automation job not scheduled", "time_zone", cfg.TimeZone, "error", err)
		return nil
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	entry, err := c.AddFunc(cfg.CronExpression, s.tick)
	if err != nil {
		s.reason = "invalid cron expression"
		s.logger.Error("failed to register automation job", "expression", cfg.CronExpression, "error", err)
		return nil
	}
	c.Start()

	s.cron, s.entry, s.reason = c, entry, ""
	s.logger.Info("automation job scheduled", "expression", cfg.CronExpression, "time_zone", loc.String(), "next_run", c.Entry(entry).Next)
	return nil
}

// stopLocked removes the timer. A run already in progress keeps going; the
// returned context is done once it finishes.
func (s *AutomationScheduler) stopLocked() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	done := s.cron.Stop()
	s.cron, s.entry = nil, 0
	s.reason = "stopped"
	return done
}

// Stop removes the timer and waits for an in-flight run until ctx expires.
func (s *AutomationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.stopLocked()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("automation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart swaps the timer for one built from the current configuration. It
// does not wait for a run already in progress; the first tick of the new
// timer is skipped if that run has not finished.
func (s *AutomationScheduler) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.startLocked(ctx)
}

func (s *AutomationScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return SchedulerStatus{Reason: s.reason}
	}
	return SchedulerStatus{Scheduled: true, NextRun: s.cron.Entry(s.entry).Next}
}

// tick is the timer callback. It claims the tick so only one replica runs
// it, then executes the daily cycle in the background context it owns.
func (s *AutomationScheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn("previous automation run still in progress, skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), scheduledRunTimeout)
	defer cancel()

	key := time.Now().UTC().Truncate(time.Minute).Format("2006-01-02T15:04")
	claimed, err := s.lock.Acquire(ctx, key, tickLockTTL)
	if err != nil {
		s.logger.Warn("tick lock unavailable, running anyway", "tick", key, "error", err)
		claimed = true
	}
	if !claimed {
		s.logger.Info("tick already handled by another instance", "tick", key)
		return
	}

	opts := automation.RunOptions{InvokedBy: automation.InvokedByScheduler, Reason: "scheduled"}
	if _, err := s.service.RunDaily(ctx, opts); err != nil {
		s.logger.Error("scheduled automation run failed", "error", err)
	}
}
