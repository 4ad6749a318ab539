package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/internal/dates"
	"subscriptionOpsAPI/internal/metrics"
	"subscriptionOpsAPI/internal/subscription"
)

// AutomationService runs the daily billing cycle: reminders before the cut
// date, a notice on the cut date, and the overdue status transitions.
type AutomationService struct {
	subscriptions SubscriptionStore
	sender        TemplateSender
	store         AutomationStore
	defaults      automation.Config
	now           func() time.Time
	logger        *slog.Logger
}

func NewAutomationService(
	subscriptions SubscriptionStore,
	sender TemplateSender,
	store AutomationStore,
	defaults automation.Config,
	logger *slog.Logger,
) *AutomationService {
	return &AutomationService{
		subscriptions: subscriptions,
		sender:        sender,
		store:         store,
		defaults:      defaults,
		now:           time.Now,
		logger:        logger,
	}
}

// Config returns the stored configuration, or the defaults when nothing has
// been saved. Blank stored fields fall back to the defaults too.
func (s *AutomationService) Config(ctx context.Context) (automation.Config, error) {
	stored, err := s.store.GetConfig(ctx)
	if err != nil {
		return s.defaults, err
	}
	if stored == nil {
		return s.defaults, nil
	}
	cfg := *stored
	if cfg.CronExpression == "" {
		cfg.CronExpression = s.defaults.CronExpression
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = s.defaults.TimeZone
	}
	return cfg, nil
}

func (s *AutomationService) UpdateConfig(ctx context.Context, update automation.ConfigUpdate) (automation.Config, error) {
	current, err := s.Config(ctx)
	if err != nil {
		return current, err
	}
	next := update.Apply(current)
	if err := next.Validate(); err != nil {
		return current, err
	}
	next.LastUpdated = time.Time{}
	if err := s.store.SaveConfig(ctx, next); err != nil {
		return current, err
	}
	return s.Config(ctx)
}

// ResetConfig drops the stored configuration so the defaults apply again.
func (s *AutomationService) ResetConfig(ctx context.Context) (automation.Config, error) {
	if err := s.store.DeleteConfig(ctx); err != nil {
		return s.defaults, err
	}
	return s.defaults, nil
}

type passTargets struct {
	today         string
	reminder      string
	oneMonthLate  string
	twoMonthsLate string
}

func computeTargets(today string) (passTargets, error) {
	t := passTargets{today: today}
	var err error
	if t.reminder, err = dates.AddDays(today, 3); err != nil {
		return t, err
	}
	if t.oneMonthLate, err = dates.AddMonths(today, -1); err != nil {
		return t, err
	}
	if t.twoMonthsLate, err = dates.AddMonths(today, -2); err != nil {
		return t, err
	}
	return t, nil
}

// RunDaily executes the four passes for today's date in the configured zone.
// Per-record failures are collected in the result and never abort the run;
// the returned error is reserved for failures that prevent the run itself.
func (s *AutomationService) RunDaily(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation config: %w", err)
	}
	loc, err := dates.LoadZone(cfg.TimeZone)
	if err != nil {
		return nil, err
	}

	startedAt := s.now()
	targets, err := computeTargets(dates.Today(startedAt, loc))
	if err != nil {
		return nil, err
	}

	result := &automation.RunResult{
		RunID:         uuid.NewString(),
		RunDate:       targets.today,
		TimeZone:      loc.String(),
		DryRun:        opts.DryRun,
		Errors:        []automation.RunError{},
		ActionDetails: []automation.ActionDetail{},
	}
	logger := s.logger.With("run_id", result.RunID, "run_date", result.RunDate, "dry_run", opts.DryRun)
	logger.Info("automation run started", "invoked_by", opts.InvokedBy, "reason", opts.Reason, "catch_up", cfg.CatchUp)

	s.reminderPass(ctx, targets, result)
	s.cutoffPass(ctx, targets, result)
	s.aboutToExpirePass(ctx, targets, cfg.CatchUp, result)
	s.suspendPass(ctx, targets, cfg.CatchUp, result)

	took := s.now().Sub(startedAt)
	s.writeRunLog(ctx, result, opts, startedAt, took)

	outcome := "ok"
	if len(result.Errors) > 0 {
		outcome = "errors"
	}
	trigger := "manual"
	if opts.InvokedBy == automation.InvokedByScheduler {
		trigger = "timer"
	}
	metrics.AutomationRuns.WithLabelValues(trigger, strconv.FormatBool(opts.DryRun), outcome).Inc()
	metrics.AutomationRunDuration.Observe(took.Seconds())

	logger.Info("automation run finished",
		"processed", result.ProcessedCount,
		"notifications", result.NotificationsSent,
		"cut", result.SubscriptionsCut,
		"errors", len(result.Errors),
		"duration_ms", took.Milliseconds(),
	)
	return result, nil
}

func (s *AutomationService) find(ctx context.Context, q subscription.DueQuery, action string, result *automation.RunResult) []*subscription.Subscription {
	subs, err := s.subscriptions.FindDue(ctx, q)
	if err != nil {
		s.logger.Error("automation query failed", "action", action, "cut_date", q.CutDate, "error", err)
		result.Fail("", action, err)
		return nil
	}
	return subs
}

// notify sends one template and records the outcome. It reports whether the
// notification counts as sent.
func (s *AutomationService) notify(ctx context.Context, sub *subscription.Subscription, template, action string, data map[string]string, detail *automation.ActionDetail, result *automation.RunResult) bool {
	if !result.DryRun {
		_, err := s.sender.SendTemplate(ctx, communication.SendTemplateRequest{
			ClientID:     sub.ClientID,
			TemplateName: template,
			TemplateData: data,
		})
		if err != nil {
			s.logger.Warn("automation notification failed", "subscription_id", sub.ID, "action", action, "error", err)
			result.Fail(sub.ID, action, err)
			return false
		}
	}
	detail.Actions = append(detail.Actions, result.Action(action))
	result.NotificationsSent++
	metrics.AutomationActions.WithLabelValues(action).Inc()
	return true
}

// transition changes a subscription's status unless the run is a dry run.
func (s *AutomationService) transition(ctx context.Context, sub *subscription.Subscription, status subscription.Status, action string, detail *automation.ActionDetail, result *automation.RunResult) bool {
	if !result.DryRun {
		if err := s.subscriptions.SetStatus(ctx, sub.ID, status); err != nil {
			s.logger.Error("automation status change failed", "subscription_id", sub.ID, "status", status, "error", err)
			result.Fail(sub.ID, action, err)
			return false
		}
	}
	detail.Actions = append(detail.Actions, result.Action(action))
	metrics.AutomationActions.WithLabelValues(action).Inc()
	return true
}

func (s *AutomationService) reminderPass(ctx context.Context, t passTargets, result *automation.RunResult) {
	q := subscription.DueQuery{Status: subscription.StatusActive, CutDate: t.reminder}
	for _, sub := range s.find(ctx, q, automation.ActionReminder, result) {
		result.ProcessedCount++
		detail := automation.ActionDetail{SubscriptionID: sub.ID, Actions: []string{}}
		s.notify(ctx, sub, communication.TemplateReminder3Days, automation.ActionReminder,
			map[string]string{"dueDate": sub.CutDate}, &detail, result)
		result.ActionDetails = append(result.ActionDetails, detail)
	}
}

func (s *AutomationService) cutoffPass(ctx context.Context, t passTargets, result *automation.RunResult) {
	q := subscription.DueQuery{Status: subscription.StatusActive, CutDate: t.today}
	for _, sub := range s.find(ctx, q, automation.ActionCutoffDay, result) {
		result.ProcessedCount++
		detail := automation.ActionDetail{SubscriptionID: sub.ID, Actions: []string{}, Overdue: true}
		s.notify(ctx, sub, communication.TemplateCutoffDay, automation.ActionCutoffDay,
			map[string]string{"subscriptionLabel": sub.PlanLabel(), "cutoffDate": sub.CutDate}, &detail, result)
		result.ActionDetails = append(result.ActionDetails, detail)
	}
}

func (s *AutomationService) aboutToExpirePass(ctx context.Context, t passTargets, catchUp bool, result *automation.RunResult) {
	q := subscription.DueQuery{Status: subscription.StatusActive, CutDate: t.oneMonthLate, OnOrBefore: catchUp}
	for _, sub := range s.find(ctx, q, automation.ActionAboutToExpire, result) {
		// In catch-up mode anything two months late belongs to the next pass.
		if catchUp && sub.CutDate <= t.twoMonthsLate {
			continue
		}
		result.ProcessedCount++
		detail := automation.ActionDetail{SubscriptionID: sub.ID, Actions: []string{}, Overdue: true}
		s.transition(ctx, sub, subscription.StatusAboutToExpire, automation.ActionAboutToExpire, &detail, result)
		result.ActionDetails = append(result.ActionDetails, detail)
	}
}

func (s *AutomationService) suspendPass(ctx context.Context, t passTargets, catchUp bool, result *automation.RunResult) {
	q := subscription.DueQuery{CutDate: t.twoMonthsLate, OnOrBefore: catchUp}
	for _, sub := range s.find(ctx, q, automation.ActionSuspend, result) {
		if sub.Status.Settled() {
			continue
		}
		result.ProcessedCount++
		detail := automation.ActionDetail{SubscriptionID: sub.ID, Actions: []string{}, Overdue: true}

		if s.transition(ctx, sub, subscription.StatusSuspended, automation.ActionSuspend, &detail, result) {
			if !result.DryRun {
				result.SubscriptionsCut++
			}
			if !s.notify(ctx, sub, communication.TemplateSuspended, automation.ActionNotifySuspend,
				map[string]string{"subscriptionLabel": sub.PlanLabel()}, &detail, result) {
				detail.Notes = append(detail.Notes, "suspended without notification")
			}
		}
		result.ActionDetails = append(result.ActionDetails, detail)
	}
}

func (s *AutomationService) writeRunLog(ctx context.Context, result *automation.RunResult, opts automation.RunOptions, startedAt time.Time, took time.Duration) {
	entry := automation.NewRunLog(result, opts, startedAt, took)
	if err := s.store.InsertLog(ctx, entry); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Warn("automation log skipped, context cancelled", "run_id", result.RunID)
			return
		}
		s.logger.Error("failed to write automation log", "run_id", result.RunID, "error", err)
	}
}
