package automation

import (
	"time"

	"github.com/robfig/cron/v3"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/dates"
)

const (
	DefaultCron = "0 9 * * *"

	ActionReminder      = "notify-reminder-3days"
	ActionCutoffDay     = "notify-cutoff-day"
	ActionAboutToExpire = "mark-about-to-expire"
	ActionSuspend       = "mark-suspended"
	ActionNotifySuspend = "notify-suspended"

	dryRunSuffix = " (dry-run)"

	// PreviewSize is how many action details the run log keeps.
	PreviewSize = 10

	InvokedByScheduler = "scheduler"
	InvokedBySystem    = "system"
)

// Config is the persisted scheduler configuration.
type Config struct {
	CronExpression string    `json:"cronExpression" firestore:"cronExpression"`
	Enabled        bool      `json:"enabled" firestore:"enabled"`
	TimeZone       string    `json:"timeZone" firestore:"timeZone"`
	CatchUp        bool      `json:"catchUp" firestore:"catchUp"`
	LastUpdated    time.Time `json:"lastUpdated" firestore:"lastUpdated,serverTimestamp"`
}

func DefaultConfig() Config {
	return Config{
		CronExpression: DefaultCron,
		Enabled:        true,
		TimeZone:       dates.DefaultZone,
	}
}

// Validate checks the cron expression and the zone name.
func (c Config) Validate() error {
	if _, err := cron.ParseStandard(c.CronExpression); err != nil {
		return apperrors.Validationf("invalid cron expression %q: %v", c.CronExpression, err)
	}
	if _, err := dates.LoadZone(c.TimeZone); err != nil {
		return apperrors.Validationf("%v", err)
	}
	return nil
}

type ConfigUpdate struct {
	CronExpression *string `json:"cronExpression,omitempty"`
	Enabled        *bool   `json:"enabled,omitempty"`
	TimeZone       *string `json:"timeZone,omitempty"`
	CatchUp        *bool   `json:"catchUp,omitempty"`
}

// Apply returns a copy of c with the update's fields set.
func (u ConfigUpdate) Apply(c Config) Config {
	if u.CronExpression != nil {
		c.CronExpression = *u.CronExpression
	}
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.TimeZone != nil {
		c.TimeZone = *u.TimeZone
	}
	if u.CatchUp != nil {
		c.CatchUp = *u.CatchUp
	}
	return c
}

type RunOptions struct {
	DryRun    bool
	InvokedBy string
	Reason    string
}

type RunError struct {
	SubscriptionID string `json:"subscriptionId,omitempty" firestore:"subscriptionId,omitempty"`
	Action         string `json:"action" firestore:"action"`
	Message        string `json:"message" firestore:"message"`
}

type ActionDetail struct {
	SubscriptionID string   `json:"subscriptionId" firestore:"subscriptionId"`
	Actions        []string `json:"actions" firestore:"actions"`
	Overdue        bool     `json:"overdue" firestore:"overdue"`
	Notes          []string `json:"notes,omitempty" firestore:"notes,omitempty"`
}

type RunResult struct {
	RunID                  string         `json:"runId"`
	RunDate                string         `json:"runDate"`
	TimeZone               string         `json:"timeZone"`
	DryRun                 bool           `json:"dryRun"`
	ProcessedCount         int            `json:"processedCount"`
	NotificationsSent      int            `json:"notificationsSent"`
	SubscriptionsCut       int            `json:"subscriptionsCut"`
	SubscriptionsActivated int            `json:"subscriptionsActivated"`
	Errors                 []RunError     `json:"errors"`
	ActionDetails          []ActionDetail `json:"actionDetails"`
}

// Action names an action the way it is recorded for this run.
func (r *RunResult) Action(name string) string {
	if r.DryRun {
		return name + dryRunSuffix
	}
	return name
}

func (r *RunResult) Fail(subscriptionID, action string, err error) {
	r.Errors = append(r.Errors, RunError{SubscriptionID: subscriptionID, Action: action, Message: err.Error()})
}

// RunLog is the audit record stored for every run.
type RunLog struct {
	RunID             string         `firestore:"runId"`
	RunDate           string         `firestore:"runDate"`
	TimeZone          string         `firestore:"timeZone"`
	DryRun            bool           `firestore:"dryRun"`
	ProcessedCount    int            `firestore:"processedCount"`
	NotificationsSent int            `firestore:"notificationsSent"`
	SubscriptionsCut  int            `firestore:"subscriptionsCut"`
	ErrorCount        int            `firestore:"errorCount"`
	StartedAt         time.Time      `firestore:"startedAt"`
	DurationMs        int64          `firestore:"durationMs"`
	InvokedBy         string         `firestore:"invokedBy"`
	Reason            string         `firestore:"reason,omitempty"`
	DetailsPreview    []ActionDetail `firestore:"detailsPreview"`
}

func NewRunLog(r *RunResult, opts RunOptions, startedAt time.Time, took time.Duration) RunLog {
	invokedBy := opts.InvokedBy
	if invokedBy == "" {
		invokedBy = InvokedBySystem
	}
	preview := r.ActionDetails
	if len(preview) > PreviewSize {
		preview = preview[:PreviewSize]
	}
	return RunLog{
		RunID:             r.RunID,
		RunDate:           r.RunDate,
		TimeZone:          r.TimeZone,
		DryRun:            r.DryRun,
		ProcessedCount:    r.ProcessedCount,
		NotificationsSent: r.NotificationsSent,
		SubscriptionsCut:  r.SubscriptionsCut,
		ErrorCount:        len(r.Errors),
		StartedAt:         startedAt,
		DurationMs:        took.Milliseconds(),
		InvokedBy:         invokedBy,
		Reason:            opts.Reason,
		DetailsPreview:    preview,
	}
}
