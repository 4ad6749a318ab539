package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscriptionOpsAPI/internal/automation"
)

func newTestScheduler(disabled bool) (*AutomationScheduler, *memAutomation, *fakeLock) {
	store := &memAutomation{}
	svc := NewAutomationService(newMemSubscriptions(), &fakeSender{}, store, automation.DefaultConfig(), discardLogger())
	lock := &fakeLock{granted: true}
	return NewAutomationScheduler(svc, lock, disabled, discardLogger()), store, lock
}

func stopScheduler(t *testing.T, s *AutomationScheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StartsWithDefaults(t *testing.T) {
	s, _, _ := newTestScheduler(false)
	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	status := s.Status()
	assert.True(t, status.Scheduled)
	assert.True(t, status.NextRun.After(time.Now()))
	assert.Empty(t, status.Reason)

	// A second Start keeps the existing timer.
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Status().Scheduled)
}

func TestScheduler_DisabledByEnvironment(t *testing.T) {
	s, _, _ := newTestScheduler(true)
	require.NoError(t, s.Start(context.Background()))

	status := s.Status()
	assert.False(t, status.Scheduled)
	assert.Contains(t, status.Reason, "AUTOMATION_JOB_DISABLED")
}

func TestScheduler_InvalidStoredConfigLeavesItIdle(t *testing.T) {
	s, store, _ := newTestScheduler(false)
	store.config = &automation.Config{CronExpression: "every morning", Enabled: true}

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.Status().Scheduled)
	assert.Equal(t, "invalid cron expression", s.Status().Reason)

	store.config = &automation.Config{CronExpression: "0 9 * * *", Enabled: true, TimeZone: "Nowhere/City"}
	require.NoError(t, s.Restart(context.Background()))
	assert.Equal(t, "invalid time zone", s.Status().Reason)
}

func TestScheduler_ConfigReadError(t *testing.T) {
	s, store, _ := newTestScheduler(false)
	store.getErr = errBoom

	assert.ErrorIs(t, s.Start(context.Background()), errBoom)
	assert.False(t, s.Status().Scheduled)
}

func TestScheduler_RestartFollowsConfig(t *testing.T) {
	s, store, _ := newTestScheduler(false)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer stopScheduler(t, s)

	store.config = &automation.Config{CronExpression: "0 9 * * *", Enabled: false}
	require.NoError(t, s.Restart(ctx))
	assert.False(t, s.Status().Scheduled)
	assert.Equal(t, "disabled in configuration", s.Status().Reason)

	store.config = &automation.Config{CronExpression: "15 6 * * *", Enabled: true, TimeZone: "UTC"}
	require.NoError(t, s.Restart(ctx))
	status := s.Status()
	require.True(t, status.Scheduled)
	assert.Equal(t, 15, status.NextRun.UTC().Minute())
	assert.Equal(t, 6, status.NextRun.UTC().Hour())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, _, _ := newTestScheduler(false)
	stopScheduler(t, s)
	assert.False(t, s.Status().Scheduled)
}

func TestScheduler_TickClaimsLock(t *testing.T) {
	s, store, lock := newTestScheduler(false)

	s.tick()
	require.Equal(t, 1, store.logCount())
	assert.Equal(t, automation.InvokedByScheduler, store.logs[0].InvokedBy)
	assert.Equal(t, "scheduled", store.logs[0].Reason)
	require.Len(t, lock.keys, 1)
	assert.Len(t, lock.keys[0], len("2006-01-02T15:04"))

	lock.granted = false
	s.tick()
	assert.Equal(t, 1, store.logCount(), "another replica owns the tick")

	lock.err = errBoom
	s.tick()
	assert.Equal(t, 2, store.logCount(), "lock errors fail open")
}

func TestScheduler_TickSkipsWhileRunInProgress(t *testing.T) {
	s, store, lock := newTestScheduler(false)
	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	s.running.Lock()
	require.NoError(t, s.Restart(context.Background()))
	s.tick()
	assert.Zero(t, store.logCount())
	assert.Empty(t, lock.keys)
	s.running.Unlock()

	s.tick()
	assert.Equal(t, 1, store.logCount())
}
