package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAlwaysGrants(t *testing.T) {
	var l Local
	for i := 0; i < 3; i++ {
		ok, err := l.Acquire(context.Background(), "2026-03-01T09:00", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestNewRedisLockRejectsBadURL(t *testing.T) {
	_, err := NewRedisLock("not a url")
	assert.Error(t, err)

	l, err := NewRedisLock("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
