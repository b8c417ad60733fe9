package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "course-1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "course-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "course-2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.Acquire(ctx, "course-1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalLockerExpires(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return now }

	stale, err := locker.Acquire(context.Background(), "course-1", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := locker.Acquire(context.Background(), "course-1", time.Minute)
	require.NoError(t, err)

	stale()
	_, err = locker.Acquire(context.Background(), "course-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld, "stale release must not drop the new holder")
	fresh()
}
