package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLockRequests(t *testing.T) {
	got := normalize([]LockRequest{
		{Key: "lab/people"},
		{Key: "lab/", Shared: true},
		{Key: "lab/people", Shared: true},
		{Key: "lab/", Shared: true},
		{Key: "ab/"},
	})
	assert.Equal(t, []LockRequest{
		{Key: "ab/"},
		{Key: "lab/", Shared: true},
		{Key: "lab/people"},
	}, got)
}

// lockWithin reports whether Lock succeeds before d. A late grant is
// released as soon as it arrives.
func lockWithin(t *testing.T, l Locker, d time.Duration, reqs ...LockRequest) bool {
	t.Helper()
	granted := make(chan func(), 1)
	go func() {
		release, err := l.Lock(context.Background(), reqs...)
		assert.NoError(t, err)
		granted <- release
	}()
	select {
	case release := <-granted:
		release()
		return true
	case <-time.After(d):
		go func() { (<-granted)() }()
		return false
	}
}

func TestKeyedLockerSharedAndExclusive(t *testing.T) {
	l := NewKeyedLocker(nil)

	release, err := l.Lock(context.Background(), entityLocks("lab", "people")...)
	require.NoError(t, err)

	assert.True(t, lockWithin(t, l, time.Second, entityLocks("lab", "knows")...),
		"entities of one workspace do not exclude each other")
	assert.False(t, lockWithin(t, l, 50*time.Millisecond, entityLocks("lab", "people")...),
		"the same entity is exclusive")
	assert.False(t, lockWithin(t, l, 50*time.Millisecond, workspaceLock("lab")),
		"workspace operations wait for entity operations")
	assert.True(t, lockWithin(t, l, time.Second, workspaceLock("other")))

	release()
	assert.True(t, lockWithin(t, l, time.Second, workspaceLock("lab")))
}
