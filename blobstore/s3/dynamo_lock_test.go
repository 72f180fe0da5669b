package s3

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton/lock"
)

func TestDynamoLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	a := NewDynamoLock(ddb, "acton-locks", "bucket/iris.acton", WithOwner("a"))
	b := NewDynamoLock(ddb, "acton-locks", "bucket/iris.acton", WithOwner("b"))
	assert.Equal(t, "a", a.owner)

	require.NoError(t, a.Lock(ctx))
	require.ErrorIs(t, b.Lock(ctx), lock.ErrLocked)
	require.ErrorIs(t, a.Lock(ctx), lock.ErrLocked)

	require.NoError(t, a.Unlock(ctx))
	require.NoError(t, a.Unlock(ctx))
	require.NoError(t, b.Lock(ctx))
	require.NoError(t, b.Unlock(ctx))
}

func TestDynamoLock_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	now := time.Unix(1_700_000_000, 0)

	a := NewDynamoLock(ddb, "t", "k", WithOwner("a"), WithLeaseDuration(time.Minute),
		WithClock(func() time.Time { return now }))
	require.NoError(t, a.Lock(ctx))

	later := now.Add(2 * time.Minute)
	b := NewDynamoLock(ddb, "t", "k", WithOwner("b"), WithClock(func() time.Time { return later }))
	require.NoError(t, b.Lock(ctx))

	require.ErrorIs(t, a.Unlock(ctx), ErrLeaseLost)
	require.NoError(t, b.Unlock(ctx))
}

func TestDynamoLock_DistinctKeys(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	a := NewDynamoLock(ddb, "t", "one")
	b := NewDynamoLock(ddb, "t", "two")
	require.NoError(t, a.Lock(ctx))
	require.NoError(t, b.Lock(ctx))
	assert.NotEqual(t, a.owner, b.owner)
}
