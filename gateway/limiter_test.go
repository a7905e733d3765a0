package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenWait(t *testing.T) {
	l := NewTokenBucketLimiter(1, 2)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(short), context.DeadlineExceeded)
}

func TestTokenBucketRefills(t *testing.T) {
	l := NewTokenBucketLimiter(10, 1)
	base := time.Unix(0, 0)
	l.now = func() time.Time { return base }
	l.last = base
	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, 0, l.Available())

	l.now = func() time.Time { return base.Add(150 * time.Millisecond) }
	assert.Equal(t, 1, l.Available())
}
