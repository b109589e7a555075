package pace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedWhenRPSNonPositive(t *testing.T) {
	l := New(Config{DefaultRPS: 0})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://api.lokamc.com/players"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitThrottlesBeyondBurst(t *testing.T) {
	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://api.lokamc.com/players"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://api.lokamc.com/players"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitSeparateHostsSeparateBuckets(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/x"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example.com/x"))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "second host does not wait on the first host's bucket")
}

func TestWaitCanceledContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://a.example.com/x")
	require.Error(t, err)
}

func TestWaitUnparseableURLUsesFallbackBucket(t *testing.T) {
	l := New(Config{DefaultRPS: 0})
	require.NoError(t, l.Wait(context.Background(), "::not a url::"))
}
