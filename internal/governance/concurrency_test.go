package governance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyLimiter_CapsConcurrentHolders(t *testing.T) {
	l := NewConcurrencyLimiter(2)
	ctx := context.Background()

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(ctx))
			defer l.Release()

			cur := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
	assert.Equal(t, 0, l.InUse())
}

func TestConcurrencyLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewConcurrencyLimiter(1)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l.Release()
}

func TestConcurrencyLimiter_UnlimitedWhenDisabled(t *testing.T) {
	l := NewConcurrencyLimiter(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, 0, l.InUse())
}
