package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SerializesSameKey(t *testing.T) {
	km := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(context.Background(), "acct-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Len(), "entries should be released once idle")
}

func TestAcquire_DifferentKeysDoNotBlock(t *testing.T) {
	km := New()
	releaseA, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, err := km.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestAcquire_ContextTimeout(t *testing.T) {
	km := New()
	release, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = km.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, km.Len(), "abandoned waiter must not leak its reference")
}

func TestAcquire_CanceledBeforeWait(t *testing.T) {
	km := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := km.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, km.Len())
}

func TestRelease_Idempotent(t *testing.T) {
	km := New()
	release, err := km.Acquire(context.Background(), "a")
	require.NoError(t, err)

	release()
	release()

	assert.Equal(t, 0, km.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	again, err := km.Acquire(ctx, "a")
	require.NoError(t, err, "a double release must not leave the key held")
	again()
}
