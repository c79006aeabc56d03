package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "reaper")
	require.NoError(t, err)
	require.True(t, ok)

	// Held
	_, ok, err = l.TryLock(ctx, "reaper")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys are independent
	other, ok, err := l.TryLock(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
	other()

	unlock()
	unlock() // second call is a no-op

	again, ok, err := l.TryLock(ctx, "reaper")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestLocal_SingleWinner(t *testing.T) {
	l := NewLocal()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := l.TryLock(context.Background(), "reaper"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis("", 0, nil)
	require.Error(t, err)
}
