package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectsErrorsByIndex(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")

	errs := p.Run(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
		func(context.Context) error { panic("bad lookup") },
		nil,
	)

	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.ErrorContains(t, errs[2], "panicked")
	assert.NoError(t, errs[3])
}

func TestRunBoundsConcurrencyAndRunsInlineWhenFull(t *testing.T) {
	p := New(2)
	var running, peak int32
	var mu sync.Mutex
	seen := map[int]bool{}

	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			defer atomic.AddInt32(&running, -1)
			for {
				cur := atomic.LoadInt32(&peak)
				if n <= cur || atomic.CompareAndSwapInt32(&peak, cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		}
	}

	errs := p.Run(context.Background(), tasks...)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, seen, 6)
	// two pooled workers plus the submitting goroutine
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunSkipsTasksWhenContextDone(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	errs := p.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestNewDefaultsSize(t *testing.T) {
	assert.Equal(t, defaultSize, New(0).Size())
	assert.Equal(t, 8, New(8).Size())
}
