package worker

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

var errItem = errors.New("item failed")

func TestForEach_BoundedAndIsolated(t *testing.T) {
	var (
		inFlight int32
		peak     int32
		mu       sync.Mutex
		failed   []int
	)

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	ForEach(context.Background(), 2, items, func(_ context.Context, i int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)

		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		if i%4 == 0 {
			return errItem
		}

		return nil
	}, func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()

		assert.ErrorIs(t, err, errItem)
		failed = append(failed, i)
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.ElementsMatch(t, []int{4, 8}, failed)
}

func TestWait_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, Wait(context.Background(), 0))
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTickerLoop_RunsOnStartAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs int32

	done := make(chan error, 1)

	go func() {
		done <- TickerLoop(ctx, TickerConfig{
			Name:       "test",
			RunOnStart: true,
			Tasks: []TickerTask{
				{Name: "count", Interval: time.Hour, Run: func(context.Context) error {
					atomic.AddInt32(&runs, 1)
					return nil
				}},
				{Name: "disabled", Interval: 0, Run: func(context.Context) error {
					t.Error("disabled task ran")
					return nil
				}},
			},
		})
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ticker loop did not stop")
	}
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RunOnce(context.Background(), TickerTask{Name: "boom", Run: func(context.Context) error {
			panic("boom")
		}}, nil)
	})
}
