package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, queue int) (*Loop, context.CancelFunc) {
	t.Helper()
	l := NewLoop(queue, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l, cancel
}

func TestLoop_RunsJobsOneAtATime(t *testing.T) {
	l, _ := startLoop(t, 16)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func() {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLoop_PreservesSubmissionOrder(t *testing.T) {
	l, _ := startLoop(t, 0)

	var order []int
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Do(context.Background(), func() { order = append(order, i) }))
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoop_SurvivesPanics(t *testing.T) {
	l, _ := startLoop(t, 1)

	_ = l.Do(context.Background(), func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))

	assert.True(t, ran)
}

func TestLoop_StoppedAndCancelled(t *testing.T) {
	l, cancel := startLoop(t, 0)

	ctx, cancelCall := context.WithCancel(context.Background())
	cancelCall()
	block := make(chan struct{})
	started := make(chan struct{})
	l.Go(func() {
		close(started)
		<-block
	})
	<-started
	err := l.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)
	close(block)

	cancel()
	assert.Eventually(t, func() bool {
		return l.Do(context.Background(), func() {}) == ErrStopped
	}, time.Second, 5*time.Millisecond)
}
