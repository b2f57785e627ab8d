package workpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/channels"
	"github.com/AbdulWasayUl/go-weather-etl/internal/workpool"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timeout waiting for runs to complete")
	}
}

func TestWorkerPool_New(t *testing.T) {
	ch := channels.New()

	wp := workpool.New(ch, 3)
	require.NotNil(t, wp)
	assert.Equal(t, 3, wp.WorkerCount)
	assert.Same(t, ch, wp.Channels)

	assert.Equal(t, 1, workpool.New(ch, 0).WorkerCount)
}

func TestWorkerPool_SingleRun(t *testing.T) {
	ch := channels.New()
	wp := workpool.New(ch, 1)
	wp.Start(context.Background())
	defer wp.Stop()

	var got models.Location
	ch.Submit(models.RunRequest{
		Service:  "etl",
		ID:       "run-1",
		Location: models.DefaultLocation(),
		RunFunc: func(ctx context.Context, loc models.Location) error {
			got = loc
			return nil
		},
	})

	waitFor(t, ch.WG, 2*time.Second)
	assert.Equal(t, models.DefaultLocation(), got)
}

func TestWorkerPool_ConcurrencyIsBounded(t *testing.T) {
	const workers, runs = 2, 6

	ch := channels.New()
	wp := workpool.New(ch, workers)
	wp.Start(context.Background())
	defer wp.Stop()

	var running, peak, completed atomic.Int32
	for i := 0; i < runs; i++ {
		ch.Submit(models.RunRequest{
			ID: "run",
			RunFunc: func(ctx context.Context, loc models.Location) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				completed.Add(1)
				return nil
			},
		})
	}

	waitFor(t, ch.WG, 3*time.Second)
	assert.EqualValues(t, runs, completed.Load())
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestWorkerPool_FailedRunDoesNotStopWorker(t *testing.T) {
	ch := channels.New()
	wp := workpool.New(ch, 1)
	wp.Start(context.Background())
	defer wp.Stop()

	var second atomic.Bool
	ch.Submit(models.RunRequest{ID: "bad", RunFunc: func(ctx context.Context, loc models.Location) error {
		return errors.New("source unavailable")
	}})
	ch.Submit(models.RunRequest{ID: "good", RunFunc: func(ctx context.Context, loc models.Location) error {
		second.Store(true)
		return nil
	}})

	waitFor(t, ch.WG, 2*time.Second)
	assert.True(t, second.Load())
}

func TestWorkerPool_CancelDoesNotInterruptRun(t *testing.T) {
	ch := channels.New()
	wp := workpool.New(ch, 1)

	ctx, cancel := context.WithCancel(context.Background())
	wp.Start(ctx)
	defer wp.Stop()

	started := make(chan struct{})
	var cancelled atomic.Bool
	ch.Submit(models.RunRequest{ID: "long", RunFunc: func(runCtx context.Context, loc models.Location) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		cancelled.Store(runCtx.Err() != nil)
		return nil
	}})

	<-started
	cancel()
	waitFor(t, ch.WG, 2*time.Second)
	assert.False(t, cancelled.Load())
}

func TestWorkerPool_StopDrainsQueue(t *testing.T) {
	ch := channels.New()
	wp := workpool.New(ch, 1)

	var completed atomic.Int32
	for i := 0; i < 3; i++ {
		ch.Submit(models.RunRequest{ID: "queued", RunFunc: func(ctx context.Context, loc models.Location) error {
			completed.Add(1)
			return nil
		}})
	}

	wp.Start(context.Background())
	wp.Stop()

	waitFor(t, ch.WG, 2*time.Second)
	assert.EqualValues(t, 3, completed.Load())
}

func TestWorkerPool_NoJobs(t *testing.T) {
	ch := channels.New()
	wp := workpool.New(ch, 2)

	wp.Start(context.Background())
	wp.Stop()

	// WG.Wait should return immediately with no jobs
	waitFor(t, ch.WG, 2*time.Second)
}
