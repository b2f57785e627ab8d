package workpool

import (
	"context"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/channels"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

// WorkerPool runs pipeline runs concurrently, one run per worker at a time.
type WorkerPool struct {
	WorkerCount int
	Channels    *channels.Channels
}

func New(channels *channels.Channels, workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		WorkerCount: workerCount,
		Channels:    channels,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.WorkerCount; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logger.Info("Worker %d started.", id)
	for req := range wp.Channels.RunRequest {
		wp.run(ctx, id, req)
	}
	logger.Info("Worker %d stopped.", id)
}

// run executes one request. A started run is not cut short when ctx is
// cancelled; outbound calls carry their own timeouts.
func (wp *WorkerPool) run(ctx context.Context, id int, req models.RunRequest) {
	defer wp.Channels.WG.Done()

	start := time.Now()
	logger.Info("[%s] Worker %d processing run %s for %s", req.Service, id, req.ID, req.Location)

	if err := req.RunFunc(context.WithoutCancel(ctx), req.Location); err != nil {
		logger.Error("[%s] Worker %d run %s for %s failed: %v", req.Service, id, req.ID, req.Location, err)
		return
	}

	logger.Info("[%s] Worker %d completed run %s for %s in %s", req.Service, id, req.ID, req.Location, time.Since(start))
}

// Stop closes the queue. Workers drain what is already queued; use
// Channels.WG.Wait to wait for them.
func (wp *WorkerPool) Stop() {
	close(wp.Channels.RunRequest)
}
