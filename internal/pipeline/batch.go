package pipeline

import (
	"context"
	"sync"

	"github.com/AbdulWasayUl/go-weather-etl/internal/channels"
	"github.com/AbdulWasayUl/go-weather-etl/internal/extract"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const serviceName = "weather-etl"

// Batch queues one live run per tracked location and keeps the latest
// summary for each of them.
type Batch struct {
	orch         *Orchestrator
	locations    []models.Location
	withForecast bool

	mu   sync.RWMutex
	last map[string]*RunSummary
}

func NewBatch(orch *Orchestrator, locations []models.Location, withForecast bool) *Batch {
	return &Batch{
		orch:         orch,
		locations:    locations,
		withForecast: withForecast,
		last:         make(map[string]*RunSummary, len(locations)),
	}
}

func (b *Batch) Name() string { return serviceName }

func (b *Batch) RunBatchJob(ctx context.Context, chans *channels.Channels) error {
	for _, loc := range b.locations {
		chans.Submit(models.RunRequest{
			ID:       loc.Key(),
			Service:  serviceName,
			Location: loc,
			RunFunc:  b.run,
		})
	}
	return nil
}

func (b *Batch) run(ctx context.Context, loc models.Location) error {
	sum := b.orch.Run(ctx, extract.Request{Location: loc, Mode: extract.ModeLive, WithForecast: b.withForecast})

	b.mu.Lock()
	b.last[loc.Key()] = sum
	b.mu.Unlock()
	return sum.Err()
}

// LastRuns returns the most recent summary per location key.
func (b *Batch) LastRuns() map[string]*RunSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]*RunSummary, len(b.last))
	for k, v := range b.last {
		out[k] = v
	}
	return out
}
