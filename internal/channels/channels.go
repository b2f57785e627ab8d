package channels

import (
	"sync"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const bufferSize = 100

type Channels struct {
	RunRequest chan models.RunRequest
	WG         *sync.WaitGroup
}

func New() *Channels {
	return &Channels{
		RunRequest: make(chan models.RunRequest, bufferSize),
		WG:         &sync.WaitGroup{},
	}
}

// Submit queues a run. The WaitGroup is incremented here, before the send,
// so WG.Wait covers runs that are queued but not yet picked up.
func (c *Channels) Submit(req models.RunRequest) {
	c.WG.Add(1)
	c.RunRequest <- req
}
