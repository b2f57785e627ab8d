package models

import (
	"context"
	"time"
)

// RunRequest is one unit of work submitted to the worker pool: a single
// pipeline run for a single location.
type RunRequest struct {
	ID       string
	Service  string
	Location Location
	RunFunc  func(ctx context.Context, loc Location) error
}

type RateLimitSettings struct {
	MaxRequests int
	PerDuration time.Duration
}

// Migration is a named, ordered set of schema statements applied once.
type Migration struct {
	Name       string
	Statements []string
}
