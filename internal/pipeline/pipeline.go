// Package pipeline runs Extract, Transform and Load for one location and
// reports what happened as a RunSummary.
package pipeline

import (
	"context"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/extract"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/internal/transform"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/google/uuid"
)

type State string

const (
	StatePending      State = "PENDING"
	StateExtracting   State = "EXTRACTING"
	StateTransforming State = "TRANSFORMING"
	StateLoading      State = "LOADING"
	StateSucceeded    State = "SUCCEEDED"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var next = map[State]State{
	StatePending:      StateExtracting,
	StateExtracting:   StateTransforming,
	StateTransforming: StateLoading,
	StateLoading:      StateSucceeded,
}

type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

type Loader interface {
	LoadUnit(ctx context.Context, unit models.Unit) (*store.LoadResult, error)
	RecomputeStats(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyStats, error)
}

// RunSummary is the record of one run. On failure FailedStage is the state
// the run was in and Error holds the typed error's message.
type RunSummary struct {
	RunID       string                  `json:"run_id"`
	Location    string                  `json:"location"`
	Mode        extract.Mode            `json:"mode"`
	State       State                   `json:"state"`
	FailedStage State                   `json:"failed_stage,omitempty"`
	ErrorKind   etlerr.Stage            `json:"error_kind,omitempty"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Durations   map[State]time.Duration `json:"durations"`
	ArtifactRef string                  `json:"artifact_ref,omitempty"`
	Tier        string                  `json:"tier,omitempty"`
	Bytes       int                     `json:"bytes"`
	LocationID  int64                   `json:"location_id,omitempty"`
	Load        *store.LoadResult       `json:"load,omitempty"`
	DailyDays   int                     `json:"daily_days"`
	StatsDays   int                     `json:"stats_days"`
	Warnings    []string                `json:"warnings,omitempty"`
	Transitions []State                 `json:"transitions"`

	err error
}

// Err returns the typed error of a failed run, or nil.
func (s *RunSummary) Err() error { return s.err }

func (s *RunSummary) Succeeded() bool { return s.State == StateSucceeded }

type Orchestrator struct {
	extractor   Extractor
	loader      Loader
	now         func() time.Time
	newID       func() string
	rollup      bool
	loadRetries int
	log         *logger.Logger
}

func New(extractor Extractor, loader Loader) *Orchestrator {
	return &Orchestrator{
		extractor:   extractor,
		loader:      loader,
		now:         time.Now,
		newID:       uuid.NewString,
		rollup:      true,
		loadRetries: 1,
		log:         logger.Component("pipeline"),
	}
}

// WithRollup turns the weather_stats refresh after a load on or off.
func (o *Orchestrator) WithRollup(enabled bool) *Orchestrator {
	o.rollup = enabled
	return o
}

// WithLoadRetries sets how many times a unit that lost a deadlock is loaded
// again. Other load failures are final.
func (o *Orchestrator) WithLoadRetries(n int) *Orchestrator {
	o.loadRetries = n
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes one full run. It never returns an error; failures are in the
// summary, and Err exposes the typed error.
func (o *Orchestrator) Run(ctx context.Context, req extract.Request) *RunSummary {
	sum := &RunSummary{
		RunID:       o.newID(),
		Location:    req.Location.String(),
		Mode:        req.Mode,
		State:       StatePending,
		StartedAt:   o.now().UTC(),
		Durations:   make(map[State]time.Duration, 3),
		Transitions: []State{StatePending},
	}
	if sum.Mode == "" {
		sum.Mode = extract.ModeLive
	}
	o.log.Info("Run %s for %s started (%s)", sum.RunID, sum.Location, sum.Mode)

	o.advance(sum)
	res, err := timed(o, sum, func() (*extract.Result, error) { return o.extractor.Extract(ctx, req) })
	if err != nil {
		return o.fail(sum, err)
	}
	sum.ArtifactRef, sum.Tier, sum.Bytes = res.Metadata.Ref, res.Metadata.Tier, res.Metadata.Bytes

	o.advance(sum)
	out, err := timed(o, sum, func() (*transform.Result, error) { return transform.Artifact(res.Artifact) })
	if err != nil {
		return o.fail(sum, err)
	}
	sum.DailyDays = len(out.Daily)

	o.advance(sum)
	loaded, err := timed(o, sum, func() (*store.LoadResult, error) { return o.load(ctx, sum, out.Unit) })
	if err != nil {
		return o.fail(sum, err)
	}
	sum.Load, sum.LocationID = loaded, loaded.LocationID

	if o.rollup && out.Unit.Observation != nil {
		day := out.Unit.Observation.ObservedAt
		stats, err := o.loader.RecomputeStats(ctx, loaded.LocationID, day, day)
		if err != nil {
			// The rollup is a cache; the load already committed.
			o.warn(sum, "stats rollup failed: "+err.Error())
		} else {
			sum.StatsDays = len(stats)
		}
	}

	o.advance(sum)
	sum.FinishedAt = o.now().UTC()
	o.log.Info("Run %s for %s succeeded: artifact=%s tier=%s", sum.RunID, sum.Location, sum.ArtifactRef, sum.Tier)
	return sum
}

// Replay reruns Transform and Load from a saved artifact.
func (o *Orchestrator) Replay(ctx context.Context, loc models.Location, ref string) *RunSummary {
	return o.Run(ctx, extract.Request{Location: loc, Mode: extract.ModeReplay, Ref: ref})
}

func (o *Orchestrator) load(ctx context.Context, sum *RunSummary, unit models.Unit) (*store.LoadResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := o.loader.LoadUnit(ctx, unit)
		if err == nil || attempt >= o.loadRetries || !store.IsDeadlock(err) {
			return res, err
		}
		o.warn(sum, "load lost a deadlock, retrying unit: "+err.Error())
	}
}

// timed runs one stage and records its duration under the current state.
func timed[T any](o *Orchestrator, sum *RunSummary, stage func() (T, error)) (T, error) {
	start := o.now()
	v, err := stage()
	sum.Durations[sum.State] = o.now().Sub(start)
	return v, err
}

func (o *Orchestrator) advance(sum *RunSummary) {
	to, ok := next[sum.State]
	if !ok {
		panic("pipeline: no transition from " + string(sum.State))
	}
	o.log.Debug("Run %s: %s -> %s", sum.RunID, sum.State, to)
	sum.State = to
	sum.Transitions = append(sum.Transitions, to)
}

func (o *Orchestrator) fail(sum *RunSummary, err error) *RunSummary {
	sum.FailedStage = sum.State
	sum.ErrorKind = etlerr.StageOf(err)
	sum.Error = err.Error()
	sum.err = err
	sum.State = StateFailed
	sum.Transitions = append(sum.Transitions, StateFailed)
	sum.FinishedAt = o.now().UTC()
	o.log.Error("Run %s for %s failed during %s: %v", sum.RunID, sum.Location, sum.FailedStage, err)
	return sum
}

func (o *Orchestrator) warn(sum *RunSummary, msg string) {
	sum.Warnings = append(sum.Warnings, msg)
	o.log.Warn("Run %s: %s", sum.RunID, msg)
}
