// Package extract produces raw payload artifacts for a pipeline run and
// backs every one of them up before anything downstream touches it.
package extract

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/backup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/AbdulWasayUl/go-weather-etl/services/weather"
)

type Mode string

const (
	ModeLive   Mode = "api"
	ModeFile   Mode = "file"
	ModeURL    Mode = "url"
	ModeReplay Mode = "replay"
)

// Source is the weather source client.
type Source interface {
	Fetch(ctx context.Context, loc models.Location, withForecast bool) (*models.Fetched, error)
}

// URLFetcher downloads a raw body; *api.Client satisfies it.
type URLFetcher interface {
	Do(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

type Request struct {
	Location     models.Location
	Mode         Mode
	Path         string
	URL          string
	Ref          string
	WithForecast bool
}

type Metadata struct {
	Mode        Mode          `json:"mode"`
	Tier        string        `json:"tier"`
	Ref         string        `json:"ref"`
	CollectedAt time.Time     `json:"collected_at"`
	Duration    time.Duration `json:"duration"`
	Bytes       int           `json:"bytes"`
}

type Result struct {
	Artifact *backup.Artifact
	Metadata Metadata
}

type Extractor struct {
	source  Source
	fetcher URLFetcher
	store   backup.Store
	now     func() time.Time
	log     *logger.Logger
}

func New(source Source, fetcher URLFetcher, store backup.Store) *Extractor {
	return &Extractor{
		source:  source,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
		log:     logger.Component("etl.extract"),
	}
}

// WithClock replaces the collection clock, for tests.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract fetches or reads the raw payloads for one run. Payloads that did
// not come from an existing artifact are saved to the backup store before
// the result is returned; a failed save fails the extraction.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.Mode == "" {
		req.Mode = ModeLive
	}

	var (
		artifact *backup.Artifact
		err      error
		saved    bool
	)
	switch req.Mode {
	case ModeLive:
		artifact, err = e.fromSource(ctx, req)
	case ModeFile:
		artifact, saved, err = e.fromFile(req)
	case ModeURL:
		artifact, err = e.fromURL(ctx, req)
	case ModeReplay:
		artifact, err = e.store.Load(ctx, req.Ref)
		if err != nil {
			err = &etlerr.ExtractionError{Op: "replay", Err: err}
		}
		saved = true
	default:
		err = &etlerr.ExtractionError{Op: "extract", Err: fmt.Errorf("unknown source mode %q", req.Mode)}
	}
	if err != nil {
		e.log.Error("Extraction for %s failed: %v", req.Location, err)
		return nil, err
	}

	if !saved {
		if _, err := e.store.Save(ctx, artifact); err != nil {
			e.log.Error("Backup for %s failed: %v", artifact.Location, err)
			return nil, &etlerr.ExtractionError{Op: "backup", Err: err}
		}
	}

	res := &Result{
		Artifact: artifact,
		Metadata: Metadata{
			Mode:        req.Mode,
			Tier:        tierOf(artifact),
			Ref:         artifact.Ref,
			CollectedAt: artifact.CollectedAt,
			Duration:    time.Since(start),
			Bytes:       artifact.Size(),
		},
	}
	e.log.Info("Extracted %d bytes for %s via %s (tier %s) in %s, backup %s",
		res.Metadata.Bytes, artifact.Location, req.Mode, res.Metadata.Tier, res.Metadata.Duration, artifact.Ref)
	return res, nil
}

func (e *Extractor) collectedAt() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

func (e *Extractor) fromSource(ctx context.Context, req Request) (*backup.Artifact, error) {
	if e.source == nil {
		return nil, &etlerr.ExtractionError{Op: "fetch", Err: fmt.Errorf("no weather source configured")}
	}
	fetched, err := e.source.Fetch(ctx, req.Location, req.WithForecast)
	if err != nil {
		return nil, &etlerr.ExtractionError{Op: "fetch", Err: err}
	}
	return &backup.Artifact{
		Location:    fetched.Location,
		CollectedAt: e.collectedAt(),
		Current:     fetched.Current,
		Forecast:    fetched.Forecast,
	}, nil
}

// fromFile reads either a saved artifact directory, which needs no new
// backup, or a single raw provider body.
func (e *Extractor) fromFile(req Request) (*backup.Artifact, bool, error) {
	if backup.IsArtifactDir(req.Path) {
		a, err := backup.LoadDir(req.Path)
		if err != nil {
			return nil, false, &etlerr.ExtractionError{Op: "read file", Err: err}
		}
		return a, true, nil
	}

	body, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, false, &etlerr.ExtractionError{Op: "read file", Err: err}
	}
	a, err := e.rawArtifact(req.Location, models.TierFile, body)
	return a, false, err
}

func (e *Extractor) fromURL(ctx context.Context, req Request) (*backup.Artifact, error) {
	if e.fetcher == nil {
		return nil, &etlerr.ExtractionError{Op: "fetch url", Err: fmt.Errorf("no HTTP client configured")}
	}
	body, err := e.fetcher.Do(ctx, req.URL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, &etlerr.ExtractionError{Op: "fetch url", Err: err}
	}
	return e.rawArtifact(req.Location, models.TierURL, body)
}

func (e *Extractor) rawArtifact(loc models.Location, tier string, body []byte) (*backup.Artifact, error) {
	kind, err := weather.DetectKind(body)
	if err != nil {
		return nil, &etlerr.ExtractionError{Op: "detect payload", Err: err}
	}

	a := &backup.Artifact{Location: loc, CollectedAt: e.collectedAt()}
	p := &models.Payload{Kind: kind, Tier: tier, Body: body}
	if kind == models.KindCurrent {
		a.Current = p
	} else {
		a.Forecast = p
	}
	return a, nil
}

func tierOf(a *backup.Artifact) string {
	if a.Forecast != nil {
		return a.Forecast.Tier
	}
	if a.Current != nil {
		return a.Current.Tier
	}
	return ""
}
