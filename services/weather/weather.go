package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/api"
	"github.com/AbdulWasayUl/go-weather-etl/internal/config"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/sony/gobreaker"
)

type Options struct {
	BaseURL          string
	APIKey           string
	Units            models.Units
	UseOneCallV3     bool
	UseOneCallV25    bool
	UseDailyForecast bool
	ForecastDays     int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:          cfg.OpenWeatherBaseURL,
		APIKey:           cfg.OpenWeatherAPIKey,
		Units:            cfg.Units,
		UseOneCallV3:     cfg.UseOneCallV3,
		UseOneCallV25:    cfg.UseOneCallV25,
		UseDailyForecast: cfg.UseDailyForecast,
		ForecastDays:     cfg.ForecastDays,
	}
}

// Client is the weather source client. Current conditions come from a single
// endpoint; forecasts walk the tier list until one tier returns usable data.
type Client struct {
	opts    Options
	http    *api.Client
	current Tier
	tiers   []Tier
	log     *logger.Logger
}

// NewClient checks credentials and settings before any request is made.
func NewClient(opts Options, httpClient *api.Client) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &etlerr.ConfigurationError{Setting: "OPENWEATHERMAP_API_KEY", Msg: "is required"}
	}
	if u, err := url.Parse(opts.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &etlerr.ConfigurationError{Setting: "OPENWEATHERMAP_BASE_URL", Msg: fmt.Sprintf("invalid URL %q", opts.BaseURL)}
	}
	if opts.Units == "" {
		opts.Units = models.UnitsStandard
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = 5
	}
	if httpClient == nil {
		httpClient = api.NewClient(api.Options{})
	}

	c := &Client{
		opts: opts,
		http: httpClient,
		log:  logger.Component("source"),
	}
	c.current = &endpointTier{
		name:    models.TierCurrent,
		kind:    models.KindCurrent,
		path:    "/data/2.5/weather",
		params:  locationParams,
		client:  c,
		breaker: newBreaker(models.TierCurrent),
	}
	c.tiers = c.buildTiers()
	return c, nil
}

// TierNames lists the enabled forecast tiers in the order they are tried.
func (c *Client) TierNames() []string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name()
	}
	return names
}

// Fetch returns current conditions and, when withForecast is set, a forecast
// from the first tier that succeeds.
func (c *Client) Fetch(ctx context.Context, loc models.Location, withForecast bool) (*models.Fetched, error) {
	start := time.Now()

	if !loc.HasCoordinates() {
		resolved, err := c.Geocode(ctx, loc)
		if err != nil {
			c.log.Warn("Geocoding %s failed, falling back to query lookups: %v", loc, err)
		} else {
			loc = resolved
		}
	}

	current, err := c.FetchCurrent(ctx, loc)
	if err != nil {
		return nil, err
	}
	if !loc.HasCoordinates() {
		loc = withPayloadCoordinates(loc, current.Body)
	}

	fetched := &models.Fetched{Location: loc, Current: current}
	if withForecast {
		forecast, err := c.FetchForecast(ctx, loc)
		if err != nil {
			return nil, err
		}
		fetched.Forecast = forecast
	}
	fetched.Duration = time.Since(start)
	return fetched, nil
}

func (c *Client) FetchCurrent(ctx context.Context, loc models.Location) (*models.Payload, error) {
	p, err := c.current.Fetch(ctx, loc)
	if err != nil {
		return nil, &etlerr.SourceUnavailableError{
			Reason:   reasonFor(err),
			Attempts: []etlerr.TierAttempt{{Tier: models.TierCurrent, Reached: reached(err), Err: err}},
		}
	}
	return p, nil
}

// FetchForecast tries each enabled tier in order. A failing tier is logged
// and skipped; only total exhaustion is returned as an error.
func (c *Client) FetchForecast(ctx context.Context, loc models.Location) (*models.Payload, error) {
	var attempts []etlerr.TierAttempt
	for _, tier := range c.tiers {
		p, err := tier.Fetch(ctx, loc)
		if err == nil {
			if len(attempts) > 0 {
				c.log.Info("Forecast for %s served by fallback tier %s", loc, tier.Name())
			}
			return p, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("circuit open: %w", err)
		}
		attempts = append(attempts, etlerr.TierAttempt{Tier: tier.Name(), Reached: reached(err), Err: err})
		c.log.Warn("Forecast tier %s failed for %s: %v", tier.Name(), loc, err)

		if ctx.Err() != nil {
			break
		}
	}

	reason := etlerr.ReasonUnreachable
	for _, a := range attempts {
		if a.Reached {
			reason = etlerr.ReasonInvalidData
		}
	}
	return nil, &etlerr.SourceUnavailableError{Reason: reason, Attempts: attempts}
}

// Geocode resolves coordinates for a location through the direct geocoding API.
func (c *Client) Geocode(ctx context.Context, loc models.Location) (models.Location, error) {
	v := url.Values{}
	v.Set("q", loc.Query())
	v.Set("limit", "1")

	body, err := c.http.Do(ctx, c.endpoint("/geo/1.0/direct", v), nil)
	if err != nil {
		return loc, err
	}

	var results []GeoResult
	if err := json.Unmarshal(body, &results); err != nil {
		return loc, fmt.Errorf("malformed geocoding response: %w", err)
	}
	if len(results) == 0 {
		return loc, fmt.Errorf("no geocoding result for %q", loc.Query())
	}

	lat, lon := results[0].Lat, results[0].Lon
	loc.Lat, loc.Lon = &lat, &lon
	c.log.Debug("Geocoded %s to %.4f,%.4f", loc, lat, lon)
	return loc, nil
}

func (c *Client) endpoint(path string, v url.Values) string {
	v.Set("units", string(c.opts.Units))
	v.Set("appid", c.opts.APIKey)
	return strings.TrimRight(c.opts.BaseURL, "/") + path + "?" + v.Encode()
}

func withPayloadCoordinates(loc models.Location, body []byte) models.Location {
	var resp CurrentResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Coord == nil {
		return loc
	}
	if resp.Coord.Lat != nil && resp.Coord.Lon != nil {
		loc.Lat, loc.Lon = resp.Coord.Lat, resp.Coord.Lon
	}
	return loc
}

func reached(err error) bool {
	var invalid *InvalidPayloadError
	return errors.As(err, &invalid)
}

func reasonFor(err error) etlerr.Reason {
	if reached(err) {
		return etlerr.ReasonInvalidData
	}
	return etlerr.ReasonUnreachable
}
