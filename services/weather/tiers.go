package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/sony/gobreaker"
)

// Tier is one provider endpoint in the forecast fallback order.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, loc models.Location) (*models.Payload, error)
}

// ErrNoCoordinates is returned by tiers that only accept lat/lon.
var ErrNoCoordinates = errors.New("location has no coordinates")

// InvalidPayloadError marks a 2xx response whose body cannot be used.
type InvalidPayloadError struct {
	Tier string
	Err  error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("tier %s returned invalid data: %v", e.Tier, e.Err)
}

func (e *InvalidPayloadError) Unwrap() error { return e.Err }

type endpointTier struct {
	name        string
	kind        models.PayloadKind
	path        string
	needsCoords bool
	params      func(loc models.Location) url.Values
	client      *Client
	breaker     *gobreaker.CircuitBreaker
}

func (t *endpointTier) Name() string { return t.name }

func (t *endpointTier) Fetch(ctx context.Context, loc models.Location) (*models.Payload, error) {
	if t.needsCoords && !loc.HasCoordinates() {
		return nil, ErrNoCoordinates
	}

	target := t.client.endpoint(t.path, t.params(loc))
	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.http.Do(ctx, target, nil)
	})
	if err != nil {
		return nil, err
	}

	body := out.([]byte)
	if err := checkShape(t.kind, body); err != nil {
		return nil, &InvalidPayloadError{Tier: t.name, Err: err}
	}
	return &models.Payload{Kind: t.kind, Tier: t.name, Units: t.client.opts.Units, Body: body}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// buildTiers returns the forecast tiers in priority order. The 5-day/3-hour
// endpoint is always present; the others depend on configuration.
func (c *Client) buildTiers() []Tier {
	days := c.opts.ForecastDays

	tiers := []Tier{&endpointTier{
		name: models.TierForecast5Day,
		kind: models.KindForecast3h,
		path: "/data/2.5/forecast",
		params: func(loc models.Location) url.Values {
			v := locationParams(loc)
			v.Set("cnt", strconv.Itoa(min(days*8, 40)))
			return v
		},
	}}

	oneCall := func(loc models.Location) url.Values {
		v := locationParams(loc)
		v.Set("exclude", "minutely,alerts")
		return v
	}
	if c.opts.UseOneCallV3 {
		tiers = append(tiers, &endpointTier{
			name: models.TierOneCallV3, kind: models.KindOneCall,
			path: "/data/3.0/onecall", needsCoords: true, params: oneCall,
		})
	}
	if c.opts.UseOneCallV25 {
		tiers = append(tiers, &endpointTier{
			name: models.TierOneCallV25, kind: models.KindOneCall,
			path: "/data/2.5/onecall", needsCoords: true, params: oneCall,
		})
	}
	if c.opts.UseDailyForecast {
		tiers = append(tiers, &endpointTier{
			name: models.TierDailyForecast,
			kind: models.KindDaily,
			path: "/data/2.5/forecast/daily",
			params: func(loc models.Location) url.Values {
				v := locationParams(loc)
				v.Set("cnt", strconv.Itoa(max(1, min(days, 16))))
				return v
			},
		})
	}

	for _, t := range tiers {
		et := t.(*endpointTier)
		et.client = c
		et.breaker = newBreaker(et.name)
	}
	return tiers
}

func locationParams(loc models.Location) url.Values {
	v := url.Values{}
	if loc.HasCoordinates() {
		v.Set("lat", strconv.FormatFloat(*loc.Lat, 'f', -1, 64))
		v.Set("lon", strconv.FormatFloat(*loc.Lon, 'f', -1, 64))
		return v
	}
	v.Set("q", loc.Query())
	return v
}
