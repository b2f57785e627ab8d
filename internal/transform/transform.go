// Package transform turns raw provider payloads into canonical records.
// Everything here is pure: the same payload always yields the same records.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/backup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/AbdulWasayUl/go-weather-etl/services/weather"
)

type Result struct {
	Unit  models.Unit           `json:"unit"`
	Daily []models.DailySummary `json:"daily,omitempty"`
}

// LocationHints are location attributes found in payloads.
type LocationHints struct {
	name       string
	country    string
	lat, lon   *float64
	population *int64
	timezone   *string
}

func (h *LocationHints) merge(o LocationHints) {
	if h.name == "" {
		h.name = o.name
	}
	if h.country == "" {
		h.country = o.country
	}
	if h.lat == nil || h.lon == nil {
		h.lat, h.lon = o.lat, o.lon
	}
	if h.population == nil {
		h.population = o.population
	}
	if h.timezone == nil {
		h.timezone = o.timezone
	}
}

// Artifact transforms every payload of an extraction into one load unit.
// If any payload is rejected, no records are returned.
func Artifact(a *backup.Artifact) (*Result, error) {
	if a == nil || (a.Current == nil && a.Forecast == nil) {
		return nil, &etlerr.ValidationError{Missing: []string{"payload"}}
	}

	var (
		h   LocationHints
		res Result
	)
	if a.Current != nil {
		obs, ch, err := Current(a.Current)
		if err != nil {
			return nil, fmt.Errorf("current payload: %w", err)
		}
		res.Unit.Observation = obs
		h.merge(ch)
	}
	if a.Forecast != nil {
		entries, fh, err := Forecast(a.Forecast, a.CollectedAt)
		if err != nil {
			return nil, fmt.Errorf("forecast payload: %w", err)
		}
		res.Unit.Forecasts = entries
		res.Daily = rollup.DailyForecast(entries)
		h.merge(fh)
	}

	loc, err := Location(a.Location, h)
	if err != nil {
		return nil, err
	}
	res.Unit.Location = loc
	return &res, nil
}

// Location builds the location record. The configured descriptor wins over
// names found in payloads so the identity stays stable across runs.
func Location(desc models.Location, h LocationHints) (models.LocationRecord, error) {
	rec := models.LocationRecord{
		City:       desc.City,
		Country:    desc.Country,
		Latitude:   desc.Lat,
		Longitude:  desc.Lon,
		Population: h.population,
		Timezone:   h.timezone,
	}
	if rec.City == "" {
		rec.City = h.name
	}
	if rec.Country == "" {
		rec.Country = h.country
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		rec.Latitude, rec.Longitude = h.lat, h.lon
	}

	var p problems
	if rec.City == "" {
		p.missingField("location.city")
	}
	if rec.Country == "" {
		p.missingField("location.country")
	}
	if err := p.err(); err != nil {
		return models.LocationRecord{}, err
	}
	return rec, nil
}

// Current transforms a current-conditions payload into an observation.
func Current(p *models.Payload) (*models.Observation, LocationHints, error) {
	var resp weather.CurrentResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, LocationHints{}, malformed(err)
	}

	var probs problems
	probs.check("", fieldsOf(resp.Item))
	if err := probs.err(); err != nil {
		return nil, LocationHints{}, err
	}

	obs := observation(resp.Item, p.Units)
	obs.Raw = append(json.RawMessage(nil), p.Body...)

	h := LocationHints{name: resp.Name, timezone: offsetZone(resp.Timezone)}
	if resp.Sys != nil {
		h.country = resp.Sys.Country
	}
	if resp.Coord != nil {
		h.lat, h.lon = resp.Coord.Lat, resp.Coord.Lon
	}
	return obs, h, nil
}

// Forecast transforms a 3-hour, daily or OneCall payload into forecast
// entries collected at collectedAt.
func Forecast(p *models.Payload, collectedAt time.Time) ([]models.ForecastEntry, LocationHints, error) {
	var (
		items  []weather.Item
		prefix string
		h      LocationHints
	)

	switch p.Kind {
	case models.KindForecast3h, models.KindDaily:
		var resp weather.ListResponse
		if err := json.Unmarshal(p.Body, &resp); err != nil {
			return nil, LocationHints{}, malformed(err)
		}
		items, prefix = resp.List, "list"
		if c := resp.City; c != nil {
			h = LocationHints{name: c.Name, country: c.Country, population: c.Population, timezone: offsetZone(c.Timezone)}
			if c.Coord != nil {
				h.lat, h.lon = c.Coord.Lat, c.Coord.Lon
			}
		}
	case models.KindOneCall:
		var resp weather.OneCallResponse
		if err := json.Unmarshal(p.Body, &resp); err != nil {
			return nil, LocationHints{}, malformed(err)
		}
		items, prefix = resp.Daily, "daily"
		h = LocationHints{lat: resp.Lat, lon: resp.Lon}
		if resp.Timezone != "" {
			tz := resp.Timezone
			h.timezone = &tz
		} else {
			h.timezone = offsetZone(resp.TimezoneOffset)
		}
	default:
		return nil, LocationHints{}, &etlerr.ValidationError{Malformed: []string{"kind"}, Err: fmt.Errorf("unsupported payload kind %q", p.Kind)}
	}

	if len(items) == 0 {
		return nil, LocationHints{}, &etlerr.ValidationError{Missing: []string{prefix}}
	}

	var probs problems
	for i, it := range items {
		probs.check(fmt.Sprintf("%s[%d].", prefix, i), fieldsOf(it))
	}
	if err := probs.err(); err != nil {
		return nil, LocationHints{}, err
	}

	collected := collectedAt.UTC()
	seen := make(map[int64]bool, len(items))
	entries := make([]models.ForecastEntry, 0, len(items))
	for _, it := range items {
		if seen[*it.Dt] {
			continue
		}
		seen[*it.Dt] = true

		obs := observation(it, p.Units)
		entries = append(entries, models.ForecastEntry{
			CollectedAt:              collected,
			TargetAt:                 obs.ObservedAt,
			Temperature:              obs.Temperature,
			FeelsLike:                obs.FeelsLike,
			Humidity:                 obs.Humidity,
			Pressure:                 obs.Pressure,
			WindSpeed:                obs.WindSpeed,
			WindDirection:            obs.WindDirection,
			Condition:                obs.Condition,
			Description:              obs.Description,
			CloudCover:               obs.CloudCover,
			Precipitation:            obs.Precipitation,
			PrecipitationProbability: percentPtr(it.Pop),
			Visibility:               obs.Visibility,
		})
	}
	return entries, h, nil
}

// fieldsOf flattens an item into the values that get validated.
func fieldsOf(it weather.Item) itemFields {
	f := itemFields{
		Temperature: it.TempValue(),
		Timestamp:   it.Dt,
		Humidity:    it.HumidityValue(),
		CloudCover:  it.Clouds.Value,
		WindDeg:     it.WindDegValue(),
		Pop:         it.Pop,
		Pressure:    it.PressureValue(),
		Visibility:  it.Visibility,
	}
	if c, ok := it.PrimaryCondition(); ok {
		f.Condition = c.Main
	}
	return f
}

// observation assumes fieldsOf(it) already validated.
func observation(it weather.Item, u models.Units) *models.Observation {
	cond, _ := it.PrimaryCondition()
	return &models.Observation{
		ObservedAt:    time.Unix(*it.Dt, 0).UTC(),
		Temperature:   celsius(*it.TempValue(), u),
		FeelsLike:     celsiusPtr(it.FeelsLikeValue(), u),
		Humidity:      intPtr(it.HumidityValue()),
		Pressure:      intPtr(it.PressureValue()),
		WindSpeed:     windPtr(it.WindSpeedValue(), u),
		WindDirection: intPtr(it.WindDegValue()),
		Condition:     cond.Main,
		Description:   cond.Description,
		CloudCover:    intPtr(it.Clouds.Value),
		Precipitation: round2Ptr(it.PrecipitationValue()),
		Visibility:    intPtr(it.Visibility),
	}
}

// offsetZone formats a UTC offset in seconds as "UTC-05:00".
func offsetZone(offset *int64) *string {
	if offset == nil {
		return nil
	}
	sign, secs := '+', *offset
	if secs < 0 {
		sign, secs = '-', -secs
	}
	tz := fmt.Sprintf("UTC%c%02d:%02d", sign, secs/3600, (secs%3600)/60)
	return &tz
}

func malformed(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &etlerr.ValidationError{Malformed: []string{typeErr.Field}, Err: err}
	}
	return &etlerr.ValidationError{Malformed: []string{"payload"}, Err: err}
}
