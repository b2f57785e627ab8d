package transform_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/backup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/transform"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var collectedAt = time.Date(2023, 11, 14, 22, 15, 0, 0, time.UTC)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func payload(kind models.PayloadKind, units models.Units, body []byte) *models.Payload {
	return &models.Payload{Kind: kind, Units: units, Body: body}
}

func TestCurrent_KelvinPayload(t *testing.T) {
	body := fixture(t, "current_standard.json")

	obs, _, err := transform.Current(payload(models.KindCurrent, "", body))
	require.NoError(t, err)

	assert.InDelta(t, 22.0, obs.Temperature, 0.1)
	require.NotNil(t, obs.Humidity)
	assert.Equal(t, 60, *obs.Humidity)
	require.NotNil(t, obs.Pressure)
	assert.Equal(t, 1012, *obs.Pressure)
	assert.Equal(t, "Clear", obs.Condition)
	assert.Equal(t, "clear sky", obs.Description)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), obs.ObservedAt)
	assert.Nil(t, obs.Visibility, "absent visibility is null, not zero")
	assert.Nil(t, obs.CloudCover)
	assert.Nil(t, obs.WindSpeed)
	assert.Equal(t, string(body), string(obs.Raw), "raw payload kept byte for byte")
}

func TestCurrent_FullMetricPayload(t *testing.T) {
	obs, h, err := transform.Current(payload(models.KindCurrent, models.UnitsMetric, fixture(t, "current_full.json")))
	require.NoError(t, err)

	assert.Equal(t, 12.4, obs.Temperature)
	assert.Equal(t, 11.9, *obs.FeelsLike)
	assert.Equal(t, 1009, *obs.Pressure)
	assert.Equal(t, 4.12, *obs.WindSpeed)
	assert.Equal(t, 200, *obs.WindDirection)
	assert.Equal(t, 90, *obs.CloudCover)
	assert.Equal(t, 0.35, *obs.Precipitation)
	assert.Equal(t, 9000, *obs.Visibility)

	loc, err := transform.Location(models.Location{City: "Louisville", Country: "US"}, h)
	require.NoError(t, err)
	require.NotNil(t, loc.Timezone)
	assert.Equal(t, "UTC-05:00", *loc.Timezone)
	require.NotNil(t, loc.Latitude)
	assert.Equal(t, 38.2527, *loc.Latitude)
	assert.Nil(t, loc.Population)
}

func TestCurrent_UnitConversion(t *testing.T) {
	tests := []struct {
		name     string
		units    models.Units
		body     string
		wantTemp float64
		wantWind float64
	}{
		{"kelvin", models.UnitsStandard, `{"main":{"temp":295.15},"wind":{"speed":5},"weather":[{"main":"Clear"}],"dt":1}`, 22.0, 5},
		{"undeclared is kelvin", "", `{"main":{"temp":273.15},"wind":{"speed":5},"weather":[{"main":"Clear"}],"dt":1}`, 0, 5},
		{"celsius", models.UnitsMetric, `{"main":{"temp":22},"wind":{"speed":5},"weather":[{"main":"Clear"}],"dt":1}`, 22.0, 5},
		{"fahrenheit and mph", models.UnitsImperial, `{"main":{"temp":71.6},"wind":{"speed":10},"weather":[{"main":"Clear"}],"dt":1}`, 22.0, 4.47},
		{"freezing fahrenheit", models.UnitsImperial, `{"main":{"temp":32},"wind":{"speed":0},"weather":[{"main":"Clear"}],"dt":1}`, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, _, err := transform.Current(payload(models.KindCurrent, tt.units, []byte(tt.body)))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantTemp, obs.Temperature, 0.01)
			require.NotNil(t, obs.WindSpeed)
			assert.InDelta(t, tt.wantWind, *obs.WindSpeed, 0.001)
		})
	}
}

func TestCurrent_Rejections(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantMissing   []string
		wantMalformed []string
	}{
		{
			name:        "no temperature",
			body:        `{"main":{"humidity":60},"weather":[{"main":"Clear"}],"dt":1700000000}`,
			wantMissing: []string{"main.temp"},
		},
		{
			name:        "no condition and no timestamp",
			body:        `{"main":{"temp":290},"weather":[]}`,
			wantMissing: []string{"weather[0].main", "dt"},
		},
		{
			name:          "humidity out of range",
			body:          `{"main":{"temp":290,"humidity":120},"weather":[{"main":"Clear"}],"dt":1}`,
			wantMalformed: []string{"main.humidity"},
		},
		{
			name:          "visibility overflows",
			body:          `{"main":{"temp":290},"visibility":1e30,"weather":[{"main":"Clear"}],"dt":1}`,
			wantMalformed: []string{"visibility"},
		},
		{
			name:          "negative pressure",
			body:          `{"main":{"temp":290,"pressure":-5},"weather":[{"main":"Clear"}],"dt":1}`,
			wantMalformed: []string{"main.pressure"},
		},
		{
			name:          "temperature is a string",
			body:          `{"main":{"temp":"hot"},"weather":[{"main":"Clear"}],"dt":1}`,
			wantMalformed: []string{"main.temp"},
		},
		{
			name:          "not json",
			body:          `{"main":`,
			wantMalformed: []string{"payload"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, _, err := transform.Current(payload(models.KindCurrent, "", []byte(tt.body)))
			assert.Nil(t, obs)

			var valErr *etlerr.ValidationError
			require.True(t, errors.As(err, &valErr), "got %v", err)
			assert.Equal(t, tt.wantMissing, valErr.Missing)
			assert.Equal(t, tt.wantMalformed, valErr.Malformed)
		})
	}
}

func TestForecast_ThreeHourPayload(t *testing.T) {
	entries, h, err := transform.Forecast(payload(models.KindForecast3h, models.UnitsStandard, fixture(t, "forecast_3h.json")), collectedAt)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	first := entries[0]
	assert.Equal(t, collectedAt, first.CollectedAt)
	assert.Equal(t, time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC), first.TargetAt)
	assert.Equal(t, 12.0, first.Temperature)
	assert.Equal(t, 10.85, *first.FeelsLike)
	assert.Equal(t, 20.0, *first.PrecipitationProbability)
	assert.Equal(t, 75, *first.CloudCover)
	assert.Nil(t, first.Precipitation)

	assert.Equal(t, 65.0, *entries[1].PrecipitationProbability)
	assert.Equal(t, 1.2, *entries[1].Precipitation)

	loc, err := transform.Location(models.Location{City: "Louisville", Country: "US"}, h)
	require.NoError(t, err)
	require.NotNil(t, loc.Population)
	assert.Equal(t, int64(246161), *loc.Population)
}

func TestForecast_DailyImperialPayload(t *testing.T) {
	entries, _, err := transform.Forecast(payload(models.KindDaily, models.UnitsImperial, fixture(t, "daily_imperial.json")), collectedAt)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.InDelta(t, 22.0, entries[0].Temperature, 0.01)
	assert.Equal(t, 4.47, *entries[0].WindSpeed)
	assert.Equal(t, 90, *entries[0].WindDirection)
	assert.Equal(t, 5.0, *entries[0].PrecipitationProbability)
	assert.Equal(t, 5, *entries[0].CloudCover)

	assert.InDelta(t, 0.0, entries[1].Temperature, 0.01)
	assert.Equal(t, 2.1, *entries[1].Precipitation)
	assert.Equal(t, "Snow", entries[1].Condition)
}

func TestForecast_OneCallPayload(t *testing.T) {
	entries, h, err := transform.Forecast(payload(models.KindOneCall, models.UnitsMetric, fixture(t, "onecall.json")), collectedAt)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 11.2, entries[0].Temperature)
	assert.Equal(t, 10.1, *entries[0].FeelsLike)
	assert.Equal(t, 100.0, *entries[0].PrecipitationProbability)
	assert.Equal(t, 96, *entries[0].CloudCover)
	assert.Equal(t, 6.3, *entries[0].WindSpeed)
	assert.Equal(t, 7.7, *entries[0].Precipitation)

	loc, err := transform.Location(models.Location{City: "London", Country: "GB"}, h)
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", *loc.Timezone)
	assert.Equal(t, 51.5073, *loc.Latitude)
}

func TestForecast_RejectsWholePayload(t *testing.T) {
	body := `{"list":[
		{"dt":1700006400,"main":{"temp":285},"weather":[{"main":"Clouds"}]},
		{"dt":1700017200,"main":{"humidity":80},"weather":[{"main":"Rain"}]},
		{"main":{"temp":280},"weather":[]}
	]}`

	entries, _, err := transform.Forecast(payload(models.KindForecast3h, "", []byte(body)), collectedAt)
	assert.Empty(t, entries)

	var valErr *etlerr.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, []string{"list[1].main.temp", "list[2].weather[0].main", "list[2].dt"}, valErr.Missing)
}

func TestForecast_EmptyList(t *testing.T) {
	_, _, err := transform.Forecast(payload(models.KindForecast3h, "", []byte(`{"list":[]}`)), collectedAt)

	var valErr *etlerr.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, []string{"list"}, valErr.Missing)
}

func TestForecast_DuplicateTargetsKeepFirst(t *testing.T) {
	body := `{"list":[
		{"dt":1700006400,"main":{"temp":285.15},"weather":[{"main":"Clouds"}]},
		{"dt":1700006400,"main":{"temp":290.15},"weather":[{"main":"Rain"}]}
	]}`

	entries, _, err := transform.Forecast(payload(models.KindForecast3h, "", []byte(body)), collectedAt)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Clouds", entries[0].Condition)
}

func artifact(t *testing.T) *backup.Artifact {
	return &backup.Artifact{
		Location:    models.DefaultLocation(),
		CollectedAt: collectedAt,
		Current:     payload(models.KindCurrent, models.UnitsMetric, fixture(t, "current_full.json")),
		Forecast:    payload(models.KindForecast3h, models.UnitsStandard, fixture(t, "forecast_3h.json")),
	}
}

func TestArtifact_BuildsUnit(t *testing.T) {
	res, err := transform.Artifact(artifact(t))
	require.NoError(t, err)

	loc := res.Unit.Location
	assert.Equal(t, "Louisville", loc.City)
	assert.Equal(t, "US", loc.Country)
	assert.Equal(t, models.DefaultLatitude, *loc.Latitude)
	assert.Equal(t, int64(246161), *loc.Population)
	assert.Equal(t, "UTC-05:00", *loc.Timezone)

	require.NotNil(t, res.Unit.Observation)
	assert.Len(t, res.Unit.Forecasts, 4)

	require.Len(t, res.Daily, 2)
	day := res.Daily[0]
	assert.Equal(t, "2023-11-15", day.Date)
	assert.Equal(t, 10.0, day.AvgTemperature)
	assert.Equal(t, 85.0, *day.AvgHumidity)
	assert.Equal(t, 90.0, *day.MaxPrecipitationProbability)
	assert.Equal(t, "Rain", day.DominantCondition)
	assert.Equal(t, "Clear", res.Daily[1].DominantCondition)
}

func TestArtifact_IsDeterministic(t *testing.T) {
	a := artifact(t)

	first, err := transform.Artifact(a)
	require.NoError(t, err)
	second, err := transform.Artifact(a)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, []byte(first.Unit.Observation.Raw), []byte(second.Unit.Observation.Raw))
}

func TestArtifact_RejectedForecastEmitsNothing(t *testing.T) {
	a := artifact(t)
	a.Forecast = payload(models.KindForecast3h, "", []byte(`{"list":[{"dt":1,"weather":[{"main":"Rain"}]}]}`))

	res, err := transform.Artifact(a)
	assert.Nil(t, res)
	assert.Equal(t, etlerr.StageTransform, etlerr.StageOf(err))
}

func TestLocation_RequiresIdentity(t *testing.T) {
	_, err := transform.Location(models.Location{}, transform.LocationHints{})

	var valErr *etlerr.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, []string{"location.city", "location.country"}, valErr.Missing)
}
