package rollup_test

import (
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hum(v int) *int { return &v }

func TestForecastAccuracy(t *testing.T) {
	c0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	pair := func(leadHours int, forecast, actual float64, fh, ah *int) rollup.ForecastPair {
		return rollup.ForecastPair{
			CollectedAt:      c0,
			TargetAt:         c0.Add(time.Duration(leadHours) * time.Hour),
			ForecastTemp:     forecast,
			ActualTemp:       actual,
			ForecastHumidity: fh,
			ActualHumidity:   ah,
		}
	}

	got := rollup.ForecastAccuracy([]rollup.ForecastPair{
		pair(12, 10, 8, hum(60), hum(50)),
		pair(18, 9, 10, hum(55), nil),
		pair(30, 5, 0, nil, nil),
		pair(200, 1, 30, nil, nil),
		pair(0, 1, 30, nil, nil),
	})
	require.Len(t, got, 2)

	day1 := got[0]
	assert.Equal(t, "24h", day1.LeadTime)
	assert.Equal(t, 2, day1.Pairs)
	assert.Equal(t, 2, day1.TempAbsError.Count)
	assert.Equal(t, 1.5, day1.TempAbsError.Mean)
	assert.Equal(t, 1.5, day1.TempAbsError.Median)
	require.NotNil(t, day1.TempAbsError.StdDev)
	assert.Equal(t, 0.71, *day1.TempAbsError.StdDev)

	require.NotNil(t, day1.TempPctError)
	assert.Equal(t, 7.5, day1.TempPctError.Mean)

	require.NotNil(t, day1.HumidityAbsError)
	assert.Equal(t, 1, day1.HumidityAbsError.Count)
	assert.Equal(t, 10.0, day1.HumidityAbsError.Mean)
	assert.Nil(t, day1.HumidityAbsError.StdDev)
	require.NotNil(t, day1.HumidityPctError)
	assert.Equal(t, 20.0, day1.HumidityPctError.Median)

	day2 := got[1]
	assert.Equal(t, "48h", day2.LeadTime)
	assert.Equal(t, 5.0, day2.TempAbsError.Mean)
	assert.Nil(t, day2.TempPctError, "percent error against zero is skipped")
	assert.Nil(t, day2.HumidityAbsError)
}

func TestForecastAccuracy_NoPairs(t *testing.T) {
	assert.Empty(t, rollup.ForecastAccuracy(nil))
}

func TestDetectAnomalies(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	var series []rollup.Point
	for k, v := range []float64{10, 10, 10, 10, 20, 11} {
		series = append(series, rollup.Point{At: start.Add(time.Duration(k) * time.Hour), Value: v})
	}

	got := rollup.DetectAnomalies(series, 4, 1.4)
	require.Len(t, got, len(series))

	for k := 0; k < 4; k++ {
		assert.Nil(t, got[k].ZScore, "point %d", k)
		assert.False(t, got[k].Anomaly)
	}

	require.NotNil(t, got[4].ZScore)
	assert.Equal(t, 1.5, *got[4].ZScore)
	assert.True(t, got[4].Anomaly)
	assert.Equal(t, start.Add(4*time.Hour), got[4].At)

	require.NotNil(t, got[5].ZScore)
	assert.Equal(t, -0.36, *got[5].ZScore)
	assert.False(t, got[5].Anomaly)
}

func TestObservationSeries(t *testing.T) {
	at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	obs := []models.Observation{
		{ObservedAt: at, Temperature: 10, Humidity: hum(40)},
		{ObservedAt: at.Add(time.Hour), Temperature: 11},
		{ObservedAt: at.Add(2 * time.Hour), Temperature: 12, Humidity: hum(44)},
	}

	series, err := rollup.ObservationSeries(obs, "humidity")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 44.0, series[1].Value)

	series, err = rollup.ObservationSeries(obs, "temperature")
	require.NoError(t, err)
	assert.Len(t, series, 3)

	_, err = rollup.ObservationSeries(obs, "uv_index")
	assert.Error(t, err)
}
