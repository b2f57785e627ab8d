package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecastAccuracy_MatchesObservationsByHour(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c0 := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	res, err := s.LoadUnit(ctx, models.Unit{
		Location: louisville(),
		Forecasts: []models.ForecastEntry{
			forecastAt(c0, c0.Add(12*time.Hour), 10),
			forecastAt(c0, c0.Add(15*time.Hour), 30),
			forecastAt(c0, c0.Add(30*time.Hour), 7),
		},
	})
	require.NoError(t, err)

	for _, o := range []*models.Observation{
		obsAt(c0.Add(12*time.Hour+20*time.Minute), 8, "Clear"),
		obsAt(c0.Add(30*time.Hour+5*time.Minute), 5, "Rain"),
		obsAt(c0.Add(40*time.Hour), 1, "Rain"),
	} {
		_, err := s.LoadUnit(ctx, models.Unit{Location: louisville(), Observation: o})
		require.NoError(t, err)
	}

	pairs, err := s.ForecastPairs(ctx, res.LocationID, c0, c0.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, 12*time.Hour, pairs[0].LeadTime())
	assert.Equal(t, 8.0, pairs[0].ActualTemp)
	assert.Equal(t, 30*time.Hour, pairs[1].LeadTime())

	acc, err := s.ForecastAccuracy(ctx, res.LocationID, c0, c0.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, acc, 2)
	assert.Equal(t, "24h", acc[0].LeadTime)
	assert.Equal(t, 2.0, acc[0].TempAbsError.Mean)
	assert.Equal(t, "48h", acc[1].LeadTime)
	assert.Equal(t, 2.0, acc[1].TempAbsError.Mean)
	assert.Nil(t, acc[0].HumidityAbsError)

	none, err := s.ForecastAccuracy(ctx, res.LocationID, c0.Add(100*time.Hour), c0.Add(120*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAnomalies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var id int64
	for k, temp := range []float64{10, 10, 10, 16} {
		res, err := s.LoadUnit(ctx, models.Unit{
			Location:    louisville(),
			Observation: obsAt(t0.Add(time.Duration(k)*time.Hour), temp, "Clear"),
		})
		require.NoError(t, err)
		id = res.LocationID
	}

	points, err := s.Anomalies(ctx, id, "temperature", t0, t0.Add(4*time.Hour), 3, 1.0)
	require.NoError(t, err)
	require.Len(t, points, 4)
	assert.Nil(t, points[2].ZScore)
	require.NotNil(t, points[3].ZScore)
	assert.Equal(t, 1.15, *points[3].ZScore)
	assert.True(t, points[3].Anomaly)

	_, err = s.Anomalies(ctx, id, "uv_index", t0, t0.Add(time.Hour), 3, 1.0)
	assert.Error(t, err)
}
