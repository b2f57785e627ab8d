package models_test

import (
	"testing"

	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "london,gb", want: "London,GB"},
		{in: " new york , ny , us ", want: "New York,NY,US"},
		{in: "Paris", want: "Paris,US"},
		{in: "Louisville,KY,US", want: "Louisville,KY,US"},
		{in: ",US", wantErr: true},
		{in: "Berlin,Germany", wantErr: true},
		{in: "a,b,c,d", wantErr: true},
		{in: "London,GB,51.5,-0.12", want: "London,GB"},
		{in: "louisville,ky,us,38.25,-85.75", want: "Louisville,KY,US"},
		{in: "London,GB,91,0", wantErr: true},
		{in: "London,GB,51.5,181", wantErr: true},
		{in: "London,GB,north,west", wantErr: true},
		{in: "a,b,c,d,e,f", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := models.ParseLocation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Query())
		})
	}
}

func TestParseLocation_DefaultCarriesCoordinates(t *testing.T) {
	loc, err := models.ParseLocation("louisville,us")
	require.NoError(t, err)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, models.DefaultLatitude, *loc.Lat)
	assert.Equal(t, "louisville_us", loc.Key())
}

func TestParseLocation_Coordinates(t *testing.T) {
	tests := []struct {
		in       string
		lat, lon float64
	}{
		{in: "London,GB,51.5,-0.12", lat: 51.5, lon: -0.12},
		{in: "Louisville,KY,US,38.25,-85.75", lat: 38.25, lon: -85.75},
		{in: "Quito,EC,-0.18,-78.47", lat: -0.18, lon: -78.47},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := models.ParseLocation(tt.in)
			require.NoError(t, err)
			require.True(t, loc.HasCoordinates())
			assert.Equal(t, tt.lat, *loc.Lat)
			assert.Equal(t, tt.lon, *loc.Lon)
		})
	}
}

func TestParseLocations(t *testing.T) {
	locs, err := models.ParseLocations("London,GB; ;Sao Paulo,BR")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "sao-paulo_br", locs[1].Key())
}
