package transform

import (
	"math"

	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const (
	kelvinOffset = 273.15
	mphToMS      = 0.44704
)

// celsius converts a temperature in the payload's units. Payloads without
// declared units use the provider default, Kelvin.
func celsius(v float64, u models.Units) float64 {
	switch u {
	case models.UnitsMetric:
		return rollup.Round2(v)
	case models.UnitsImperial:
		return rollup.Round2((v - 32) * 5 / 9)
	default:
		return rollup.Round2(v - kelvinOffset)
	}
}

// metersPerSecond converts wind speed; only imperial payloads use mph.
func metersPerSecond(v float64, u models.Units) float64 {
	if u == models.UnitsImperial {
		return rollup.Round2(v * mphToMS)
	}
	return rollup.Round2(v)
}

func celsiusPtr(v *float64, u models.Units) *float64 {
	if v == nil {
		return nil
	}
	c := celsius(*v, u)
	return &c
}

func windPtr(v *float64, u models.Units) *float64 {
	if v == nil {
		return nil
	}
	w := metersPerSecond(*v, u)
	return &w
}

func intPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	i := int(math.Round(*v))
	return &i
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := rollup.Round2(*v)
	return &r
}

// percentPtr scales a 0..1 probability to a percentage.
func percentPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	p := rollup.Round2(*v * 100)
	return &p
}
