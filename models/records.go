package models

import (
	"encoding/json"
	"time"
)

// LocationRecord is the canonical form of a row in locations.
type LocationRecord struct {
	ID         int64    `json:"id,omitempty"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Population *int64   `json:"population"`
	Timezone   *string  `json:"timezone"`
}

// Observation is one current-conditions snapshot. Raw holds the provider
// payload exactly as received.
type Observation struct {
	ObservedAt    time.Time       `json:"observed_at"`
	Temperature   float64         `json:"temperature"`
	FeelsLike     *float64        `json:"feels_like"`
	Humidity      *int            `json:"humidity"`
	Pressure      *int            `json:"pressure"`
	WindSpeed     *float64        `json:"wind_speed"`
	WindDirection *int            `json:"wind_direction"`
	Condition     string          `json:"condition"`
	Description   string          `json:"description"`
	CloudCover    *int            `json:"cloud_cover"`
	Precipitation *float64        `json:"precipitation"`
	Visibility    *int            `json:"visibility"`
	Raw           json.RawMessage `json:"-"`
}

// ForecastEntry is one prediction for TargetAt, made at CollectedAt.
type ForecastEntry struct {
	CollectedAt              time.Time `json:"collected_at"`
	TargetAt                 time.Time `json:"target_at"`
	Temperature              float64   `json:"temperature"`
	FeelsLike                *float64  `json:"feels_like"`
	Humidity                 *int      `json:"humidity"`
	Pressure                 *int      `json:"pressure"`
	WindSpeed                *float64  `json:"wind_speed"`
	WindDirection            *int      `json:"wind_direction"`
	Condition                string    `json:"condition"`
	Description              string    `json:"description"`
	CloudCover               *int      `json:"cloud_cover"`
	Precipitation            *float64  `json:"precipitation"`
	PrecipitationProbability *float64  `json:"precipitation_probability"`
	Visibility               *int      `json:"visibility"`
}

// DailySummary aggregates forecast entries for one UTC day.
type DailySummary struct {
	Date                        string   `json:"date" csv:"date"`
	AvgTemperature              float64  `json:"avg_temperature" csv:"avg_temperature"`
	MinTemperature              float64  `json:"min_temperature" csv:"min_temperature"`
	MaxTemperature              float64  `json:"max_temperature" csv:"max_temperature"`
	AvgHumidity                 *float64 `json:"avg_humidity" csv:"avg_humidity"`
	MaxPrecipitationProbability *float64 `json:"max_precipitation_probability" csv:"max_precipitation_probability"`
	DominantCondition           string   `json:"dominant_condition" csv:"dominant_condition"`
	Entries                     int      `json:"entries" csv:"entries"`
}

// DailyStats is a row of the weather_stats rollup.
type DailyStats struct {
	LocationID        int64    `json:"location_id" csv:"location_id"`
	Date              string   `json:"date" csv:"date"`
	MinTemperature    float64  `json:"min_temperature" csv:"min_temperature"`
	MaxTemperature    float64  `json:"max_temperature" csv:"max_temperature"`
	AvgTemperature    float64  `json:"avg_temperature" csv:"avg_temperature"`
	AvgHumidity       *float64 `json:"avg_humidity" csv:"avg_humidity"`
	DominantCondition string   `json:"dominant_condition" csv:"dominant_condition"`
	ObservationCount  int      `json:"observation_count" csv:"observation_count"`
}

// Unit is everything loaded in one transaction: a location and its rows.
type Unit struct {
	Location    LocationRecord  `json:"location"`
	Observation *Observation    `json:"observation,omitempty"`
	Forecasts   []ForecastEntry `json:"forecasts,omitempty"`
}

// ErrorStats summarizes forecast errors. StdDev is the sample deviation and
// is nil with fewer than two values.
type ErrorStats struct {
	Count  int      `json:"count"`
	Mean   float64  `json:"mean"`
	Median float64  `json:"median"`
	StdDev *float64 `json:"std_dev,omitempty"`
}

// LeadTimeAccuracy is forecast error for predictions made within one lead
// time bucket, e.g. "48h" for 24 to 48 hours ahead.
type LeadTimeAccuracy struct {
	LeadTime         string      `json:"lead_time"`
	Pairs            int         `json:"pairs"`
	TempAbsError     ErrorStats  `json:"temp_abs_error"`
	TempPctError     *ErrorStats `json:"temp_pct_error,omitempty"`
	HumidityAbsError *ErrorStats `json:"humidity_abs_error,omitempty"`
	HumidityPctError *ErrorStats `json:"humidity_pct_error,omitempty"`
}

// AnomalyPoint is one value of a series with its rolling z-score. ZScore is
// nil until the window is full or when the window has no spread.
type AnomalyPoint struct {
	At      time.Time `json:"at"`
	Value   float64   `json:"value"`
	ZScore  *float64  `json:"z_score"`
	Anomaly bool      `json:"anomaly"`
}
