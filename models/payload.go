package models

import "time"

// PayloadKind is the shape of a raw provider response.
type PayloadKind string

const (
	KindCurrent    PayloadKind = "current"     // single object with main/weather/dt
	KindForecast3h PayloadKind = "forecast_3h" // list of 3-hour entries
	KindDaily      PayloadKind = "daily"       // list of daily entries
	KindOneCall    PayloadKind = "onecall"     // combined current/hourly/daily
)

// Units declared by a payload. An empty value means the provider default,
// which is Kelvin for temperature and m/s for wind.
type Units string

const (
	UnitsStandard Units = "standard"
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Tier names recorded on payloads and artifacts.
const (
	TierCurrent       = "current"
	TierForecast5Day  = "forecast_5day"
	TierOneCallV3     = "onecall_v3"
	TierOneCallV25    = "onecall_v25"
	TierDailyForecast = "daily_forecast"
	TierFile          = "file"
	TierURL           = "url"
)

// Payload is one raw provider response, kept byte for byte.
type Payload struct {
	Kind  PayloadKind `json:"kind"`
	Tier  string      `json:"tier"`
	Units Units       `json:"units,omitempty"`
	Body  []byte      `json:"-"`
}

// Fetched is what the source client returns for one location.
type Fetched struct {
	Location Location
	Current  *Payload
	Forecast *Payload
	Duration time.Duration
}
