package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flex decodes fields that providers send either as a bare number or as an
// object holding the number (temp.day, clouds.all, rain.1h, rain.3h).
type Flex struct {
	Value *float64
}

var flexKeys = []string{"day", "all", "1h", "3h"}

func (f *Flex) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.Value = &n
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("expected number or object, got %s", b)
	}
	for _, key := range flexKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("field %q: expected number, got %s", key, raw)
		}
		f.Value = &n
		return nil
	}
	return nil
}

type Coord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

type MainBlock struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Pressure  *float64 `json:"pressure"`
	Humidity  *float64 `json:"humidity"`
}

type WindBlock struct {
	Speed *float64 `json:"speed"`
	Deg   *float64 `json:"deg"`
}

// Item is one set of conditions. The same struct decodes a current-weather
// response body, a 3-hour list entry, a daily list entry and OneCall
// current/daily entries; accessors pick whichever field the shape uses.
type Item struct {
	Dt         *int64      `json:"dt"`
	Main       *MainBlock  `json:"main"`
	Temp       Flex        `json:"temp"`
	FeelsLike  Flex        `json:"feels_like"`
	Pressure   *float64    `json:"pressure"`
	Humidity   *float64    `json:"humidity"`
	Wind       *WindBlock  `json:"wind"`
	WindSpeed  *float64    `json:"wind_speed"`
	WindDeg    *float64    `json:"wind_deg"`
	Speed      *float64    `json:"speed"`
	Deg        *float64    `json:"deg"`
	Weather    []Condition `json:"weather"`
	Clouds     Flex        `json:"clouds"`
	Pop        *float64    `json:"pop"`
	Rain       Flex        `json:"rain"`
	Snow       Flex        `json:"snow"`
	Visibility *float64    `json:"visibility"`
}

func (it Item) TempValue() *float64 {
	if it.Main != nil && it.Main.Temp != nil {
		return it.Main.Temp
	}
	return it.Temp.Value
}

func (it Item) FeelsLikeValue() *float64 {
	if it.Main != nil && it.Main.FeelsLike != nil {
		return it.Main.FeelsLike
	}
	return it.FeelsLike.Value
}

func (it Item) PressureValue() *float64 {
	if it.Main != nil && it.Main.Pressure != nil {
		return it.Main.Pressure
	}
	return it.Pressure
}

func (it Item) HumidityValue() *float64 {
	if it.Main != nil && it.Main.Humidity != nil {
		return it.Main.Humidity
	}
	return it.Humidity
}

func (it Item) WindSpeedValue() *float64 {
	switch {
	case it.Wind != nil && it.Wind.Speed != nil:
		return it.Wind.Speed
	case it.WindSpeed != nil:
		return it.WindSpeed
	}
	return it.Speed
}

func (it Item) WindDegValue() *float64 {
	switch {
	case it.Wind != nil && it.Wind.Deg != nil:
		return it.Wind.Deg
	case it.WindDeg != nil:
		return it.WindDeg
	}
	return it.Deg
}

// PrecipitationValue sums rain and snow volumes when either is present.
func (it Item) PrecipitationValue() *float64 {
	if it.Rain.Value == nil && it.Snow.Value == nil {
		return nil
	}
	var total float64
	if it.Rain.Value != nil {
		total += *it.Rain.Value
	}
	if it.Snow.Value != nil {
		total += *it.Snow.Value
	}
	return &total
}

// PrimaryCondition is the first weather entry, which providers treat as the main one.
func (it Item) PrimaryCondition() (Condition, bool) {
	if len(it.Weather) == 0 {
		return Condition{}, false
	}
	return it.Weather[0], true
}

// CurrentResponse is the /data/2.5/weather body.
type CurrentResponse struct {
	Item
	Coord    *Coord `json:"coord"`
	Name     string `json:"name"`
	Timezone *int64 `json:"timezone"`
	Sys      *struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type City struct {
	Name       string `json:"name"`
	Country    string `json:"country"`
	Coord      *Coord `json:"coord"`
	Population *int64 `json:"population"`
	Timezone   *int64 `json:"timezone"`
}

// ListResponse is the body of both the 3-hour and the daily forecast endpoints.
type ListResponse struct {
	City *City  `json:"city"`
	List []Item `json:"list"`
}

// OneCallResponse is the body of the OneCall 2.5 and 3.0 endpoints.
type OneCallResponse struct {
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	Timezone       string   `json:"timezone"`
	TimezoneOffset *int64   `json:"timezone_offset"`
	Current        *Item    `json:"current"`
	Hourly         []Item   `json:"hourly"`
	Daily          []Item   `json:"daily"`
}

// GeoResult is one entry of the /geo/1.0/direct response.
type GeoResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}
