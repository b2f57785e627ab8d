package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	DefaultCity      = "Louisville"
	DefaultState     = "KY"
	DefaultCountry   = "US"
	DefaultLatitude  = 38.2527
	DefaultLongitude = -85.7585
)

// Location describes a place the pipeline collects weather for. Latitude and
// longitude are optional; when absent the source client geocodes the query.
type Location struct {
	City    string   `json:"city"`
	State   string   `json:"state,omitempty"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// DefaultLocation returns the location used when nothing is configured.
func DefaultLocation() Location {
	lat, lon := DefaultLatitude, DefaultLongitude
	return Location{City: DefaultCity, State: DefaultState, Country: DefaultCountry, Lat: &lat, Lon: &lon}
}

// ParseLocation normalizes "City", "City,Country" or "City,State,Country".
// The two-or-three part forms may end with ",lat,lon".
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var lat, lon *float64
	if n := len(parts); n == 4 || n == 5 {
		la, errLat := strconv.ParseFloat(parts[n-2], 64)
		lo, errLon := strconv.ParseFloat(parts[n-1], 64)
		if errLat != nil || errLon != nil {
			return Location{}, fmt.Errorf("invalid location %q: expected City[,State],Country[,lat,lon]", s)
		}
		if la < -90 || la > 90 || lo < -180 || lo > 180 {
			return Location{}, fmt.Errorf("invalid location %q: coordinates out of range", s)
		}
		lat, lon = &la, &lo
		parts = parts[:n-2]
	}

	var loc Location
	switch len(parts) {
	case 1:
		loc = Location{City: parts[0], Country: DefaultCountry}
	case 2:
		loc = Location{City: parts[0], Country: parts[1]}
	case 3:
		loc = Location{City: parts[0], State: parts[1], Country: parts[2]}
	default:
		return Location{}, fmt.Errorf("invalid location %q: expected City[,State],Country[,lat,lon]", s)
	}
	loc.Lat, loc.Lon = lat, lon

	if loc.City == "" {
		return Location{}, errors.New("invalid location: city is empty")
	}
	if len(loc.Country) != 2 {
		return Location{}, fmt.Errorf("invalid location %q: country must be a 2-letter code", s)
	}

	loc.City = titleCase(loc.City)
	loc.State = strings.ToUpper(loc.State)
	loc.Country = strings.ToUpper(loc.Country)

	if !loc.HasCoordinates() && loc.City == DefaultCity && loc.Country == DefaultCountry && (loc.State == "" || loc.State == DefaultState) {
		return DefaultLocation(), nil
	}
	return loc, nil
}

// ParseLocations splits a semicolon separated list of locations.
func ParseLocations(s string) ([]Location, error) {
	var out []Location
	for _, item := range strings.Split(s, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		loc, err := ParseLocation(item)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// Query is the provider query string, e.g. "Louisville,KY,US".
func (l Location) Query() string {
	if l.State != "" {
		return l.City + "," + l.State + "," + l.Country
	}
	return l.City + "," + l.Country
}

// Key is a filesystem and document safe identifier, e.g. "louisville_us".
func (l Location) Key() string {
	var b strings.Builder
	for _, r := range strings.ToLower(l.City + "_" + l.Country) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('-')
		}
	}
	return b.String()
}

func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

func (l Location) String() string {
	return l.Query()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
