// Package rollup aggregates weather rows into per-day summaries.
package rollup

import (
	"math"
	"sort"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const DateLayout = "2006-01-02"

// Dominant returns the most frequent condition. Ties go to the condition
// that appears first in conds.
func Dominant(conds []string) string {
	counts := make(map[string]int, len(conds))
	best, bestCount := "", 0
	for _, c := range conds {
		if c == "" {
			continue
		}
		counts[c]++
	}
	for _, c := range conds {
		if n := counts[c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type day struct {
	temps    []float64
	humidity []float64
	pop      *float64
	conds    []string
}

func (d *day) add(temp float64, humidity *int, pop *float64, cond string) {
	d.temps = append(d.temps, temp)
	if humidity != nil {
		d.humidity = append(d.humidity, float64(*humidity))
	}
	if pop != nil && (d.pop == nil || *pop > *d.pop) {
		v := *pop
		d.pop = &v
	}
	d.conds = append(d.conds, cond)
}

func (d *day) stats() (avg, lo, hi float64, avgHumidity *float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, t := range d.temps {
		sum += t
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	avg = Round2(sum / float64(len(d.temps)))
	if len(d.humidity) > 0 {
		var hs float64
		for _, h := range d.humidity {
			hs += h
		}
		v := Round2(hs / float64(len(d.humidity)))
		avgHumidity = &v
	}
	return avg, lo, hi, avgHumidity
}

// grouper keeps days keyed by UTC date and preserves entry order within a day.
type grouper struct {
	days map[string]*day
}

func (g *grouper) at(t time.Time) *day {
	key := t.UTC().Format(DateLayout)
	d, ok := g.days[key]
	if !ok {
		d = &day{}
		g.days[key] = d
	}
	return d
}

func (g *grouper) keys() []string {
	keys := make([]string, 0, len(g.days))
	for k := range g.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DailyForecast summarizes forecast entries per UTC day of their target time.
func DailyForecast(entries []models.ForecastEntry) []models.DailySummary {
	g := &grouper{days: map[string]*day{}}
	for _, e := range entries {
		g.at(e.TargetAt).add(e.Temperature, e.Humidity, e.PrecipitationProbability, e.Condition)
	}

	out := make([]models.DailySummary, 0, len(g.days))
	for _, key := range g.keys() {
		d := g.days[key]
		avg, lo, hi, hum := d.stats()
		out = append(out, models.DailySummary{
			Date:                        key,
			AvgTemperature:              avg,
			MinTemperature:              lo,
			MaxTemperature:              hi,
			AvgHumidity:                 hum,
			MaxPrecipitationProbability: d.pop,
			DominantCondition:           Dominant(d.conds),
			Entries:                     len(d.temps),
		})
	}
	return out
}

// DailyObservations builds weather_stats rows from observations. Observations
// are expected in observed_at order so ties in the dominant condition are
// broken by the earliest reading.
func DailyObservations(locationID int64, obs []models.Observation) []models.DailyStats {
	g := &grouper{days: map[string]*day{}}
	for _, o := range obs {
		g.at(o.ObservedAt).add(o.Temperature, o.Humidity, nil, o.Condition)
	}

	out := make([]models.DailyStats, 0, len(g.days))
	for _, key := range g.keys() {
		d := g.days[key]
		avg, lo, hi, hum := d.stats()
		out = append(out, models.DailyStats{
			LocationID:        locationID,
			Date:              key,
			MinTemperature:    lo,
			MaxTemperature:    hi,
			AvgTemperature:    avg,
			AvgHumidity:       hum,
			DominantCondition: Dominant(d.conds),
			ObservationCount:  len(d.temps),
		})
	}
	return out
}
