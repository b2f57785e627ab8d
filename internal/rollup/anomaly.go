package rollup

import (
	"fmt"
	"math"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const (
	DefaultAnomalyWindow    = 24
	DefaultAnomalyThreshold = 2.0
)

// Metrics that can be pulled out of observations as a series.
var Metrics = []string{"temperature", "feels_like", "humidity", "pressure", "wind_speed", "precipitation"}

// Point is one value of a time series.
type Point struct {
	At    time.Time
	Value float64
}

// ObservationSeries extracts one metric from observations, skipping rows
// where the metric is NULL.
func ObservationSeries(obs []models.Observation, metric string) ([]Point, error) {
	pick, err := metricOf(metric)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(obs))
	for _, o := range obs {
		if v, ok := pick(o); ok {
			out = append(out, Point{At: o.ObservedAt, Value: v})
		}
	}
	return out, nil
}

func metricOf(name string) (func(models.Observation) (float64, bool), error) {
	switch name {
	case "temperature":
		return func(o models.Observation) (float64, bool) { return o.Temperature, true }, nil
	case "feels_like":
		return func(o models.Observation) (float64, bool) { return floatVal(o.FeelsLike) }, nil
	case "humidity":
		return func(o models.Observation) (float64, bool) { return intVal(o.Humidity) }, nil
	case "pressure":
		return func(o models.Observation) (float64, bool) { return intVal(o.Pressure) }, nil
	case "wind_speed":
		return func(o models.Observation) (float64, bool) { return floatVal(o.WindSpeed) }, nil
	case "precipitation":
		return func(o models.Observation) (float64, bool) { return floatVal(o.Precipitation) }, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

func floatVal(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func intVal(p *int) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return float64(*p), true
}

// DetectAnomalies scores each point against the rolling mean and sample
// deviation of the window ending at that point, itself included. A point is
// an anomaly when |z| exceeds threshold. The first window-1 points have no
// score.
func DetectAnomalies(series []Point, window int, threshold float64) []models.AnomalyPoint {
	if window < 2 {
		window = 2
	}
	out := make([]models.AnomalyPoint, len(series))
	for i, p := range series {
		out[i] = models.AnomalyPoint{At: p.At, Value: p.Value}
		if i+1 < window {
			continue
		}
		vals := make([]float64, window)
		for j := range vals {
			vals[j] = series[i+1-window+j].Value
		}
		mean := Mean(vals)
		sd, ok := StdDev(vals, mean)
		if !ok || sd == 0 {
			continue
		}
		z := (p.Value - mean) / sd
		rz := Round2(z)
		out[i].ZScore = &rz
		out[i].Anomaly = math.Abs(z) > threshold
	}
	return out
}
