package rollup

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

// LeadTimeBuckets are the upper bounds, in hours, of the lead time buckets.
// A bucket covers (previous bound, bound].
var LeadTimeBuckets = []int{24, 48, 72, 96, 120}

// ForecastPair is a prediction matched with an observation taken in the
// same hour as the predicted time.
type ForecastPair struct {
	CollectedAt      time.Time
	TargetAt         time.Time
	ForecastTemp     float64
	ActualTemp       float64
	ForecastHumidity *int
	ActualHumidity   *int
}

// LeadTime is how far ahead the prediction was made.
func (p ForecastPair) LeadTime() time.Duration {
	return p.TargetAt.Sub(p.CollectedAt)
}

func bucketOf(lead time.Duration) (string, bool) {
	hours := lead.Hours()
	prev := 0
	for _, b := range LeadTimeBuckets {
		if hours > float64(prev) && hours <= float64(b) {
			return strconv.Itoa(b) + "h", true
		}
		prev = b
	}
	return "", false
}

type errorSeries struct {
	tempAbs, tempPct, humAbs, humPct []float64
	pairs                            int
}

func (s *errorSeries) add(p ForecastPair) {
	s.pairs++
	diff := p.ForecastTemp - p.ActualTemp
	s.tempAbs = append(s.tempAbs, math.Abs(diff))
	if p.ActualTemp != 0 {
		s.tempPct = append(s.tempPct, diff/p.ActualTemp*100)
	}
	if p.ForecastHumidity != nil && p.ActualHumidity != nil {
		hd := float64(*p.ForecastHumidity - *p.ActualHumidity)
		s.humAbs = append(s.humAbs, math.Abs(hd))
		if *p.ActualHumidity != 0 {
			s.humPct = append(s.humPct, hd/float64(*p.ActualHumidity)*100)
		}
	}
}

// ForecastAccuracy groups matched pairs by lead time and reports absolute
// and percent errors for temperature and humidity. Pairs with a lead time
// outside the buckets are ignored, as are percent errors against a zero
// actual value. Buckets without pairs are omitted.
func ForecastAccuracy(pairs []ForecastPair) []models.LeadTimeAccuracy {
	series := map[string]*errorSeries{}
	for _, p := range pairs {
		name, ok := bucketOf(p.LeadTime())
		if !ok {
			continue
		}
		s, ok := series[name]
		if !ok {
			s = &errorSeries{}
			series[name] = s
		}
		s.add(p)
	}

	out := make([]models.LeadTimeAccuracy, 0, len(series))
	for _, b := range LeadTimeBuckets {
		name := strconv.Itoa(b) + "h"
		s, ok := series[name]
		if !ok {
			continue
		}
		acc := models.LeadTimeAccuracy{
			LeadTime:     name,
			Pairs:        s.pairs,
			TempAbsError: *describe(s.tempAbs),
		}
		acc.TempPctError = describe(s.tempPct)
		acc.HumidityAbsError = describe(s.humAbs)
		acc.HumidityPctError = describe(s.humPct)
		out = append(out, acc)
	}
	return out
}

// describe returns nil for an empty sample.
func describe(vals []float64) *models.ErrorStats {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	mean := Mean(vals)
	st := &models.ErrorStats{
		Count: len(vals),
		Mean:  Round2(mean),
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = Round2((sorted[mid-1] + sorted[mid]) / 2)
	} else {
		st.Median = Round2(sorted[mid])
	}
	if sd, ok := StdDev(vals, mean); ok {
		v := Round2(sd)
		st.StdDev = &v
	}
	return st
}

func Mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// StdDev is the sample standard deviation around mean. It needs at least
// two values.
func StdDev(vals []float64, mean float64) (float64, bool) {
	if len(vals) < 2 {
		return 0, false
	}
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(vals)-1)), true
}
