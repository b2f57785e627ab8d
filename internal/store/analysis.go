package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/db/migrations"
	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

// hourOf truncates a stored timestamp to its hour. SQLite keeps RFC3339
// text, so the first 13 characters are the date and hour.
func (s *Store) hourOf(col string) string {
	if s.db.Dialect == migrations.MySQL {
		return `DATE_FORMAT(` + col + `, '%Y-%m-%d %H')`
	}
	return `substr(` + col + `, 1, 13)`
}

// ForecastPairs matches every retained prediction with a target time in
// [from, to) to the observations taken in the same hour.
func (s *Store) ForecastPairs(ctx context.Context, locationID int64, from, to time.Time) ([]rollup.ForecastPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.collected_at, f.forecast_time, f.temperature, f.humidity, o.temperature, o.humidity
		FROM forecasts f
		JOIN observations o ON o.location_id = f.location_id AND `+s.hourOf("o.observed_at")+` = `+s.hourOf("f.forecast_time")+`
		WHERE f.location_id = ? AND f.forecast_time >= ? AND f.forecast_time < ?
		ORDER BY f.forecast_time, f.collected_at, o.observed_at`,
		locationID, utc(from), utc(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rollup.ForecastPair
	for rows.Next() {
		var (
			p                 rollup.ForecastPair
			collected, target sqlTime
			fh, ah            sql.NullInt64
		)
		if err := rows.Scan(&collected, &target, &p.ForecastTemp, &fh, &p.ActualTemp, &ah); err != nil {
			return nil, err
		}
		p.CollectedAt, p.TargetAt = collected.Time, target.Time
		p.ForecastHumidity, p.ActualHumidity = intPtr(fh), intPtr(ah)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ForecastAccuracy reports forecast error by lead time for targets in [from, to).
func (s *Store) ForecastAccuracy(ctx context.Context, locationID int64, from, to time.Time) ([]models.LeadTimeAccuracy, error) {
	pairs, err := s.ForecastPairs(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Matched %d forecast/observation pair(s) for location %d", len(pairs), locationID)
	return rollup.ForecastAccuracy(pairs), nil
}

// Anomalies scores one observation metric in [from, to) with a rolling z-score.
func (s *Store) Anomalies(ctx context.Context, locationID int64, metric string, from, to time.Time, window int, threshold float64) ([]models.AnomalyPoint, error) {
	obs, err := s.Observations(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}
	series, err := rollup.ObservationSeries(obs, metric)
	if err != nil {
		return nil, err
	}
	return rollup.DetectAnomalies(series, window, threshold), nil
}
