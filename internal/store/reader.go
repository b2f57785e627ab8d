package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const locationColumns = `id, city_name, country_code, latitude, longitude, population, timezone`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(r rowScanner) (models.LocationRecord, error) {
	var (
		loc      models.LocationRecord
		lat, lon sql.NullFloat64
		pop      sql.NullInt64
		tz       sql.NullString
	)
	if err := r.Scan(&loc.ID, &loc.City, &loc.Country, &lat, &lon, &pop, &tz); err != nil {
		return loc, err
	}
	loc.Latitude, loc.Longitude = floatPtr(lat), floatPtr(lon)
	if pop.Valid {
		v := pop.Int64
		loc.Population = &v
	}
	if tz.Valid {
		v := tz.String
		loc.Timezone = &v
	}
	return loc, nil
}

// FindLocation returns ErrNotFound when the pair has never been loaded.
func (s *Store) FindLocation(ctx context.Context, city, country string) (*models.LocationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE city_name = ? AND country_code = ?`, city, country)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *Store) Locations(ctx context.Context) ([]models.LocationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY city_name, country_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LocationRecord
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// measurement holds the nullable columns shared by observations and forecasts.
type measurement struct {
	feelsLike, windSpeed, precipitation sql.NullFloat64
	humidity, pressure, windDirection   sql.NullInt64
	clouds, visibility                  sql.NullInt64
}

func (m *measurement) apply(o *models.Observation) {
	o.FeelsLike, o.WindSpeed, o.Precipitation = floatPtr(m.feelsLike), floatPtr(m.windSpeed), floatPtr(m.precipitation)
	o.Humidity, o.Pressure, o.WindDirection = intPtr(m.humidity), intPtr(m.pressure), intPtr(m.windDirection)
	o.CloudCover, o.Visibility = intPtr(m.clouds), intPtr(m.visibility)
}

const observationSelect = `observed_at, temperature, feels_like, humidity, pressure, wind_speed, wind_direction,
	weather_condition, weather_description, clouds_percentage, precipitation, visibility`

func scanObservation(r rowScanner, extra ...any) (models.Observation, error) {
	var (
		o  models.Observation
		at sqlTime
		m  measurement
	)
	dest := []any{&at, &o.Temperature, &m.feelsLike, &m.humidity, &m.pressure, &m.windSpeed, &m.windDirection,
		&o.Condition, &o.Description, &m.clouds, &m.precipitation, &m.visibility}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return o, err
	}
	o.ObservedAt = at.Time
	m.apply(&o)
	return o, nil
}

// LatestObservation reads the latest_weather view.
func (s *Store) LatestObservation(ctx context.Context, locationID int64) (*models.Observation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+observationSelect+` FROM latest_weather WHERE location_id = ?`, locationID)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Observations returns rows observed in [from, to), oldest first, with the
// raw payload attached.
func (s *Store) Observations(ctx context.Context, locationID int64, from, to time.Time) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+observationSelect+`, raw_data FROM observations
		WHERE location_id = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at`, locationID, utc(from), utc(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var raw sql.NullString
		o, err := scanObservation(rows, &raw)
		if err != nil {
			return nil, err
		}
		if raw.Valid {
			o.Raw = json.RawMessage(raw.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const forecastSelect = `f.collected_at, f.forecast_time, f.temperature, f.feels_like, f.humidity, f.pressure,
	f.wind_speed, f.wind_direction, f.weather_condition, f.weather_description, f.clouds_percentage,
	f.precipitation, f.precipitation_probability, f.visibility`

func scanForecasts(rows *sql.Rows) ([]models.ForecastEntry, error) {
	defer rows.Close()

	var out []models.ForecastEntry
	for rows.Next() {
		var (
			f                 models.ForecastEntry
			collected, target sqlTime
			m                 measurement
			pop               sql.NullFloat64
		)
		if err := rows.Scan(&collected, &target, &f.Temperature, &m.feelsLike, &m.humidity, &m.pressure,
			&m.windSpeed, &m.windDirection, &f.Condition, &f.Description, &m.clouds,
			&m.precipitation, &pop, &m.visibility); err != nil {
			return nil, err
		}
		var o models.Observation
		m.apply(&o)
		f.CollectedAt, f.TargetAt = collected.Time, target.Time
		f.FeelsLike, f.Humidity, f.Pressure = o.FeelsLike, o.Humidity, o.Pressure
		f.WindSpeed, f.WindDirection, f.CloudCover = o.WindSpeed, o.WindDirection, o.CloudCover
		f.Precipitation, f.Visibility = o.Precipitation, o.Visibility
		f.PrecipitationProbability = floatPtr(pop)
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestForecasts returns one entry per target time in [from, to): the one
// from the newest collection run.
func (s *Store) LatestForecasts(ctx context.Context, locationID int64, from, to time.Time) ([]models.ForecastEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+forecastSelect+` FROM forecasts f
		WHERE f.location_id = ? AND f.forecast_time >= ? AND f.forecast_time < ?
		AND f.collected_at = (
			SELECT MAX(f2.collected_at) FROM forecasts f2
			WHERE f2.location_id = f.location_id AND f2.forecast_time = f.forecast_time
		)
		ORDER BY f.forecast_time`, locationID, utc(from), utc(to))
	if err != nil {
		return nil, err
	}
	return scanForecasts(rows)
}

// ForecastHistory returns every retained prediction for one target time,
// oldest collection first.
func (s *Store) ForecastHistory(ctx context.Context, locationID int64, target time.Time) ([]models.ForecastEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+forecastSelect+` FROM forecasts f
		WHERE f.location_id = ? AND f.forecast_time = ?
		ORDER BY f.collected_at`, locationID, utc(target))
	if err != nil {
		return nil, err
	}
	return scanForecasts(rows)
}

// DailyForecast summarizes the newest forecasts per UTC day.
func (s *Store) DailyForecast(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailySummary, error) {
	entries, err := s.LatestForecasts(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}
	return rollup.DailyForecast(entries), nil
}

// Stats returns weather_stats rows for the UTC days from..to inclusive.
func (s *Store) Stats(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, stat_date, min_temperature, max_temperature, avg_temperature,
		avg_humidity, dominant_condition, observation_count
		FROM weather_stats
		WHERE location_id = ? AND stat_date >= ? AND stat_date <= ?
		ORDER BY stat_date`,
		locationID, from.UTC().Format(rollup.DateLayout), to.UTC().Format(rollup.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyStats
	for rows.Next() {
		var (
			st       models.DailyStats
			humidity sql.NullFloat64
		)
		if err := rows.Scan(&st.LocationID, &st.Date, &st.MinTemperature, &st.MaxTemperature, &st.AvgTemperature,
			&humidity, &st.DominantCondition, &st.ObservationCount); err != nil {
			return nil, err
		}
		st.AvgHumidity = floatPtr(humidity)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Counts returns the row count of each table.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 4)
	for _, table := range []string{"locations", "observations", "forecasts", "weather_stats"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, err
		}
		out[table] = n
	}
	return out, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
