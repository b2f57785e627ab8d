package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/db/migrations"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/models"
)

// LoadResult describes what one unit changed.
type LoadResult struct {
	LocationID          int64    `json:"location_id"`
	LocationCreated     bool     `json:"location_created"`
	FilledFields        []string `json:"filled_fields,omitempty"`
	ObservationReplaced bool     `json:"observation_replaced"`
	Observations        int      `json:"observations"`
	ForecastsInserted   int      `json:"forecasts_inserted"`
	ForecastsSkipped    int      `json:"forecasts_skipped"`
}

const (
	observationColumns = `location_id, observed_at, temperature, feels_like, humidity, pressure,
	wind_speed, wind_direction, weather_condition, weather_description,
	clouds_percentage, precipitation, visibility, raw_data`

	forecastColumns = `location_id, collected_at, forecast_time, temperature, feels_like, humidity, pressure,
	wind_speed, wind_direction, weather_condition, weather_description,
	clouds_percentage, precipitation, precipitation_probability, visibility`
)

// LoadUnit writes a location and its weather rows in one transaction. Any
// failed statement rolls the whole unit back and returns a LoadError naming
// the table. Failed writes are never retried here.
func (s *Store) LoadUnit(ctx context.Context, unit models.Unit) (*LoadResult, error) {
	if unit.Location.City == "" || unit.Location.Country == "" {
		return nil, &etlerr.LoadError{Table: "locations", Err: errors.New("location city and country are required")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &etlerr.LoadError{Table: "transaction", Err: err}
	}
	defer tx.Rollback()

	res := &LoadResult{}
	res.LocationID, res.LocationCreated, res.FilledFields, err = s.upsertLocation(ctx, tx, unit.Location)
	if err != nil {
		return nil, err
	}

	if unit.Observation != nil {
		res.ObservationReplaced, err = replaceObservation(ctx, tx, res.LocationID, unit.Observation)
		if err != nil {
			return nil, err
		}
		res.Observations = 1
	}

	insert := s.forecastInsert()
	for i := range unit.Forecasts {
		inserted, err := insertForecast(ctx, tx, insert, res.LocationID, &unit.Forecasts[i])
		if err != nil {
			return nil, err
		}
		if inserted {
			res.ForecastsInserted++
		} else {
			res.ForecastsSkipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &etlerr.LoadError{Table: "transaction", Err: err}
	}

	s.log.Info("Loaded %s,%s (location %d): observations=%d replaced=%t forecasts=%d skipped=%d",
		unit.Location.City, unit.Location.Country, res.LocationID, res.Observations,
		res.ObservationReplaced, res.ForecastsInserted, res.ForecastsSkipped)
	return res, nil
}

// upsertLocation resolves (city, country) to an id. An existing row only
// gains values for optional fields that are still NULL.
func (s *Store) upsertLocation(ctx context.Context, tx *sql.Tx, loc models.LocationRecord) (int64, bool, []string, error) {
	var (
		id       int64
		lat, lon sql.NullFloat64
		pop      sql.NullInt64
		tz       sql.NullString
	)
	lookup := `SELECT id, latitude, longitude, population, timezone FROM locations
	WHERE city_name = ? AND country_code = ?` + s.lockClause()
	err := s.retryLookup(ctx, func() error {
		return tx.QueryRowContext(ctx, lookup, loc.City, loc.Country).Scan(&id, &lat, &lon, &pop, &tz)
	})

	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO locations (city_name, country_code, latitude, longitude, population, timezone, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			loc.City, loc.Country, floatArg(loc.Latitude), floatArg(loc.Longitude),
			int64Arg(loc.Population), stringArg(loc.Timezone), utc(s.now()))
		if err != nil {
			return 0, false, nil, &etlerr.LoadError{Table: "locations", Err: err}
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, nil, &etlerr.LoadError{Table: "locations", Err: err}
		}
		return id, true, nil, nil
	}
	if err != nil {
		return 0, false, nil, &etlerr.LoadError{Table: "locations", Err: err}
	}

	var (
		sets   []string
		args   []any
		filled []string
	)
	fill := func(col string, present bool, v any) {
		if present || v == nil {
			return
		}
		// COALESCE keeps a value another writer set first.
		sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, ?)", col, col))
		args = append(args, v)
		filled = append(filled, col)
	}
	fill("latitude", lat.Valid, floatArg(loc.Latitude))
	fill("longitude", lon.Valid, floatArg(loc.Longitude))
	fill("population", pop.Valid, int64Arg(loc.Population))
	fill("timezone", tz.Valid, stringArg(loc.Timezone))

	if pop.Valid && loc.Population != nil && pop.Int64 != *loc.Population {
		s.log.Debug("Keeping population %d for location %d (payload had %d)", pop.Int64, id, *loc.Population)
	}
	if tz.Valid && loc.Timezone != nil && tz.String != *loc.Timezone {
		s.log.Debug("Keeping timezone %s for location %d (payload had %s)", tz.String, id, *loc.Timezone)
	}

	if len(sets) == 0 {
		return id, false, nil, nil
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, `UPDATE locations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return 0, false, nil, &etlerr.LoadError{Table: "locations", Err: err}
	}
	return id, false, filled, nil
}

// replaceObservation keeps at most one row per (location, observed_at).
func replaceObservation(ctx context.Context, tx *sql.Tx, locationID int64, o *models.Observation) (bool, error) {
	at := utc(o.ObservedAt)
	res, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE location_id = ? AND observed_at = ?`, locationID, at)
	if err != nil {
		return false, &etlerr.LoadError{Table: "observations", Err: err}
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, &etlerr.LoadError{Table: "observations", Err: err}
	}

	var raw any
	if len(o.Raw) > 0 {
		raw = string(o.Raw)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		locationID, at, o.Temperature, floatArg(o.FeelsLike), intArg(o.Humidity), intArg(o.Pressure),
		floatArg(o.WindSpeed), intArg(o.WindDirection), o.Condition, o.Description,
		intArg(o.CloudCover), floatArg(o.Precipitation), intArg(o.Visibility), raw)
	if err != nil {
		return false, &etlerr.LoadError{Table: "observations", Err: err}
	}
	return deleted > 0, nil
}

// forecastInsert adds a no-op conflict clause so loading the same collection
// twice leaves the first row untouched.
func (s *Store) forecastInsert() string {
	stmt := `INSERT INTO forecasts (` + forecastColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.db.Dialect == migrations.MySQL {
		return stmt + ` ON DUPLICATE KEY UPDATE id = id`
	}
	return stmt + ` ON CONFLICT (location_id, forecast_time, collected_at) DO NOTHING`
}

func insertForecast(ctx context.Context, tx *sql.Tx, stmt string, locationID int64, f *models.ForecastEntry) (bool, error) {
	res, err := tx.ExecContext(ctx, stmt,
		locationID, utc(f.CollectedAt), utc(f.TargetAt), f.Temperature, floatArg(f.FeelsLike),
		intArg(f.Humidity), intArg(f.Pressure), floatArg(f.WindSpeed), intArg(f.WindDirection),
		f.Condition, f.Description, intArg(f.CloudCover), floatArg(f.Precipitation),
		floatArg(f.PrecipitationProbability), intArg(f.Visibility))
	if err != nil {
		return false, &etlerr.LoadError{Table: "forecasts", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &etlerr.LoadError{Table: "forecasts", Err: err}
	}
	return n > 0, nil
}

// RecomputeStats rebuilds weather_stats for the UTC days from..to inclusive
// from the observations table. Existing rows in the range are replaced.
func (s *Store) RecomputeStats(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyStats, error) {
	start := startOfDay(from)
	end := startOfDay(to).AddDate(0, 0, 1)
	if !end.After(start) {
		return nil, &etlerr.LoadError{Table: "weather_stats", Err: fmt.Errorf("invalid range %s..%s", from.Format(rollup.DateLayout), to.Format(rollup.DateLayout))}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &etlerr.LoadError{Table: "transaction", Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT observed_at, temperature, humidity, weather_condition FROM observations
		WHERE location_id = ? AND observed_at >= ? AND observed_at < ?
		ORDER BY observed_at`, locationID, start, end)
	if err != nil {
		return nil, &etlerr.LoadError{Table: "observations", Err: err}
	}
	var obs []models.Observation
	for rows.Next() {
		var (
			at       sqlTime
			o        models.Observation
			humidity sql.NullInt64
		)
		if err := rows.Scan(&at, &o.Temperature, &humidity, &o.Condition); err != nil {
			rows.Close()
			return nil, &etlerr.LoadError{Table: "observations", Err: err}
		}
		o.ObservedAt, o.Humidity = at.Time, intPtr(humidity)
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &etlerr.LoadError{Table: "observations", Err: err}
	}
	rows.Close()

	stats := rollup.DailyObservations(locationID, obs)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM weather_stats WHERE location_id = ? AND stat_date >= ? AND stat_date < ?`,
		locationID, start.Format(rollup.DateLayout), end.Format(rollup.DateLayout)); err != nil {
		return nil, &etlerr.LoadError{Table: "weather_stats", Err: err}
	}

	computedAt := utc(s.now())
	for _, st := range stats {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weather_stats (location_id, stat_date, min_temperature, max_temperature, avg_temperature,
			avg_humidity, dominant_condition, observation_count, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.LocationID, st.Date, st.MinTemperature, st.MaxTemperature, st.AvgTemperature,
			floatArg(st.AvgHumidity), st.DominantCondition, st.ObservationCount, computedAt); err != nil {
			return nil, &etlerr.LoadError{Table: "weather_stats", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &etlerr.LoadError{Table: "transaction", Err: err}
	}
	s.log.Info("Recomputed %d stats day(s) for location %d", len(stats), locationID)
	return stats, nil
}

// PruneForecasts deletes predictions collected before the cut-off.
func (s *Store) PruneForecasts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forecasts WHERE collected_at < ?`, utc(before))
	if err != nil {
		return 0, &etlerr.LoadError{Table: "forecasts", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &etlerr.LoadError{Table: "forecasts", Err: err}
	}
	s.log.Info("Pruned %d forecast row(s) collected before %s", n, utc(before).Format(time.RFC3339))
	return n, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
