package migrations

import "github.com/AbdulWasayUl/go-weather-etl/models"

// Dialect names match config.DriverMySQL and config.DriverSQLite.
const (
	MySQL  = "mysql"
	SQLite = "sqlite"
)

// For returns the ordered schema migrations for a dialect. Names are shared
// across dialects so a database records the same history either way.
func For(dialect string) []models.Migration {
	ddl := sqliteDDL
	if dialect == MySQL {
		ddl = mysqlDDL
	}

	out := make([]models.Migration, 0, len(order))
	for _, name := range order {
		out = append(out, models.Migration{Name: name, Statements: ddl[name]})
	}
	return out
}

var order = []string{
	"001_create_locations",
	"002_create_observations",
	"003_create_forecasts",
	"004_create_weather_stats",
	"005_create_latest_weather_view",
}

// latestWeatherView is portable between both dialects.
const latestWeatherView = `
SELECT
	l.id AS location_id,
	l.city_name,
	l.country_code,
	l.latitude,
	l.longitude,
	o.observed_at,
	o.temperature,
	o.feels_like,
	o.humidity,
	o.pressure,
	o.wind_speed,
	o.wind_direction,
	o.weather_condition,
	o.weather_description,
	o.clouds_percentage,
	o.precipitation,
	o.visibility
FROM locations l
JOIN observations o ON o.location_id = l.id
WHERE o.observed_at = (
	SELECT MAX(o2.observed_at) FROM observations o2 WHERE o2.location_id = l.id
)`

var sqliteDDL = map[string][]string{
	"001_create_locations": {
		`CREATE TABLE IF NOT EXISTS locations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	city_name    TEXT NOT NULL,
	country_code TEXT NOT NULL,
	latitude     REAL,
	longitude    REAL,
	population   INTEGER,
	timezone     TEXT,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (city_name, country_code)
)`,
	},
	"002_create_observations": {
		`CREATE TABLE IF NOT EXISTS observations (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id         INTEGER NOT NULL REFERENCES locations(id),
	observed_at         TIMESTAMP NOT NULL,
	temperature         REAL NOT NULL,
	feels_like          REAL,
	humidity            INTEGER,
	pressure            INTEGER,
	wind_speed          REAL,
	wind_direction      INTEGER,
	weather_condition   TEXT NOT NULL,
	weather_description TEXT NOT NULL DEFAULT '',
	clouds_percentage   INTEGER,
	precipitation       REAL,
	visibility          INTEGER,
	raw_data            TEXT,
	UNIQUE (location_id, observed_at)
)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations (observed_at)`,
	},
	"003_create_forecasts": {
		`CREATE TABLE IF NOT EXISTS forecasts (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id               INTEGER NOT NULL REFERENCES locations(id),
	collected_at              TIMESTAMP NOT NULL,
	forecast_time             TIMESTAMP NOT NULL,
	temperature               REAL NOT NULL,
	feels_like                REAL,
	humidity                  INTEGER,
	pressure                  INTEGER,
	wind_speed                REAL,
	wind_direction            INTEGER,
	weather_condition         TEXT NOT NULL,
	weather_description       TEXT NOT NULL DEFAULT '',
	clouds_percentage         INTEGER,
	precipitation             REAL,
	precipitation_probability REAL,
	visibility                INTEGER,
	UNIQUE (location_id, forecast_time, collected_at)
)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_collected_at ON forecasts (collected_at)`,
	},
	"004_create_weather_stats": {
		`CREATE TABLE IF NOT EXISTS weather_stats (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id        INTEGER NOT NULL REFERENCES locations(id),
	stat_date          TEXT NOT NULL,
	min_temperature    REAL NOT NULL,
	max_temperature    REAL NOT NULL,
	avg_temperature    REAL NOT NULL,
	avg_humidity       REAL,
	dominant_condition TEXT NOT NULL DEFAULT '',
	observation_count  INTEGER NOT NULL,
	computed_at        TIMESTAMP NOT NULL,
	UNIQUE (location_id, stat_date)
)`,
	},
	"005_create_latest_weather_view": {
		`CREATE VIEW IF NOT EXISTS latest_weather AS` + latestWeatherView,
	},
}

// DATETIME columns hold UTC; the DSN pins loc=UTC. raw_data is LONGTEXT
// rather than JSON so the stored bytes are exactly what the provider sent.
var mysqlDDL = map[string][]string{
	"001_create_locations": {
		`CREATE TABLE IF NOT EXISTS locations (
	id           BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	city_name    VARCHAR(128) NOT NULL,
	country_code VARCHAR(8) NOT NULL,
	latitude     DECIMAL(9,6) NULL,
	longitude    DECIMAL(9,6) NULL,
	population   BIGINT NULL,
	timezone     VARCHAR(64) NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_locations_city_country (city_name, country_code)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"002_create_observations": {
		`CREATE TABLE IF NOT EXISTS observations (
	id                  BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	location_id         BIGINT NOT NULL,
	observed_at         DATETIME NOT NULL,
	temperature         DECIMAL(6,2) NOT NULL,
	feels_like          DECIMAL(6,2) NULL,
	humidity            INT NULL,
	pressure            INT NULL,
	wind_speed          DECIMAL(6,2) NULL,
	wind_direction      INT NULL,
	weather_condition   VARCHAR(64) NOT NULL,
	weather_description VARCHAR(255) NOT NULL DEFAULT '',
	clouds_percentage   INT NULL,
	precipitation       DECIMAL(7,2) NULL,
	visibility          INT NULL,
	raw_data            LONGTEXT NULL,
	UNIQUE KEY uq_observations_location_time (location_id, observed_at),
	KEY idx_observations_observed_at (observed_at),
	CONSTRAINT fk_observations_location FOREIGN KEY (location_id) REFERENCES locations (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"003_create_forecasts": {
		`CREATE TABLE IF NOT EXISTS forecasts (
	id                        BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	location_id               BIGINT NOT NULL,
	collected_at              DATETIME NOT NULL,
	forecast_time             DATETIME NOT NULL,
	temperature               DECIMAL(6,2) NOT NULL,
	feels_like                DECIMAL(6,2) NULL,
	humidity                  INT NULL,
	pressure                  INT NULL,
	wind_speed                DECIMAL(6,2) NULL,
	wind_direction            INT NULL,
	weather_condition         VARCHAR(64) NOT NULL,
	weather_description       VARCHAR(255) NOT NULL DEFAULT '',
	clouds_percentage         INT NULL,
	precipitation             DECIMAL(7,2) NULL,
	precipitation_probability DECIMAL(5,2) NULL,
	visibility                INT NULL,
	UNIQUE KEY uq_forecasts_location_target_collected (location_id, forecast_time, collected_at),
	KEY idx_forecasts_collected_at (collected_at),
	CONSTRAINT fk_forecasts_location FOREIGN KEY (location_id) REFERENCES locations (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"004_create_weather_stats": {
		`CREATE TABLE IF NOT EXISTS weather_stats (
	id                 BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	location_id        BIGINT NOT NULL,
	stat_date          CHAR(10) NOT NULL,
	min_temperature    DECIMAL(6,2) NOT NULL,
	max_temperature    DECIMAL(6,2) NOT NULL,
	avg_temperature    DECIMAL(6,2) NOT NULL,
	avg_humidity       DECIMAL(5,2) NULL,
	dominant_condition VARCHAR(64) NOT NULL DEFAULT '',
	observation_count  INT NOT NULL,
	computed_at        DATETIME NOT NULL,
	UNIQUE KEY uq_weather_stats_location_date (location_id, stat_date),
	CONSTRAINT fk_weather_stats_location FOREIGN KEY (location_id) REFERENCES locations (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"005_create_latest_weather_view": {
		`CREATE OR REPLACE VIEW latest_weather AS` + latestWeatherView,
	},
}
