package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	BackupFile  = "file"
	BackupMongo = "mongo"
)

// Config holds the application configuration
type Config struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	Units              models.Units
	UseOneCallV3       bool
	UseOneCallV25      bool
	UseDailyForecast   bool
	ForecastDays       int

	HTTPTimeout       time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	RequestsPerMinute int

	Locations []models.Location

	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	SQLitePath string

	BackupStore string
	BackupDir   string
	MongoURI    string
	MongoDB     string

	ScheduleAt  string
	RunOnStart  bool
	WorkerCount int
	HTTPAddr    string
	MCPAddr     string
	LogLevel    string
}

// Load reads the .env file, if any, and loads the configuration.
// It does not validate; call Validate before making network calls.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Could not read .env file: %v", err)
	}

	locations, err := loadLocations()
	if err != nil {
		return nil, &etlerr.ConfigurationError{Setting: "WEATHER_LOCATIONS", Msg: err.Error()}
	}

	cfg := &Config{
		OpenWeatherAPIKey:  os.Getenv("OPENWEATHERMAP_API_KEY"),
		OpenWeatherBaseURL: getenvDefault("OPENWEATHERMAP_BASE_URL", "https://api.openweathermap.org"),
		Units:              models.Units(getenvDefault("WEATHER_UNITS", string(models.UnitsMetric))),
		UseOneCallV3:       getenvBool("USE_ONECALL_V3", false),
		UseOneCallV25:      getenvBool("USE_ONECALL_V25", false),
		UseDailyForecast:   getenvBool("USE_DAILY_FORECAST", false),
		ForecastDays:       getenvInt("FORECAST_DAYS", 5),

		HTTPTimeout:       getenvDuration("HTTP_TIMEOUT", 10*time.Second),
		RetryAttempts:     getenvInt("API_RETRY_ATTEMPTS", 3),
		RetryDelay:        getenvDuration("API_RETRY_DELAY", 2*time.Second),
		RequestsPerMinute: getenvInt("API_RATE_PER_MINUTE", 60),

		Locations: locations,

		DBDriver:   getenvDefault("DB_DRIVER", DriverSQLite),
		DBHost:     getenvDefault("DB_HOST", "localhost"),
		DBPort:     getenvDefault("DB_PORT", "3306"),
		DBName:     getenvDefault("DB_NAME", "weather_db"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		SQLitePath: getenvDefault("SQLITE_PATH", "data/weather.db"),

		BackupStore: getenvDefault("BACKUP_STORE", BackupFile),
		BackupDir:   getenvDefault("BACKUP_DIR", "data/weather"),
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDB:     getenvDefault("MONGO_DB", "weather_backups"),

		ScheduleAt:  getenvDefault("SCHEDULE_AT", "01:00"),
		RunOnStart:  getenvBool("RUN_ON_START", true),
		WorkerCount: getenvInt("WORKER_COUNT", 4),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		MCPAddr:     os.Getenv("MCP_ADDR"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate reports the first setting that would make a run fail.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenWeatherAPIKey) == "" {
		return &etlerr.ConfigurationError{Setting: "OPENWEATHERMAP_API_KEY", Msg: "is required"}
	}
	if u, err := url.Parse(c.OpenWeatherBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &etlerr.ConfigurationError{Setting: "OPENWEATHERMAP_BASE_URL", Msg: fmt.Sprintf("invalid URL %q", c.OpenWeatherBaseURL)}
	}
	switch c.Units {
	case models.UnitsStandard, models.UnitsMetric, models.UnitsImperial:
	default:
		return &etlerr.ConfigurationError{Setting: "WEATHER_UNITS", Msg: fmt.Sprintf("unknown units %q", c.Units)}
	}
	if c.ForecastDays < 1 || c.ForecastDays > 16 {
		return &etlerr.ConfigurationError{Setting: "FORECAST_DAYS", Msg: "must be between 1 and 16"}
	}
	if c.RetryAttempts < 1 {
		return &etlerr.ConfigurationError{Setting: "API_RETRY_ATTEMPTS", Msg: "must be at least 1"}
	}
	if len(c.Locations) == 0 {
		return &etlerr.ConfigurationError{Setting: "WEATHER_LOCATIONS", Msg: "no locations configured"}
	}
	return c.ValidateStorage()
}

// ValidateStorage checks only the database and backup settings, which is
// all that read-only commands need.
func (c *Config) ValidateStorage() error {
	switch c.DBDriver {
	case DriverMySQL:
		if c.DBUser == "" {
			return &etlerr.ConfigurationError{Setting: "DB_USER", Msg: "is required for mysql"}
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return &etlerr.ConfigurationError{Setting: "SQLITE_PATH", Msg: "is required for sqlite"}
		}
	default:
		return &etlerr.ConfigurationError{Setting: "DB_DRIVER", Msg: fmt.Sprintf("unknown driver %q", c.DBDriver)}
	}
	switch c.BackupStore {
	case BackupFile:
	case BackupMongo:
		if c.MongoURI == "" {
			return &etlerr.ConfigurationError{Setting: "MONGO_URI", Msg: "is required when BACKUP_STORE=mongo"}
		}
	default:
		return &etlerr.ConfigurationError{Setting: "BACKUP_STORE", Msg: fmt.Sprintf("unknown store %q", c.BackupStore)}
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN with UTC time parsing.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func loadLocations() ([]models.Location, error) {
	if v := os.Getenv("WEATHER_LOCATIONS"); v != "" {
		return models.ParseLocations(v)
	}
	if v := os.Getenv("WEATHER_CITY"); v != "" {
		loc, err := models.ParseLocation(v)
		if err != nil {
			return nil, err
		}
		return []models.Location{loc}, nil
	}
	return []models.Location{models.DefaultLocation()}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logger.Warn("Ignoring invalid integer %s=%q", key, v)
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logger.Warn("Ignoring invalid boolean %s=%q", key, v)
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Warn("Ignoring invalid duration %s=%q", key, v)
	}
	return def
}
