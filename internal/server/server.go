// Package server exposes the read side of the store over HTTP.
package server

import (
	"context"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/pipeline"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const appName = "weather-etl"

// Reader is the read-only part of the store.
type Reader interface {
	FindLocation(ctx context.Context, city, country string) (*models.LocationRecord, error)
	Locations(ctx context.Context) ([]models.LocationRecord, error)
	LatestObservation(ctx context.Context, locationID int64) (*models.Observation, error)
	LatestForecasts(ctx context.Context, locationID int64, from, to time.Time) ([]models.ForecastEntry, error)
	DailyForecast(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailySummary, error)
	Stats(ctx context.Context, locationID int64, from, to time.Time) ([]models.DailyStats, error)
	ForecastAccuracy(ctx context.Context, locationID int64, from, to time.Time) ([]models.LeadTimeAccuracy, error)
	Anomalies(ctx context.Context, locationID int64, metric string, from, to time.Time, window int, threshold float64) ([]models.AnomalyPoint, error)
	Query(ctx context.Context, query string, maxRows int) (*store.QueryResult, error)
}

// RunLister reports the latest pipeline run per location.
type RunLister interface {
	LastRuns() map[string]*pipeline.RunSummary
}

type Options struct {
	Reader Reader
	Runs   RunLister
	Now    func() time.Time
	// AccessLog enables the fiber request logger.
	AccessLog bool
}

// New builds the fiber app with the health endpoint and the /api/v1 routes.
func New(opts Options) *fiber.App {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": appName,
		}
		if opts.Runs != nil {
			body["runs"] = opts.Runs.LastRuns()
		}
		return c.JSON(body)
	})

	RegisterRoutes(app, &handlers{reader: opts.Reader, now: opts.Now})
	return app
}
