package server

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jszwec/csvutil"
)

var validate = validator.New()

type handlers struct {
	reader Reader
	now    func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *handlers) {
	v1 := app.Group("/api/v1")

	v1.Get("/schema", func(c *fiber.Ctx) error {
		return c.JSON(store.Describe())
	})
	v1.Get("/locations", h.locations)
	v1.Get("/weather/latest", h.latest)
	v1.Get("/forecast", h.forecast)
	v1.Get("/forecast/daily", h.dailyForecast)
	v1.Get("/stats", h.stats)
	v1.Get("/forecast/accuracy", h.accuracy)
	v1.Get("/anomalies", h.anomalies)
	v1.Post("/query", h.query)
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	City    string `validate:"required,max=128"`
	Country string `validate:"required,len=2,alpha"`
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	q := locationQuery{City: c.Query("city"), Country: c.Query("country")}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// resolve maps the query onto a stored location, normalizing names the same
// way configured locations are normalized.
func (h *handlers) resolve(c *fiber.Ctx) (*models.LocationRecord, error) {
	q, err := parseLocationQuery(c)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	loc, err := models.ParseLocation(q.City + "," + q.Country)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	rec, err := h.reader.FindLocation(c.UserContext(), loc.City, loc.Country)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("location %s is not tracked", loc))
	}
	if err != nil {
		return nil, internal("failed to look up location", err)
	}
	return rec, nil
}

func (h *handlers) locations(c *fiber.Ctx) error {
	locs, err := h.reader.Locations(c.UserContext())
	if err != nil {
		return internal("failed to list locations", err)
	}
	if locs == nil {
		locs = []models.LocationRecord{}
	}
	return c.JSON(locs)
}

func (h *handlers) latest(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	obs, err := h.reader.LatestObservation(c.UserContext(), loc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
	}
	if err != nil {
		return internal("failed to fetch weather data", err)
	}
	return c.JSON(fiber.Map{"location": loc, "observation": obs})
}

// rangeQuery holds an optional time window; defaults are filled by bind.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *rangeQuery) bind(c *fiber.Ctx, from, to time.Time) error {
	r.From, r.To = from, to
	if s := c.Query("from"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		r.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		r.To = t
	}
	return validate.Struct(r)
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	var r rangeQuery
	if err := r.bind(c, now, now.AddDate(0, 0, 5)); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	entries, err := h.reader.LatestForecasts(c.UserContext(), loc.ID, r.From, r.To)
	if err != nil {
		return internal("failed to fetch forecasts", err)
	}
	if entries == nil {
		entries = []models.ForecastEntry{}
	}
	return c.JSON(fiber.Map{"location": loc, "from": r.From, "to": r.To, "forecasts": entries})
}

type dailyQuery struct {
	Days int `validate:"required,min=1,max=16"`
}

func (h *handlers) dailyForecast(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	q := dailyQuery{Days: c.QueryInt("days", 5)}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	y, m, d := h.now().UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days, err := h.reader.DailyForecast(c.UserContext(), loc.ID, from, from.AddDate(0, 0, q.Days))
	if err != nil {
		return internal("failed to summarize forecasts", err)
	}
	if days == nil {
		days = []models.DailySummary{}
	}
	return c.JSON(fiber.Map{"location": loc, "days": days})
}

type statsQuery struct {
	rangeQuery
	Format string `validate:"omitempty,oneof=json csv"`
}

func (h *handlers) stats(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	today := h.now().UTC()
	q := statsQuery{Format: c.Query("format", "json")}
	if err := q.bind(c, today.AddDate(0, 0, -7), today); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.reader.Stats(c.UserContext(), loc.ID, q.From, q.To)
	if err != nil {
		return internal("failed to fetch stats", err)
	}
	if stats == nil {
		stats = []models.DailyStats{}
	}

	if q.Format == "csv" {
		out, err := csvutil.Marshal(stats)
		if err != nil {
			return internal("failed to encode stats", err)
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_stats.csv"`, models.Location{City: loc.City, Country: loc.Country}.Key()))
		return c.Send(out)
	}
	return c.JSON(fiber.Map{"location": loc, "stats": stats})
}

func (h *handlers) accuracy(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	var r rangeQuery
	if err := r.bind(c, now.AddDate(0, 0, -7), now); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	acc, err := h.reader.ForecastAccuracy(c.UserContext(), loc.ID, r.From, r.To)
	if err != nil {
		return internal("failed to compute forecast accuracy", err)
	}
	if acc == nil {
		acc = []models.LeadTimeAccuracy{}
	}
	return c.JSON(fiber.Map{"location": loc, "from": r.From, "to": r.To, "lead_times": acc})
}

type anomalyQuery struct {
	rangeQuery
	Metric    string  `validate:"required,oneof=temperature feels_like humidity pressure wind_speed precipitation"`
	Window    int     `validate:"min=2,max=720"`
	Threshold float64 `validate:"gt=0"`
}

func (h *handlers) anomalies(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	q := anomalyQuery{
		Metric:    c.Query("metric", "temperature"),
		Window:    c.QueryInt("window", rollup.DefaultAnomalyWindow),
		Threshold: c.QueryFloat("threshold", rollup.DefaultAnomalyThreshold),
	}
	if err := q.bind(c, now.AddDate(0, 0, -7), now); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	points, err := h.reader.Anomalies(c.UserContext(), loc.ID, q.Metric, q.From, q.To, q.Window, q.Threshold)
	if err != nil {
		return internal("failed to detect anomalies", err)
	}
	flagged := 0
	for _, p := range points {
		if p.Anomaly {
			flagged++
		}
	}
	if points == nil {
		points = []models.AnomalyPoint{}
	}
	return c.JSON(fiber.Map{"location": loc, "metric": q.Metric, "anomalies": flagged, "points": points})
}

type queryRequest struct {
	SQL     string `json:"sql" validate:"required"`
	MaxRows int    `json:"max_rows" validate:"omitempty,min=1,max=1000"`
}

func (h *handlers) query(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.reader.Query(c.UserContext(), req.SQL, req.MaxRows)
	if errors.Is(err, store.ErrUnsafeQuery) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		// Syntax errors in generated SQL are the caller's problem.
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(res)
}

func internal(msg string, err error) error {
	logger.Error("%s: %v", msg, err)
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

// parseTime accepts RFC3339, a YYYY-MM-DD date or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(rollup.DateLayout, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
