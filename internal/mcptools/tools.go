// Package mcptools exposes the weather database to chat assistants as MCP
// tools. Every tool is read-only.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Reader is the part of the store the tools need.
type Reader interface {
	FindLocation(ctx context.Context, city, country string) (*models.LocationRecord, error)
	Locations(ctx context.Context) ([]models.LocationRecord, error)
	LatestObservation(ctx context.Context, locationID int64) (*models.Observation, error)
	ForecastAccuracy(ctx context.Context, locationID int64, from, to time.Time) ([]models.LeadTimeAccuracy, error)
	Anomalies(ctx context.Context, locationID int64, metric string, from, to time.Time, window int, threshold float64) ([]models.AnomalyPoint, error)
	Query(ctx context.Context, query string, maxRows int) (*store.QueryResult, error)
}

type Tools struct {
	Reader Reader
	Now    func() time.Time
}

type QueryInput struct {
	SQL     string `json:"sql" jsonschema:"A single SELECT or WITH statement against the tables from describe_schema"`
	MaxRows int    `json:"max_rows,omitempty" jsonschema:"Row cap, 1 to 1000; defaults to 100"`
}

type LocationInput struct {
	City    string `json:"city" jsonschema:"City name, e.g. Louisville"`
	Country string `json:"country" jsonschema:"ISO 3166 alpha-2 country code, e.g. US"`
}

type RangeInput struct {
	City    string `json:"city" jsonschema:"City name, e.g. Louisville"`
	Country string `json:"country" jsonschema:"ISO 3166 alpha-2 country code, e.g. US"`
	From    string `json:"from,omitempty" jsonschema:"Start date (YYYY-MM-DD or RFC3339); defaults to 7 days ago"`
	To      string `json:"to,omitempty" jsonschema:"End date, exclusive (YYYY-MM-DD or RFC3339); defaults to now"`
}

type AnomalyInput struct {
	City      string  `json:"city" jsonschema:"City name, e.g. Louisville"`
	Country   string  `json:"country" jsonschema:"ISO 3166 alpha-2 country code, e.g. US"`
	From      string  `json:"from,omitempty" jsonschema:"Start date (YYYY-MM-DD or RFC3339); defaults to 7 days ago"`
	To        string  `json:"to,omitempty" jsonschema:"End date, exclusive (YYYY-MM-DD or RFC3339); defaults to now"`
	Metric    string  `json:"metric,omitempty" jsonschema:"temperature, feels_like, humidity, pressure, wind_speed or precipitation; defaults to temperature"`
	Window    int     `json:"window,omitempty" jsonschema:"Rolling window in observations; defaults to 24"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Absolute z-score above which a value is flagged; defaults to 2"`
}

// NewServer creates the MCP server with all tools registered.
func NewServer(r Reader, version string) *mcp.Server {
	t := &Tools{Reader: r, Now: time.Now}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "weather-etl",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "describe_schema",
		Description: "Describe the weather tables and views, their columns, units and keys",
	}, t.DescribeSchema)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_locations",
		Description: "List the tracked locations",
	}, t.ListLocations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "latest_weather",
		Description: "Get the most recent observation for a location",
	}, t.LatestWeather)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "forecast_accuracy",
		Description: "Compare past forecasts with what was observed, grouped by how far ahead they were made",
	}, t.ForecastAccuracy)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "detect_anomalies",
		Description: "Flag unusual observations of one metric using a rolling z-score",
	}, t.DetectAnomalies)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "run_select_query",
		Description: "Run a read-only SQL query; statements that could modify data are rejected",
	}, t.RunSelectQuery)

	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, nil)
}

func (t *Tools) DescribeSchema(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(store.Describe())
}

func (t *Tools) ListLocations(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	locs, err := t.Reader.Locations(ctx)
	if err != nil {
		return toolError("Failed to list locations: %v", err), nil, nil
	}
	if locs == nil {
		locs = []models.LocationRecord{}
	}
	return toolJSON(locs)
}

func (t *Tools) LatestWeather(ctx context.Context, _ *mcp.CallToolRequest, input LocationInput) (*mcp.CallToolResult, any, error) {
	rec, failed := t.findLocation(ctx, input.City, input.Country)
	if failed != nil {
		return failed, nil, nil
	}

	obs, err := t.Reader.LatestObservation(ctx, rec.ID)
	if errors.Is(err, store.ErrNotFound) {
		return toolError("No observations stored for %s,%s yet", rec.City, rec.Country), nil, nil
	}
	if err != nil {
		return toolError("Failed to fetch weather: %v", err), nil, nil
	}
	return toolJSON(map[string]any{"location": rec, "observation": obs})
}

func (t *Tools) findLocation(ctx context.Context, city, country string) (*models.LocationRecord, *mcp.CallToolResult) {
	if city == "" || country == "" {
		return nil, toolError("Both city and country are required")
	}
	loc, err := models.ParseLocation(city + "," + country)
	if err != nil {
		return nil, toolError("Invalid location: %v", err)
	}

	rec, err := t.Reader.FindLocation(ctx, loc.City, loc.Country)
	if errors.Is(err, store.ErrNotFound) {
		return nil, toolError("Location %s is not tracked", loc)
	}
	if err != nil {
		return nil, toolError("Failed to look up location: %v", err)
	}
	return rec, nil
}

func (t *Tools) ForecastAccuracy(ctx context.Context, _ *mcp.CallToolRequest, input RangeInput) (*mcp.CallToolResult, any, error) {
	rec, from, to, failed := t.resolveRange(ctx, input)
	if failed != nil {
		return failed, nil, nil
	}
	acc, err := t.Reader.ForecastAccuracy(ctx, rec.ID, from, to)
	if err != nil {
		return toolError("Failed to compute forecast accuracy: %v", err), nil, nil
	}
	if acc == nil {
		acc = []models.LeadTimeAccuracy{}
	}
	return toolJSON(map[string]any{"location": rec, "from": from, "to": to, "lead_times": acc})
}

func (t *Tools) DetectAnomalies(ctx context.Context, _ *mcp.CallToolRequest, input AnomalyInput) (*mcp.CallToolResult, any, error) {
	if input.Metric == "" {
		input.Metric = "temperature"
	}
	if input.Window == 0 {
		input.Window = rollup.DefaultAnomalyWindow
	}
	if input.Threshold == 0 {
		input.Threshold = rollup.DefaultAnomalyThreshold
	}
	if input.Window < 2 || input.Threshold < 0 {
		return toolError("window must be at least 2 and threshold positive"), nil, nil
	}

	rec, from, to, failed := t.resolveRange(ctx, RangeInput{City: input.City, Country: input.Country, From: input.From, To: input.To})
	if failed != nil {
		return failed, nil, nil
	}
	points, err := t.Reader.Anomalies(ctx, rec.ID, input.Metric, from, to, input.Window, input.Threshold)
	if err != nil {
		return toolError("Failed to detect anomalies: %v", err), nil, nil
	}

	var flagged []models.AnomalyPoint
	for _, p := range points {
		if p.Anomaly {
			flagged = append(flagged, p)
		}
	}
	if flagged == nil {
		flagged = []models.AnomalyPoint{}
	}
	return toolJSON(map[string]any{
		"location":  rec,
		"metric":    input.Metric,
		"checked":   len(points),
		"anomalies": flagged,
	})
}

// resolveRange looks up the location and parses the window. A non-nil
// result is the error to return to the client.
func (t *Tools) resolveRange(ctx context.Context, in RangeInput) (*models.LocationRecord, time.Time, time.Time, *mcp.CallToolResult) {
	var zero time.Time
	rec, failed := t.findLocation(ctx, in.City, in.Country)
	if failed != nil {
		return nil, zero, zero, failed
	}

	now := t.Now().UTC()
	from, to := now.AddDate(0, 0, -7), now
	var err error
	if in.From != "" {
		if from, err = parseTime(in.From); err != nil {
			return nil, zero, zero, toolError("Invalid from: %v", err)
		}
	}
	if in.To != "" {
		if to, err = parseTime(in.To); err != nil {
			return nil, zero, zero, toolError("Invalid to: %v", err)
		}
	}
	if !to.After(from) {
		return nil, zero, zero, toolError("to must be after from")
	}
	return rec, from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse(rollup.DateLayout, s)
}

func (t *Tools) RunSelectQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, any, error) {
	if input.MaxRows < 0 || input.MaxRows > store.MaxRowCap {
		return toolError("max_rows must be between 1 and %d", store.MaxRowCap), nil, nil
	}
	res, err := t.Reader.Query(ctx, input.SQL, input.MaxRows)
	if errors.Is(err, store.ErrUnsafeQuery) {
		return toolError("Query rejected: %v", err), nil, nil
	}
	if err != nil {
		return toolError("Query failed: %v", err), nil, nil
	}
	return toolJSON(res)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
