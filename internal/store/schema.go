package store

// Column describes one column for the text-to-query consumer.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description,omitempty"`
}

type Table struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Columns     []Column `json:"columns"`
	Keys        []string `json:"keys,omitempty"`
}

// Schema is the stable, documented shape of the store. Types are the
// logical types; each dialect maps them to its own storage types.
type Schema struct {
	Tables []Table  `json:"tables"`
	Notes  []string `json:"notes"`
}

// Table returns the named table or view.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Describe returns the schema description handed to the chatbot.
func Describe() Schema {
	return Schema{Tables: describedTables, Notes: schemaNotes}
}

var schemaNotes = []string{
	"All timestamps are UTC. Temperatures are Celsius, wind speed is meters/second, pressure is hPa.",
	"Percentages (humidity, clouds_percentage, precipitation_probability) are 0-100.",
	"forecasts keeps every collection run; for the current prediction of a forecast_time use the row with the greatest collected_at.",
	"weather_stats is derived from observations and may lag behind them.",
	"Only single read-only SELECT statements are accepted.",
}

func measurementColumns() []Column {
	return []Column{
		{Name: "temperature", Type: "decimal", Description: "air temperature, Celsius"},
		{Name: "feels_like", Type: "decimal", Nullable: true, Description: "apparent temperature, Celsius"},
		{Name: "humidity", Type: "integer", Nullable: true, Description: "relative humidity percent"},
		{Name: "pressure", Type: "integer", Nullable: true, Description: "sea-level pressure, hPa"},
		{Name: "wind_speed", Type: "decimal", Nullable: true, Description: "meters/second"},
		{Name: "wind_direction", Type: "integer", Nullable: true, Description: "degrees, meteorological"},
		{Name: "weather_condition", Type: "text", Description: "category such as Clear, Clouds, Rain"},
		{Name: "weather_description", Type: "text", Description: "free-text description"},
		{Name: "clouds_percentage", Type: "integer", Nullable: true, Description: "cloud cover percent"},
		{Name: "precipitation", Type: "decimal", Nullable: true, Description: "rain plus snow, mm"},
	}
}

var describedTables = []Table{
	{
		Name:        "locations",
		Kind:        "table",
		Description: "Tracked places. One row per (city_name, country_code).",
		Keys:        []string{"PRIMARY KEY (id)", "UNIQUE (city_name, country_code)"},
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "city_name", Type: "text"},
			{Name: "country_code", Type: "text", Description: "ISO 3166 alpha-2"},
			{Name: "latitude", Type: "decimal", Nullable: true},
			{Name: "longitude", Type: "decimal", Nullable: true},
			{Name: "population", Type: "integer", Nullable: true},
			{Name: "timezone", Type: "text", Nullable: true, Description: "IANA name or UTC offset such as UTC-05:00"},
			{Name: "created_at", Type: "timestamp"},
		},
	},
	{
		Name:        "observations",
		Kind:        "table",
		Description: "Current-conditions snapshots. One row per (location_id, observed_at).",
		Keys:        []string{"PRIMARY KEY (id)", "UNIQUE (location_id, observed_at)", "location_id REFERENCES locations(id)"},
		Columns: concat(
			[]Column{
				{Name: "id", Type: "integer"},
				{Name: "location_id", Type: "integer"},
				{Name: "observed_at", Type: "timestamp"},
			},
			measurementColumns(),
			[]Column{
				{Name: "visibility", Type: "integer", Nullable: true, Description: "meters"},
				{Name: "raw_data", Type: "json", Nullable: true, Description: "provider payload as received"},
			},
		),
	},
	{
		Name:        "forecasts",
		Kind:        "table",
		Description: "Predictions for forecast_time made at collected_at. Older collections are retained.",
		Keys:        []string{"PRIMARY KEY (id)", "UNIQUE (location_id, forecast_time, collected_at)", "location_id REFERENCES locations(id)"},
		Columns: concat(
			[]Column{
				{Name: "id", Type: "integer"},
				{Name: "location_id", Type: "integer"},
				{Name: "collected_at", Type: "timestamp", Description: "when the prediction was fetched"},
				{Name: "forecast_time", Type: "timestamp", Description: "the time being predicted"},
			},
			measurementColumns(),
			[]Column{
				{Name: "precipitation_probability", Type: "decimal", Nullable: true, Description: "percent"},
				{Name: "visibility", Type: "integer", Nullable: true, Description: "meters"},
			},
		),
	},
	{
		Name:        "weather_stats",
		Kind:        "table",
		Description: "Daily rollup of observations per UTC day.",
		Keys:        []string{"PRIMARY KEY (id)", "UNIQUE (location_id, stat_date)", "location_id REFERENCES locations(id)"},
		Columns: []Column{
			{Name: "id", Type: "integer"},
			{Name: "location_id", Type: "integer"},
			{Name: "stat_date", Type: "date", Description: "YYYY-MM-DD"},
			{Name: "min_temperature", Type: "decimal"},
			{Name: "max_temperature", Type: "decimal"},
			{Name: "avg_temperature", Type: "decimal"},
			{Name: "avg_humidity", Type: "decimal", Nullable: true},
			{Name: "dominant_condition", Type: "text", Description: "most frequent weather_condition"},
			{Name: "observation_count", Type: "integer"},
			{Name: "computed_at", Type: "timestamp"},
		},
	},
	{
		Name:        "latest_weather",
		Kind:        "view",
		Description: "The newest observation of each location joined with its location columns.",
		Columns: concat(
			[]Column{
				{Name: "location_id", Type: "integer"},
				{Name: "city_name", Type: "text"},
				{Name: "country_code", Type: "text"},
				{Name: "latitude", Type: "decimal", Nullable: true},
				{Name: "longitude", Type: "decimal", Nullable: true},
				{Name: "observed_at", Type: "timestamp"},
			},
			measurementColumns(),
			[]Column{{Name: "visibility", Type: "integer", Nullable: true, Description: "meters"}},
		),
	},
}

func concat(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
