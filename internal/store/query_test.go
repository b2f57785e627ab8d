package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ok    bool
	}{
		{"simple select", "SELECT * FROM latest_weather", true},
		{"trailing semicolon", "select city_name from locations;", true},
		{"cte", "WITH t AS (SELECT * FROM observations) SELECT COUNT(*) FROM t", true},
		{"keyword inside literal", "SELECT * FROM observations WHERE weather_description = 'update; drop'", true},
		{"column containing keyword", "SELECT created_at, offset_x FROM locations", true},
		{"empty", "   ", false},
		{"insert", "INSERT INTO locations (city_name) VALUES ('x')", false},
		{"delete", "DELETE FROM observations", false},
		{"stacked", "SELECT 1; DROP TABLE locations", false},
		{"select into", "SELECT * INTO OUTFILE '/tmp/x' FROM locations", false},
		{"pragma", "PRAGMA table_info(locations)", false},
		{"attach", "SELECT 1 FROM locations WHERE 1 = 1 UNION SELECT 1 FROM x ATTACH", false},
		{"line comment", "SELECT * FROM locations -- hi", false},
		{"block comment", "SELECT /* x */ * FROM locations", false},
		{"too long", "SELECT '" + strings.Repeat("a", store.MaxQueryLength) + "'", false},
		{"too many joins", "SELECT * FROM a JOIN b ON 1=1 JOIN c ON 1=1 JOIN d ON 1=1 JOIN e ON 1=1 JOIN f ON 1=1", false},
		{"sleep", "SELECT SLEEP(10)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ValidateReadOnly(tt.query)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, store.ErrUnsafeQuery)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for n := 0; n < 3; n++ {
		_, err := s.LoadUnit(ctx, models.Unit{Location: louisville(), Observation: obsAt(t0.Add(time.Duration(n)*time.Hour), float64(20+n), "Clear")})
		require.NoError(t, err)
	}

	res, err := s.Query(ctx, "SELECT city_name, temperature, weather_condition FROM latest_weather", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"city_name", "temperature", "weather_condition"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Louisville", res.Rows[0][0])
	assert.EqualValues(t, 22, res.Rows[0][1])
	assert.False(t, res.Truncated)

	res, err = s.Query(ctx, "SELECT temperature FROM observations ORDER BY observed_at", 2)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)

	_, err = s.Query(ctx, "DELETE FROM observations", 10)
	assert.ErrorIs(t, err, store.ErrUnsafeQuery)
	assert.EqualValues(t, 3, counts(t, s)["observations"])
}

func TestDescribe_MatchesDatabase(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	schema := store.Describe()

	require.Len(t, schema.Tables, 5)
	for _, table := range schema.Tables {
		t.Run(table.Name, func(t *testing.T) {
			rows, err := s.DB().QueryContext(ctx, "SELECT * FROM "+table.Name+" WHERE 1 = 0")
			require.NoError(t, err)
			defer rows.Close()

			cols, err := rows.Columns()
			require.NoError(t, err)

			described := make([]string, 0, len(table.Columns))
			for _, c := range table.Columns {
				described = append(described, c.Name)
			}
			assert.Equal(t, cols, described)
		})
	}

	view, ok := schema.Table("latest_weather")
	require.True(t, ok)
	assert.Equal(t, "view", view.Kind)
	_, ok = schema.Table("missing")
	assert.False(t, ok)
}
