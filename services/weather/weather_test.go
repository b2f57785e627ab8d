package weather_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/api"
	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/AbdulWasayUl/go-weather-etl/services/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	currentBody  = `{"coord":{"lat":38.25,"lon":-85.76},"main":{"temp":295.15,"humidity":60,"pressure":1012},"weather":[{"main":"Clear","description":"clear sky"}],"dt":1700000000,"name":"Louisville","sys":{"country":"US"},"timezone":-18000}`
	forecastBody = `{"city":{"name":"Louisville","country":"US","population":246161,"timezone":-18000},"list":[{"dt":1700010800,"main":{"temp":290.1,"humidity":70},"weather":[{"main":"Clouds","description":"few clouds"}],"pop":0.2}]}`
	oneCallBody  = `{"lat":38.25,"lon":-85.76,"timezone":"America/Kentucky/Louisville","daily":[{"dt":1700046000,"temp":{"day":291.3},"humidity":55,"weather":[{"main":"Rain","description":"light rain"}],"pop":0.8}]}`
	dailyBody    = `{"city":{"name":"Louisville","country":"US"},"list":[{"dt":1700046000,"temp":{"day":288.0},"weather":[{"main":"Snow","description":"snow"}]}]}`
)

// fakeProvider answers per path; each handler gets the hit number for its path.
type fakeProvider struct {
	mu       sync.Mutex
	hits     map[string]int
	queries  map[string]string
	handlers map[string]func(w http.ResponseWriter, hit int)
}

func newFakeProvider(handlers map[string]func(w http.ResponseWriter, hit int)) (*fakeProvider, *httptest.Server) {
	fp := &fakeProvider{hits: map[string]int{}, queries: map[string]string{}, handlers: handlers}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.hits[r.URL.Path]++
		hit := fp.hits[r.URL.Path]
		fp.queries[r.URL.Path] = r.URL.RawQuery
		fp.mu.Unlock()

		h, ok := fp.handlers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, hit)
	}))
	return fp, ts
}

func (fp *fakeProvider) Hits(path string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.hits[path]
}

func (fp *fakeProvider) Query(path string) string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.queries[path]
}

func status(code int) func(w http.ResponseWriter, hit int) {
	return func(w http.ResponseWriter, hit int) { w.WriteHeader(code) }
}

func body(s string) func(w http.ResponseWriter, hit int) {
	return func(w http.ResponseWriter, hit int) { fmt.Fprint(w, s) }
}

func newClient(t *testing.T, baseURL string, mutate func(o *weather.Options)) *weather.Client {
	t.Helper()
	opts := weather.Options{BaseURL: baseURL, APIKey: "test-key", Units: models.UnitsStandard, ForecastDays: 5}
	if mutate != nil {
		mutate(&opts)
	}
	httpClient := api.NewClient(api.Options{Attempts: 3, RetryDelay: time.Millisecond, Timeout: time.Second})
	c, err := weather.NewClient(opts, httpClient)
	require.NoError(t, err)
	return c
}

func louisville() models.Location {
	return models.DefaultLocation()
}

func TestClient_Fetch_DefaultTier(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/weather":  body(currentBody),
		"/data/2.5/forecast": body(forecastBody),
	})
	defer ts.Close()

	c := newClient(t, ts.URL, nil)
	fetched, err := c.Fetch(context.Background(), louisville(), true)
	require.NoError(t, err)

	assert.Equal(t, models.TierCurrent, fetched.Current.Tier)
	assert.Equal(t, currentBody, string(fetched.Current.Body))
	require.NotNil(t, fetched.Forecast)
	assert.Equal(t, models.TierForecast5Day, fetched.Forecast.Tier)
	assert.Equal(t, models.KindForecast3h, fetched.Forecast.Kind)
	assert.Equal(t, models.UnitsStandard, fetched.Forecast.Units)
	assert.Equal(t, 1, fp.Hits("/data/2.5/forecast"))
	assert.Contains(t, fp.Query("/data/2.5/forecast"), "cnt=40")
	assert.Contains(t, fp.Query("/data/2.5/forecast"), "lat=38.2527")
}

func TestClient_Fetch_WithoutForecast(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/weather": body(currentBody),
	})
	defer ts.Close()

	fetched, err := newClient(t, ts.URL, nil).Fetch(context.Background(), louisville(), false)
	require.NoError(t, err)
	assert.Nil(t, fetched.Forecast)
	assert.Equal(t, 0, fp.Hits("/data/2.5/forecast"))
}

func TestClient_FetchForecast_FallsBackToPremiumTier(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/forecast": status(http.StatusInternalServerError),
		"/data/3.0/onecall":  body(oneCallBody),
	})
	defer ts.Close()

	c := newClient(t, ts.URL, func(o *weather.Options) { o.UseOneCallV3 = true })
	p, err := c.FetchForecast(context.Background(), louisville())
	require.NoError(t, err)

	assert.Equal(t, models.TierOneCallV3, p.Tier)
	assert.Equal(t, models.KindOneCall, p.Kind)
	assert.Equal(t, 3, fp.Hits("/data/2.5/forecast"))
	assert.Equal(t, 1, fp.Hits("/data/3.0/onecall"))
}

func TestClient_FetchForecast_TierOrder(t *testing.T) {
	_, ts := newFakeProvider(nil)
	defer ts.Close()

	c := newClient(t, ts.URL, func(o *weather.Options) {
		o.UseOneCallV3, o.UseOneCallV25, o.UseDailyForecast = true, true, true
	})
	assert.Equal(t, []string{
		models.TierForecast5Day, models.TierOneCallV3, models.TierOneCallV25, models.TierDailyForecast,
	}, c.TierNames())
}

func TestClient_Fetch_AllTiersUnreachable(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/weather":  body(currentBody),
		"/data/2.5/forecast": status(http.StatusInternalServerError),
	})
	defer ts.Close()

	_, err := newClient(t, ts.URL, nil).Fetch(context.Background(), louisville(), true)

	var srcErr *etlerr.SourceUnavailableError
	require.True(t, errors.As(err, &srcErr), "got %v", err)
	assert.Equal(t, etlerr.ReasonUnreachable, srcErr.Reason)
	require.Len(t, srcErr.Attempts, 1)
	assert.Equal(t, models.TierForecast5Day, srcErr.Attempts[0].Tier)
	assert.Equal(t, 3, fp.Hits("/data/2.5/forecast"))
}

func TestClient_FetchForecast_HardFailuresSkipRetries(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/forecast":       body(`{"list": [`),
		"/data/2.5/onecall":        status(http.StatusUnauthorized),
		"/data/2.5/forecast/daily": body(`{"list": []}`),
	})
	defer ts.Close()

	c := newClient(t, ts.URL, func(o *weather.Options) { o.UseOneCallV25, o.UseDailyForecast = true, true })
	_, err := c.FetchForecast(context.Background(), louisville())

	var srcErr *etlerr.SourceUnavailableError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, etlerr.ReasonInvalidData, srcErr.Reason)
	require.Len(t, srcErr.Attempts, 3)
	assert.True(t, srcErr.Attempts[0].Reached)
	assert.False(t, srcErr.Attempts[1].Reached)
	assert.True(t, api.IsHardFailure(srcErr.Attempts[1].Err))

	assert.Equal(t, 1, fp.Hits("/data/2.5/forecast"))
	assert.Equal(t, 1, fp.Hits("/data/2.5/onecall"))
	assert.Equal(t, 1, fp.Hits("/data/2.5/forecast/daily"))
}

func TestClient_FetchForecast_OneCallNeedsCoordinates(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/forecast":       status(http.StatusBadRequest),
		"/data/2.5/forecast/daily": body(dailyBody),
	})
	defer ts.Close()

	c := newClient(t, ts.URL, func(o *weather.Options) { o.UseOneCallV3, o.UseDailyForecast = true, true })
	p, err := c.FetchForecast(context.Background(), models.Location{City: "Paris", Country: "FR"})
	require.NoError(t, err)

	assert.Equal(t, models.TierDailyForecast, p.Tier)
	assert.Equal(t, 0, fp.Hits("/data/3.0/onecall"))
	assert.Contains(t, fp.Query("/data/2.5/forecast/daily"), "q=Paris%2CFR")
	assert.Contains(t, fp.Query("/data/2.5/forecast/daily"), "cnt=5")
}

func TestClient_Fetch_GeocodesLocationWithoutCoordinates(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/geo/1.0/direct":    body(`[{"name":"London","lat":51.5073,"lon":-0.1276,"country":"GB"}]`),
		"/data/2.5/weather":  body(currentBody),
		"/data/2.5/forecast": body(forecastBody),
	})
	defer ts.Close()

	fetched, err := newClient(t, ts.URL, nil).Fetch(context.Background(), models.Location{City: "London", Country: "GB"}, true)
	require.NoError(t, err)

	require.True(t, fetched.Location.HasCoordinates())
	assert.Equal(t, 51.5073, *fetched.Location.Lat)
	assert.Contains(t, fp.Query("/geo/1.0/direct"), "q=London%2CGB")
	assert.Contains(t, fp.Query("/data/2.5/weather"), "lat=51.5073")
}

func TestClient_Fetch_GeocodeFailureFallsBackToQuery(t *testing.T) {
	fp, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/geo/1.0/direct":    body(`[]`),
		"/data/2.5/weather":  body(currentBody),
		"/data/2.5/forecast": body(forecastBody),
	})
	defer ts.Close()

	fetched, err := newClient(t, ts.URL, nil).Fetch(context.Background(), models.Location{City: "London", Country: "GB"}, true)
	require.NoError(t, err)

	assert.Contains(t, fp.Query("/data/2.5/weather"), "q=London%2CGB")
	// coordinates are taken from the current payload
	require.True(t, fetched.Location.HasCoordinates())
	assert.Equal(t, 38.25, *fetched.Location.Lat)
}

func TestClient_FetchCurrent_Unavailable(t *testing.T) {
	_, ts := newFakeProvider(map[string]func(http.ResponseWriter, int){
		"/data/2.5/weather": status(http.StatusServiceUnavailable),
	})
	defer ts.Close()

	_, err := newClient(t, ts.URL, nil).Fetch(context.Background(), louisville(), true)

	var srcErr *etlerr.SourceUnavailableError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, models.TierCurrent, srcErr.Attempts[0].Tier)
}

func TestNewClient_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    weather.Options
		setting string
	}{
		{"missing key", weather.Options{BaseURL: "https://api.openweathermap.org"}, "OPENWEATHERMAP_API_KEY"},
		{"bad base url", weather.Options{APIKey: "k", BaseURL: "::"}, "OPENWEATHERMAP_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := weather.NewClient(tt.opts, nil)
			var cfgErr *etlerr.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.setting, cfgErr.Setting)
		})
	}
}
