package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/client"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

const twoSlots = `{"cod":"200","list":[
 {"main":{"temp":31.2,"humidity":70},"weather":[{"description":"clear sky"}]},
 {"main":{"temp":28.5,"humidity":85},"weather":[{"description":"light rain"}],"rain":{"3h":1.4}}
]}`

func newService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.WeatherConfig{APIURL: srv.URL, APIKey: "k", DefaultLocation: "Hanoi,VN", Language: "en"}
	return NewService(cfg, client.NewJSONClient("weather", time.Second, client.WithRetries(0, 0)), logger.Nop())
}

func TestForecast_TwoSlots(t *testing.T) {
	var query map[string]string
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query = map[string]string{"q": q.Get("q"), "appid": q.Get("appid"), "units": q.Get("units"), "lang": q.Get("lang"), "cnt": q.Get("cnt")}
		_, _ = w.Write([]byte(twoSlots))
	})

	f := svc.Forecast(context.Background(), "")
	assert.Equal(t, map[string]string{"q": "Hanoi,VN", "appid": "k", "units": "metric", "lang": "en", "cnt": "2"}, query)
	assert.Equal(t, "clear sky", f.CurrentDescription)
	assert.Equal(t, 31.2, f.CurrentTemp)
	assert.Equal(t, 70.0, f.CurrentHumidity)
	assert.Equal(t, "light rain", f.NextDescription)
	assert.Equal(t, 28.5, f.NextTemp)
	assert.True(t, f.RainExpected)
}

func TestForecast_SingleSlotCopiesCurrent(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"list":[{"main":{"temp":20,"humidity":50},"weather":[{"description":"mist"}],"rain":{"3h":3}}]}`))
	})

	f := svc.Forecast(context.Background(), "Hue,VN")
	assert.Equal(t, "mist", f.NextDescription)
	assert.Equal(t, 20.0, f.NextTemp)
	assert.False(t, f.RainExpected)
}

func TestForecast_Fallback(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
		"empty list":   func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"list":[]}`)) },
		"bad json":     func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			f := newService(t, handler).Forecast(context.Background(), "")
			assert.Equal(t, sgdmodels.FallbackForecast(), f)
		})
	}
}

func TestToForecast_NoRainWhenZero(t *testing.T) {
	resp := forecastResponse{List: make([]forecastItem, 2)}
	resp.List[1].Rain = &struct {
		ThreeHours float64 `json:"3h"`
	}{ThreeHours: 0}

	f, err := toForecast(resp)
	require.NoError(t, err)
	assert.False(t, f.RainExpected)
}
