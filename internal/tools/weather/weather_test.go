package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/sidekick/internal/config"
	"github.com/haasonsaas/sidekick/pkg/models"
)

func newTestWeather(t *testing.T, handler http.HandlerFunc) *Tool {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tool := New(config.WeatherConfig{
		APIKey:       "test-key",
		DefaultUnits: "metric",
		DefaultLang:  "en",
		TimeoutS:     2,
	})
	tool.baseURL = srv.URL
	return tool
}

func TestWeatherFetchesConditions(t *testing.T) {
	var gotQuery map[string]string
	tool := newTestWeather(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"q":     r.URL.Query().Get("q"),
			"units": r.URL.Query().Get("units"),
			"appid": r.URL.Query().Get("appid"),
		}
		w.Write([]byte(`{
			"name": "Lisbon",
			"weather": [{"main": "Clear", "description": "clear sky"}],
			"main": {"temp": 24.5, "feels_like": 25.0, "humidity": 40},
			"wind": {"speed": 3.2}
		}`))
	})

	res := tool.Execute(context.Background(), map[string]any{"location": "Lisbon"})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Payload["location"] != "Lisbon" || res.Payload["conditions"] != "clear sky" {
		t.Fatalf("payload = %+v", res.Payload)
	}
	if res.Payload["temp"] != 24.5 || res.Payload["units"] != "metric" {
		t.Fatalf("payload = %+v", res.Payload)
	}
	if gotQuery["q"] != "Lisbon" || gotQuery["units"] != "metric" || gotQuery["appid"] != "test-key" {
		t.Fatalf("query = %+v", gotQuery)
	}
}

func TestWeatherUnknownLocation(t *testing.T) {
	tool := newTestWeather(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":"404","message":"city not found"}`, http.StatusNotFound)
	})

	res := tool.Execute(context.Background(), map[string]any{"location": "Nowhereville"})
	if res.OK || res.ErrorCodeOf() != models.CodeNotFound {
		t.Fatalf("result = %+v", res)
	}
}

func TestWeatherServerError(t *testing.T) {
	tool := newTestWeather(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	res := tool.Execute(context.Background(), map[string]any{"location": "Lisbon"})
	if res.OK || res.ErrorCodeOf() != models.CodeNetwork {
		t.Fatalf("result = %+v", res)
	}
}
