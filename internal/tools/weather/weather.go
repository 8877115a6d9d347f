// Package weather implements the get_weather tool, an HTTP adapter against
// an OpenWeatherMap-compatible API. It is the reference network tool: the
// policy gate must allow network access before it runs.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/haasonsaas/sidekick/internal/config"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Tool fetches current conditions for a location.
type Tool struct {
	cfg     config.WeatherConfig
	baseURL string
	client  *http.Client
}

// New creates a weather tool from config.
func New(cfg config.WeatherConfig) *Tool {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tool{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *Tool) Spec() tools.Spec {
	return tools.Spec{
		Name:         "get_weather",
		Description:  "Fetch current weather for a location. Requires network access.",
		Cacheable:    true,
		NeedsNetwork: true,
		Schema: tools.ObjectSchema(map[string]any{
			"location": map[string]any{"type": "string", "minLength": 1},
			"units":    map[string]any{"type": "string", "enum": []any{"metric", "imperial", "standard"}},
			"lang":     map[string]any{"type": "string"},
		}, "location"),
	}
}

// apiResponse mirrors the fields we report from the upstream payload.
type apiResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	location, _ := args["location"].(string)
	units, _ := args["units"].(string)
	lang, _ := args["lang"].(string)
	if units == "" {
		units = t.cfg.DefaultUnits
	}
	if lang == "" {
		lang = t.cfg.DefaultLang
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("units", units)
	q.Set("lang", lang)
	q.Set("appid", t.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.Fail(models.CodeInvalidArgs, err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.Fail(models.CodeTimeout, "weather request timed out")
		}
		return models.Fail(models.CodeNetwork, fmt.Sprintf("weather request: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64_000))
	if err != nil {
		return models.Fail(models.CodeNetwork, fmt.Sprintf("read weather response: %v", err))
	}
	if resp.StatusCode == http.StatusNotFound {
		return models.Fail(models.CodeNotFound, fmt.Sprintf("unknown location %q", location))
	}
	if resp.StatusCode != http.StatusOK {
		return models.Fail(models.CodeNetwork, fmt.Sprintf("weather API status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Fail(models.CodeNetwork, fmt.Sprintf("decode weather response: %v", err))
	}

	conditions := ""
	if len(parsed.Weather) > 0 {
		conditions = parsed.Weather[0].Description
	}
	return models.Succeed(map[string]any{
		"location":   parsed.Name,
		"conditions": conditions,
		"temp":       parsed.Main.Temp,
		"feels_like": parsed.Main.FeelsLike,
		"humidity":   parsed.Main.Humidity,
		"wind_speed": parsed.Wind.Speed,
		"units":      units,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
