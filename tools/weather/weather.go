package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/opsassist/config"
	"github.com/mohammad-safakhou/opsassist/internal/httpx"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// Tool fetches current weather from weatherapi.com.
type Tool struct {
	cfg  config.WeatherConfig
	http *httpx.Client
}

// New creates the weather tool.
func New(cfg config.WeatherConfig, client *httpx.Client) *Tool {
	return &Tool{cfg: cfg, http: client}
}

func (t *Tool) Name() string { return "weather" }

func (t *Tool) Description() string {
	return "Get current weather information for a city including temperature, humidity, and conditions"
}

func (t *Tool) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "City name to get weather for (e.g., 'London', 'New York', 'Paris')",
			},
			"units": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"metric", "imperial"},
				"description": "Temperature units: 'metric' (Celsius) or 'imperial' (Fahrenheit)",
				"default":     "metric",
			},
		},
		"required": []interface{}{"city"},
	}
}

type currentResponse struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC      float64 `json:"temp_c"`
		TempF      float64 `json:"temp_f"`
		FeelsLikeC float64 `json:"feelslike_c"`
		FeelsLikeF float64 `json:"feelslike_f"`
		Humidity   int     `json:"humidity"`
		WindKPH    float64 `json:"wind_kph"`
		WindMPH    float64 `json:"wind_mph"`
		VisKM      float64 `json:"vis_km"`
		VisMiles   float64 `json:"vis_miles"`
		Condition  struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// Execute fetches weather data for a city. Failures never escape the envelope.
func (t *Tool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if err := tool.ValidateParams(t, params); err != nil {
		return tool.Fail("%v", err)
	}
	if t.cfg.APIKey == "" {
		return tool.Fail("weather API key is not configured")
	}

	city, _ := tool.StringParam(params, "city")
	units, ok := tool.StringParam(params, "units")
	if !ok {
		units = "metric"
	}

	q := url.Values{}
	q.Set("key", t.cfg.APIKey)
	q.Set("q", city)
	q.Set("aqi", "no")

	base := t.cfg.BaseURL
	if base == "" {
		base = "https://api.weatherapi.com/v1"
	}
	reqURL := fmt.Sprintf("%s/current.json?%s", strings.TrimRight(base, "/"), q.Encode())

	var out currentResponse
	if err := t.http.DoJSON(ctx, http.MethodGet, reqURL, nil, nil, &out); err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) {
			switch se.StatusCode {
			case http.StatusBadRequest:
				return tool.Fail("city %q not found", city)
			case http.StatusUnauthorized, http.StatusForbidden:
				return tool.Fail("invalid weather API key")
			}
		}
		if httpx.IsTransient(err) {
			return tool.FailTransient("weather API error: %v", err)
		}
		return tool.Fail("weather API error: %v", err)
	}

	var temp, feelsLike, windSpeed, visibility float64
	var tempUnit, speedUnit, visUnit string
	if units == "imperial" {
		temp, feelsLike, windSpeed = out.Current.TempF, out.Current.FeelsLikeF, out.Current.WindMPH
		visibility = out.Current.VisMiles
		tempUnit, speedUnit, visUnit = "°F", "mph", "miles"
	} else {
		temp, feelsLike, windSpeed = out.Current.TempC, out.Current.FeelsLikeC, out.Current.WindKPH
		visibility = out.Current.VisKM
		tempUnit, speedUnit, visUnit = "°C", "km/h", "km"
	}

	return tool.Ok(map[string]interface{}{
		"city":        out.Location.Name,
		"country":     out.Location.Country,
		"temperature": fmt.Sprintf("%.1f%s", temp, tempUnit),
		"feels_like":  fmt.Sprintf("%.1f%s", feelsLike, tempUnit),
		"humidity":    fmt.Sprintf("%d%%", out.Current.Humidity),
		"conditions":  out.Current.Condition.Text,
		"wind_speed":  fmt.Sprintf("%.1f %s", windSpeed, speedUnit),
		"visibility":  fmt.Sprintf("%.1f %s", visibility, visUnit),
	})
}
