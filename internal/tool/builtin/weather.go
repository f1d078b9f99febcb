package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/parley-ai/parley/internal/tool"
)

// WeatherConfig points the weather tool at its upstream APIs. Zero
// values use the public Open-Meteo endpoints.
type WeatherConfig struct {
	GeocodeURL  string
	ForecastURL string
}

func (c *WeatherConfig) defaults() {
	if c.GeocodeURL == "" {
		c.GeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if c.ForecastURL == "" {
		c.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
}

var weatherCodes = map[int64]string{
	0: "clear sky", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "fog", 48: "depositing rime fog",
	51: "light drizzle", 53: "drizzle", 55: "dense drizzle",
	61: "light rain", 63: "rain", 65: "heavy rain",
	71: "light snow", 73: "snow", 75: "heavy snow",
	80: "rain showers", 81: "heavy rain showers", 82: "violent rain showers",
	95: "thunderstorm", 96: "thunderstorm with hail", 99: "thunderstorm with heavy hail",
}

// Weather returns the current-conditions lookup tool
func Weather(client *http.Client, cfg WeatherConfig) tool.Tool {
	cfg.defaults()

	return tool.Tool{
		Name:        "weather",
		Description: "Get current weather conditions for a location",
		Schema: tool.ObjectSchema(map[string]tool.Property{
			"location": {Type: "string", Description: "City or place name"},
			"unit":     {Type: "string", Description: "Temperature unit", Enum: []string{"celsius", "fahrenheit"}},
		}, "location"),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			location := args["location"].(string)
			unit := "celsius"
			if u, ok := args["unit"].(string); ok {
				unit = u
			}

			lat, lon, name, err := geocode(ctx, client, cfg.GeocodeURL, location)
			if err != nil {
				return "", err
			}

			q := url.Values{}
			q.Set("latitude", fmt.Sprintf("%.4f", lat))
			q.Set("longitude", fmt.Sprintf("%.4f", lon))
			q.Set("current_weather", "true")
			if unit == "fahrenheit" {
				q.Set("temperature_unit", "fahrenheit")
			}

			body, err := fetchJSON(ctx, client, cfg.ForecastURL+"?"+q.Encode())
			if err != nil {
				return "", fmt.Errorf("fetch forecast: %w", err)
			}

			current := gjson.GetBytes(body, "current_weather")
			if !current.Exists() {
				return "", fmt.Errorf("no current weather for %s", location)
			}

			condition := weatherCodes[current.Get("weathercode").Int()]
			if condition == "" {
				condition = "unknown conditions"
			}

			suffix := "°C"
			if unit == "fahrenheit" {
				suffix = "°F"
			}
			return fmt.Sprintf("Weather in %s: %s, %.1f%s, wind %.1f km/h",
				name, condition,
				current.Get("temperature").Float(), suffix,
				current.Get("windspeed").Float()), nil
		}),
	}
}

func geocode(ctx context.Context, client *http.Client, baseURL, location string) (lat, lon float64, name string, err error) {
	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")

	body, err := fetchJSON(ctx, client, baseURL+"?"+q.Encode())
	if err != nil {
		return 0, 0, "", fmt.Errorf("geocode %s: %w", location, err)
	}

	first := gjson.GetBytes(body, "results.0")
	if !first.Exists() {
		return 0, 0, "", fmt.Errorf("location %q not found", location)
	}
	return first.Get("latitude").Float(), first.Get("longitude").Float(), first.Get("name").String(), nil
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
