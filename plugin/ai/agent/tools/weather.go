package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const openWeatherMapURL = "https://api.openweathermap.org/data/2.5/weather"

type weatherArgs struct {
	City string `json:"city"`
}

// NewWeatherTool returns a tool that fetches current weather conditions for
// a city from OpenWeatherMap.
func NewWeatherTool(client *http.Client, apiKey string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City name, e.g. \"Berlin\""}
		},
		"required": ["city"]
	}`)

	return NewBaseTool(
		"weather",
		"Fetch the current weather conditions for any city: temperature, humidity and a short description (e.g. clear sky, rain, snow).",
		schema,
		func(ctx context.Context, arguments string) (string, error) {
			var args weatherArgs
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid weather arguments: %w", err)
			}
			if args.City == "" {
				return "", fmt.Errorf("city is required")
			}

			q := url.Values{}
			q.Set("q", args.City)
			q.Set("appid", apiKey)
			q.Set("units", "metric")
			return fetchJSON(ctx, client, openWeatherMapURL+"?"+q.Encode())
		},
	)
}

// fetchJSON performs a GET request and returns the raw JSON body.
func fetchJSON(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
