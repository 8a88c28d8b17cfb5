package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

type searchArgs struct {
	Query string `json:"query"`
}

// NewSearchTool returns a tool that performs a Brave web search and returns
// the raw result payload for the model to digest.
func NewSearchTool(client *http.Client, apiKey string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Web search query"}
		},
		"required": ["query"]
	}`)

	return NewBaseTool(
		"search",
		"Search the web for up-to-date information on any topic.",
		schema,
		func(ctx context.Context, arguments string) (string, error) {
			var args searchArgs
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid search arguments: %w", err)
			}
			if args.Query == "" {
				return "", fmt.Errorf("query is required")
			}

			q := url.Values{}
			q.Set("q", args.Query)
			q.Set("count", "5")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchURL+"?"+q.Encode(), nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("X-Subscription-Token", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
			}

			// Trim the response down to titles/descriptions to keep the
			// tool result within a sane token budget.
			var payload struct {
				Web struct {
					Results []struct {
						Title       string `json:"title"`
						URL         string `json:"url"`
						Description string `json:"description"`
					} `json:"results"`
				} `json:"web"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return "", fmt.Errorf("failed to decode search response: %w", err)
			}
			out, err := json.Marshal(payload.Web.Results)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	)
}
