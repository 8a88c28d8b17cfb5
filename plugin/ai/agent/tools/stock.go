package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const alphaVantageURL = "https://www.alphavantage.co/query"

type stockArgs struct {
	Symbol string `json:"symbol"`
}

// NewStockPriceTool returns a tool that fetches the latest intraday price
// series for a ticker symbol from Alpha Vantage.
func NewStockPriceTool(client *http.Client, apiKey string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Ticker symbol, e.g. \"AAPL\" or \"TSLA\""}
		},
		"required": ["symbol"]
	}`)

	return NewBaseTool(
		"stock_price",
		"Fetch the latest stock price for a given ticker symbol (e.g. AAPL, TSLA).",
		schema,
		func(ctx context.Context, arguments string) (string, error) {
			var args stockArgs
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid stock arguments: %w", err)
			}
			if args.Symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}

			q := url.Values{}
			q.Set("function", "TIME_SERIES_INTRADAY")
			q.Set("symbol", args.Symbol)
			q.Set("interval", "5min")
			q.Set("apikey", apiKey)
			return fetchJSON(ctx, client, alphaVantageURL+"?"+q.Encode())
		},
	)
}
