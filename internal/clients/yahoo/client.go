// Package yahoo is the Yahoo Finance client: daily bars via the v8 chart
// API and fundamentals via the v7 quote API. Taiwan symbols listed on the
// OTC market get a ".TWO" fallback when the ".TW" lookup comes back empty.
package yahoo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/domain"
)

const (
	userAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxRetries = 3
)

// Client is a Yahoo Finance API client.
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: "https://query1.finance.yahoo.com",
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// rangeFor converts a trailing day count to the chart API's range token.
func rangeFor(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 21:
		return "1mo"
	case days <= 63:
		return "3mo"
	case days <= 126:
		return "6mo"
	case days <= 252:
		return "1y"
	case days <= 504:
		return "2y"
	default:
		return "5y"
	}
}

// GetHistory fetches up to days of daily bars for the ticker. A ".TW"
// symbol with no data is retried as ".TWO" before giving up.
func (c *Client) GetHistory(ticker string, days int) (domain.BarSeries, error) {
	series, err := c.fetchChart(ticker, days)
	if err == nil && len(series) > 0 {
		return series, nil
	}

	if strings.HasSuffix(ticker, ".TW") {
		otc := strings.TrimSuffix(ticker, ".TW") + ".TWO"
		otcSeries, otcErr := c.fetchChart(otc, days)
		if otcErr == nil && len(otcSeries) > 0 {
			c.log.Debug().Str("ticker", ticker).Str("fallback", otc).Msg("Resolved via OTC symbol")
			return otcSeries, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return series, nil
}

func (c *Client) fetchChart(symbol string, days int) (domain.BarSeries, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", rangeFor(days))

	reqURL := c.baseURL + "/v8/finance/chart/" + url.QueryEscape(symbol) + "?" + params.Encode()

	body, err := c.getWithRetry(reqURL, symbol)
	if err != nil {
		return nil, err
	}

	var result struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []float64 `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error interface{} `json:"error"`
		} `json:"chart"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %v", symbol, result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No historical data returned")
		return nil, nil
	}

	chart := result.Chart.Result[0]
	quote := chart.Indicators.Quote[0]

	var series domain.BarSeries
	for i, ts := range chart.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Yahoo pads halted sessions with zeroed rows.
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		volume := 0.0
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		// Truncate to the session date; intraday time is provider noise.
		date := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		series = append(series, domain.Bar{
			Date:   date,
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: volume,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("bars", len(series)).
		Msg("Fetched historical bars")

	return series.Normalize(), nil
}

// GetInfo fetches the fundamentals snapshot for a ticker. Missing provider
// fields stay nil.
func (c *Client) GetInfo(ticker string) (*domain.Fundamentals, error) {
	params := url.Values{}
	params.Add("symbols", ticker)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice,regularMarketPreviousClose,"+
		"marketCap,trailingPE,dividendYield,trailingAnnualDividendYield,returnOnEquity,beta,"+
		"industry,sector,longName,shortName")

	reqURL := c.baseURL + "/v7/finance/quote?" + params.Encode()

	body, err := c.getWithRetry(reqURL, ticker)
	if err != nil {
		return nil, err
	}

	var result struct {
		QuoteResponse struct {
			Result []map[string]interface{} `json:"result"`
			Error  interface{}              `json:"error"`
		} `json:"quoteResponse"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote API error for %s: %v", ticker, result.QuoteResponse.Error)
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for %s", ticker)
	}

	info := result.QuoteResponse.Result[0]

	name := getString(info, "longName")
	if name == "" {
		name = getString(info, "shortName")
	}

	yield := getFloat64(info, "dividendYield")
	if yield == nil {
		yield = getFloat64(info, "trailingAnnualDividendYield")
	}

	price := getFloat64(info, "currentPrice")
	if price == nil {
		price = getFloat64(info, "regularMarketPrice")
	}

	return &domain.Fundamentals{
		Ticker:        ticker,
		Name:          name,
		Sector:        getString(info, "sector"),
		Industry:      getString(info, "industry"),
		MarketCap:     getFloat64(info, "marketCap"),
		TrailingPE:    getFloat64(info, "trailingPE"),
		DividendYield: yield,
		ROE:           getFloat64(info, "returnOnEquity"),
		Beta:          getFloat64(info, "beta"),
		CurrentPrice:  price,
		PreviousClose: getFloat64(info, "regularMarketPreviousClose"),
	}, nil
}

// getWithRetry performs a GET with browser headers and exponential backoff.
func (c *Client) getWithRetry(reqURL, symbol string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		body, err := c.get(reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < maxRetries-1 {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().Err(err).
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", waitTime).
				Msg("Request failed, retrying")
			time.Sleep(waitTime)
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) get(reqURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
