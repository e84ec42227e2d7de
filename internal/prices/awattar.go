package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/transport"
)

// FetchError reports a failed market data request
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching prices from %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching prices from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AwattarClient fetches EPEX spot hourly prices from the aWATTar API
type AwattarClient struct {
	client  *transport.Client
	baseURL string
}

// NewAwattarClient creates a client for the given market ("at" or "de")
func NewAwattarClient(market string, opts ...transport.Option) *AwattarClient {
	return &AwattarClient{
		client:  transport.New("awattar-"+market, opts...),
		baseURL: fmt.Sprintf("https://api.awattar.%s/v1", market),
	}
}

// WithBaseURL overrides the API root, e.g. for tests
func (c *AwattarClient) WithBaseURL(u string) *AwattarClient {
	c.baseURL = u
	return c
}

// marketDataResponse represents the API response structure
type marketDataResponse struct {
	Object string       `json:"object"`
	Data   []marketItem `json:"data"`
}

type marketItem struct {
	StartTimestamp int64   `json:"start_timestamp"` // epoch ms
	EndTimestamp   int64   `json:"end_timestamp"`
	MarketPrice    float64 `json:"marketprice"` // EUR/MWh
	Unit           string  `json:"unit"`
}

// MarketData fetches hourly prices for [start, end)
func (c *AwattarClient) MarketData(ctx context.Context, start, end time.Time) (engine.PriceSeries, error) {
	params := url.Values{}
	params.Add("start", strconv.FormatInt(start.UnixMilli(), 10))
	params.Add("end", strconv.FormatInt(end.UnixMilli(), 10))

	fullURL := fmt.Sprintf("%s/marketdata?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &FetchError{URL: fullURL, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{URL: fullURL, StatusCode: resp.StatusCode, Err: errors.New(string(body))}
	}

	var data marketDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &FetchError{URL: fullURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	loc := start.Location()
	series := make(engine.PriceSeries, 0, len(data.Data))
	for _, item := range data.Data {
		series = append(series, engine.PriceSlot{
			Start: time.UnixMilli(item.StartTimestamp).In(loc),
			End:   time.UnixMilli(item.EndTimestamp).In(loc),
			Cost:  item.MarketPrice,
		})
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Start.Before(series[j].Start)
	})

	if err := series.Validate(); err != nil {
		return nil, &FetchError{URL: fullURL, StatusCode: resp.StatusCode, Err: err}
	}

	return series, nil
}
