package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/volatility"
)

var (
	ErrSnapshotFetch    = errors.New("binance: snapshot fetch failed")
	ErrMalformedMessage = errors.New("binance: malformed message")
)

// Intervals accepted by the klines endpoint.
var Intervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d"}

type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) url(p string, q url.Values) string {
	return fmt.Sprintf("%s%s?%s", c.baseURL, p, q.Encode())
}

func (c *Client) get(ctx context.Context, p string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(p, q), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s status %d: %s", p, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// Depth fetches a full book snapshot. Every failure wraps ErrSnapshotFetch.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (depth.Snapshot, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp depthResponse
	if err := c.get(ctx, "/api/v3/depth", q, &resp); err != nil {
		return depth.Snapshot{}, fmt.Errorf("%w: %s: %w", ErrSnapshotFetch, symbol, err)
	}
	bids, err := parseLevels(resp.Bids)
	if err != nil {
		return depth.Snapshot{}, fmt.Errorf("%w: %s bids: %w", ErrSnapshotFetch, symbol, err)
	}
	asks, err := parseLevels(resp.Asks)
	if err != nil {
		return depth.Snapshot{}, fmt.Errorf("%w: %s asks: %w", ErrSnapshotFetch, symbol, err)
	}
	return depth.Snapshot{LastUpdateID: resp.LastUpdateID, Bids: bids, Asks: asks}, nil
}

// Klines fetches up to limit bars, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]volatility.Bar, error) {
	if !validInterval(interval) {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}
	bars := make([]volatility.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func validInterval(s string) bool {
	for _, iv := range Intervals {
		if iv == s {
			return true
		}
	}
	return false
}

func parseKline(row []json.RawMessage) (volatility.Bar, error) {
	if len(row) < 6 {
		return volatility.Bar{}, fmt.Errorf("%w: kline has %d fields", ErrMalformedMessage, len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return volatility.Bar{}, fmt.Errorf("%w: kline open time: %v", ErrMalformedMessage, err)
	}
	var vals [5]decimal.Decimal
	for i := range vals {
		if err := json.Unmarshal(row[i+1], &vals[i]); err != nil {
			return volatility.Bar{}, fmt.Errorf("%w: kline field %d: %v", ErrMalformedMessage, i+1, err)
		}
	}
	return volatility.Bar{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func parseLevels(rows [][2]string) ([]depth.PriceLevel, error) {
	out := make([]depth.PriceLevel, 0, len(rows))
	for _, r := range rows {
		p, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", r[0], err)
		}
		q, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", r[1], err)
		}
		out = append(out, depth.PriceLevel{Price: p, Quantity: q})
	}
	return out, nil
}

// DepthStreamURL is the raw diff stream endpoint for one symbol.
func DepthStreamURL(base, symbol string) string {
	return fmt.Sprintf("%s/ws/%s@depth", strings.TrimRight(base, "/"), strings.ToLower(symbol))
}
