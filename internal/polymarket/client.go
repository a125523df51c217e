// Package polymarket fetches active markets from the Polymarket Gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
)

// ClientConfig holds transport tuning for the Gamma client.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	// RateLimitPerSecond caps outgoing requests, retries included. Zero means unlimited.
	RateLimitPerSecond int
}

// Client provides access to Polymarket API
type Client struct {
	gammaAPIURL    string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	rateLimiter    *rate.Limiter
}

// GammaMarket represents a market from the Gamma /markets endpoint
type GammaMarket struct {
	ID            string       `json:"id"`
	ConditionID   string       `json:"conditionId"`
	Question      string       `json:"question"`
	Description   string       `json:"description"`
	Slug          string       `json:"slug"`
	EndDate       string       `json:"endDate"`
	Active        bool         `json:"active"`
	Closed        bool         `json:"closed"`
	Volume24hr    flexFloat    `json:"volume24hr"`
	Outcomes      string       `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	OutcomePrices string       `json:"outcomePrices"` // JSON string: "[\"0.75\", \"0.25\"]"
	Tokens        []GammaToken `json:"tokens"`
}

// GammaToken is one outcome token with its last price.
type GammaToken struct {
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
}

// NewClient creates a new Polymarket client
func NewClient(gammaAPIURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	rateLimiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitPerSecond > 0 {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitPerSecond)
	}
	return &Client{
		gammaAPIURL: strings.TrimRight(gammaAPIURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		rateLimiter:    rateLimiter,
	}
}

// FetchMarkets retrieves up to limit active, open markets ordered by descending 24h volume.
// Records without a usable Yes/No price pair are skipped.
func (c *Client) FetchMarkets(ctx context.Context, limit int) ([]models.Market, error) {
	u, err := url.Parse(c.gammaAPIURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}
	defer resp.Body.Close()

	// Response is array directly, not wrapped
	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}

	markets := make([]models.Market, 0, len(records))
	skipped := 0
	for _, rec := range records {
		var gm GammaMarket
		if err := json.Unmarshal(rec, &gm); err != nil {
			skipped++
			logger.Debug("Skipping undecodable market record: %v", err)
			continue
		}
		m, err := toMarket(gm)
		if err != nil {
			skipped++
			logger.Debug("Skipping market %s: %v", gm.ConditionID, err)
			continue
		}
		markets = append(markets, m)
	}
	if skipped > 0 {
		logger.Debug("Skipped %d malformed market records", skipped)
	}

	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Volume24hr > markets[j].Volume24hr
	})
	if len(markets) > limit {
		markets = markets[:limit]
	}

	return markets, nil
}

func toMarket(gm GammaMarket) (models.Market, error) {
	if gm.ConditionID == "" {
		return models.Market{}, errors.New("missing conditionId")
	}
	if gm.Closed {
		return models.Market{}, errors.New("market is closed")
	}

	yes, no, err := parseMarketPrices(gm)
	if err != nil {
		return models.Market{}, err
	}

	m := models.Market{
		ID:          gm.ConditionID,
		Question:    gm.Question,
		Description: gm.Description,
		YesPrice:    yes,
		NoPrice:     no,
		Volume24hr:  float64(gm.Volume24hr),
		EndDate:     gm.EndDate,
		Active:      true,
		Slug:        gm.Slug,
	}
	if err := m.Validate(); err != nil {
		return models.Market{}, err
	}
	return m, nil
}

// parseMarketPrices extracts Yes/No prices from the tokens array, falling back
// to the JSON-encoded outcomes/outcomePrices pair.
func parseMarketPrices(gm GammaMarket) (float64, float64, error) {
	if len(gm.Tokens) > 0 {
		var yes, no *float64
		for i := range gm.Tokens {
			p := float64(gm.Tokens[i].Price)
			switch strings.ToLower(gm.Tokens[i].Outcome) {
			case "yes":
				yes = &p
			case "no":
				no = &p
			}
		}
		if yes == nil || no == nil {
			return 0, 0, errors.New("missing yes or no token")
		}
		return *yes, *no, nil
	}

	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return 0, 0, fmt.Errorf("failed to parse outcomes: %w", err)
	}
	var outcomePrices []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &outcomePrices); err != nil {
		return 0, 0, fmt.Errorf("failed to parse outcome prices: %w", err)
	}

	var yes, no *float64
	for i, outcome := range outcomes {
		if i >= len(outcomePrices) {
			break
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(outcomePrices[i]), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid price %q for %s", outcomePrices[i], outcome)
		}
		switch strings.ToLower(outcome) {
		case "yes":
			yes = &price
		case "no":
			no = &price
		}
	}
	if yes == nil || no == nil {
		return 0, 0, errors.New("missing yes or no outcome")
	}
	return *yes, *no, nil
}

// doRequest performs HTTP request with linear-backoff retry on transport errors and 5xx
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("client error: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// flexFloat accepts a JSON number, a numeric string, or null (as zero).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*f = flexFloat(v)
	return nil
}
