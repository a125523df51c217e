// Package models defines the core domain values: news events, markets, snapshots, and opportunities.
package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Market is an immutable point-in-time view of a single yes/no Polymarket market.
// ID is the market's condition ID.
type Market struct {
	ID          string  `json:"id"`
	Question    string  `json:"question"`
	Description string  `json:"description,omitempty"`
	YesPrice    float64 `json:"yes_price"`
	NoPrice     float64 `json:"no_price"`
	Volume24hr  float64 `json:"volume_24hr"`
	EndDate     string  `json:"end_date,omitempty"`
	Active      bool    `json:"active"`
	Slug        string  `json:"slug,omitempty"`
}

// Validate checks market field constraints.
// The yes+no ≈ 1 relation is deliberately not enforced; the residual is the spread.
func (m *Market) Validate() error {
	if m.ID == "" {
		return errors.New("market ID must not be empty")
	}
	if math.IsNaN(m.YesPrice) || m.YesPrice < 0.0 || m.YesPrice > 1.0 {
		return errors.New("yes price must be between 0.0 and 1.0")
	}
	if math.IsNaN(m.NoPrice) || m.NoPrice < 0.0 || m.NoPrice > 1.0 {
		return errors.New("no price must be between 0.0 and 1.0")
	}
	if m.Volume24hr < 0 {
		return errors.New("volume 24hr must not be negative")
	}
	return nil
}

// Spread returns 1 - yes - no, rounded to four decimals.
func (m Market) Spread() float64 {
	return math.Round((1.0-m.YesPrice-m.NoPrice)*10000) / 10000
}

// PriceFor returns the implied probability quoted for the given direction.
func (m Market) PriceFor(d Direction) float64 {
	if d == Yes {
		return m.YesPrice
	}
	return m.NoPrice
}

// URL returns the public market page under base, preferring the human-readable slug.
func (m Market) URL(base string) string {
	base = strings.TrimRight(base, "/")
	if m.Slug != "" {
		return base + "/event/" + m.Slug
	}
	return base + "/market/" + m.ID
}

// MarketSnapshot is the full market list from one fetch. Callers must treat Markets as read-only.
type MarketSnapshot struct {
	Markets   []Market
	FetchedAt time.Time
}

// Age reports how old the snapshot is at now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// MarketSummary is the compact market view handed to the reasoning oracle.
type MarketSummary struct {
	ID        string  `json:"id"`
	Question  string  `json:"question"`
	YesPrice  float64 `json:"yes_price"`
	NoPrice   float64 `json:"no_price"`
	Volume24h float64 `json:"volume_24h"`
}

// Summarize reduces m to its oracle summary: prices rounded to 3 decimals, volume to whole units.
func Summarize(m Market) MarketSummary {
	return MarketSummary{
		ID:        m.ID,
		Question:  m.Question,
		YesPrice:  math.Round(m.YesPrice*1000) / 1000,
		NoPrice:   math.Round(m.NoPrice*1000) / 1000,
		Volume24h: math.Round(m.Volume24hr),
	}
}
