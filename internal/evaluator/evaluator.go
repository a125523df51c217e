// Package evaluator turns a news event and a market snapshot into
// above-threshold opportunities using the reasoning oracle.
package evaluator

import (
	"context"
	"math"
	"time"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/oracle"
)

const (
	DefaultThreshold  = 0.07
	DefaultMaxMarkets = 80
	DefaultTimeout    = 10 * time.Second
)

// Oracle estimates true probabilities for markets affected by a news item.
type Oracle interface {
	Estimate(ctx context.Context, req oracle.Request) ([]models.Estimate, error)
}

type Config struct {
	Threshold  float64
	MaxMarkets int
	Timeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:  DefaultThreshold,
		MaxMarkets: DefaultMaxMarkets,
		Timeout:    DefaultTimeout,
	}
}

type Evaluator struct {
	oracle Oracle
	config Config
}

func New(o Oracle, config Config) *Evaluator {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.MaxMarkets < 1 {
		config.MaxMarkets = DefaultMaxMarkets
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Evaluator{oracle: o, config: config}
}

// Evaluate returns the opportunities news creates in markets, in oracle order.
// Oracle failures yield an empty result.
func (e *Evaluator) Evaluate(ctx context.Context, news models.NewsEvent, markets []models.Market) []models.Opportunity {
	if len(markets) == 0 {
		return nil
	}

	summaries := make([]models.MarketSummary, 0, min(len(markets), e.config.MaxMarkets))
	for _, m := range markets[:min(len(markets), e.config.MaxMarkets)] {
		summaries = append(summaries, models.Summarize(m))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	estimates, err := e.oracle.Estimate(callCtx, oracle.Request{
		News:      news,
		Threshold: e.config.Threshold,
		Markets:   summaries,
	})
	if err != nil {
		logger.Error("Oracle estimate failed for news %s: %v", news.ID, err)
		return nil
	}

	byID := make(map[string]models.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	var opportunities []models.Opportunity
	for _, est := range estimates {
		market, ok := byID[est.MarketID]
		if !ok {
			logger.Debug("Oracle referenced unknown market %s, skipping", est.MarketID)
			continue
		}
		if math.Abs(est.Edge) < e.config.Threshold {
			logger.Debug("Oracle edge %.3f below threshold for %s, skipping", est.Edge, est.MarketID)
			continue
		}
		opp := models.NewOpportunity(market, est.Direction, est.TrueProb, est.Reasoning, news)
		// The reported edge is only a hint; the recomputed one is authoritative.
		if math.Abs(opp.Edge) < e.config.Threshold {
			logger.Debug("Recomputed edge %.3f below threshold for %s (oracle said %.3f), skipping",
				opp.Edge, est.MarketID, est.Edge)
			continue
		}
		opportunities = append(opportunities, opp)
	}

	logger.Info("Analysis complete: %d opportunity(ies) from %d oracle entries", len(opportunities), len(estimates))
	return opportunities
}
