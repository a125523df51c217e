package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Direction is the side of a binary market.
type Direction string

const (
	Yes Direction = "YES"
	No  Direction = "NO"
)

// ParseDirection accepts "yes"/"no" in any case, surrounding whitespace ignored.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case Yes:
		return Yes, nil
	case No:
		return No, nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

// Estimate is one structured oracle answer for a market the news affects.
type Estimate struct {
	MarketID  string
	Direction Direction
	TrueProb  float64
	Edge      float64
	Reasoning string
}

// Opportunity is a market whose estimated edge meets the alert threshold.
// Edge is always TrueProb - CurrentPrice, and CurrentPrice is the market price for Direction.
type Opportunity struct {
	Market       Market
	Direction    Direction
	CurrentPrice float64
	TrueProb     float64
	Edge         float64
	Reasoning    string
	NewsText     string
	NewsChannel  string
}

// NewOpportunity derives the current price and edge from the market and direction.
func NewOpportunity(m Market, d Direction, trueProb float64, reasoning string, news NewsEvent) Opportunity {
	price := m.PriceFor(d)
	return Opportunity{
		Market:       m,
		Direction:    d,
		CurrentPrice: price,
		TrueProb:     trueProb,
		Edge:         trueProb - price,
		Reasoning:    reasoning,
		NewsText:     news.Text,
		NewsChannel:  news.Channel,
	}
}

// Key returns the dedup key for this opportunity.
func (o Opportunity) Key() DedupKey {
	return KeyFor(o.Market.ID, o.Direction)
}

// DedupKey identifies a (market, direction) pair.
type DedupKey string

var dedupNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("polyedge.dedup"))

// KeyFor derives a name-based (v5) UUID from "marketID:direction".
func KeyFor(marketID string, d Direction) DedupKey {
	return DedupKey(uuid.NewSHA1(dedupNamespace, []byte(marketID+":"+string(d))).String())
}
