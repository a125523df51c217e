package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
)

// ErrMalformedResponse is returned when the oracle reply has no usable JSON envelope.
var ErrMalformedResponse = errors.New("malformed oracle response")

type envelope struct {
	Opportunities []json.RawMessage `json:"opportunities"`
}

type rawEstimate struct {
	MarketID  flexString `json:"market_id"`
	Direction string     `json:"direction"`
	TrueProb  *flexFloat `json:"true_prob"`
	Edge      *flexFloat `json:"edge"`
	Reasoning string     `json:"reasoning"`
}

// ParseEstimates decodes a model reply into estimates. Entries that fail
// validation are dropped individually; only an unreadable envelope is an error.
func ParseEstimates(raw string) ([]models.Estimate, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	estimates := make([]models.Estimate, 0, len(env.Opportunities))
	for i, item := range env.Opportunities {
		est, err := parseEntry(item)
		if err != nil {
			logger.Debug("Dropping oracle entry %d: %v", i, err)
			continue
		}
		estimates = append(estimates, est)
	}
	return estimates, nil
}

func parseEntry(item json.RawMessage) (models.Estimate, error) {
	var r rawEstimate
	if err := json.Unmarshal(item, &r); err != nil {
		return models.Estimate{}, err
	}
	id := strings.TrimSpace(string(r.MarketID))
	if id == "" {
		return models.Estimate{}, errors.New("missing market_id")
	}
	dir, err := models.ParseDirection(r.Direction)
	if err != nil {
		return models.Estimate{}, err
	}
	if r.TrueProb == nil {
		return models.Estimate{}, errors.New("missing true_prob")
	}
	if p := float64(*r.TrueProb); p < 0 || p > 1 {
		return models.Estimate{}, fmt.Errorf("true_prob %v out of range", p)
	}
	if r.Edge == nil {
		return models.Estimate{}, errors.New("missing edge")
	}
	return models.Estimate{
		MarketID:  id,
		Direction: dir,
		TrueProb:  float64(*r.TrueProb),
		Edge:      float64(*r.Edge),
		Reasoning: strings.TrimSpace(r.Reasoning),
	}, nil
}

// extractJSON strips Markdown code fences and any prose around the outermost object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a finite number: %s", data)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("market_id must be a string: %s", data)
	}
	*f = flexString(n.String())
	return nil
}
