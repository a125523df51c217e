package oracle

import (
	"encoding/json"
	"fmt"
	"time"
)

// BuildPrompt renders the estimation instructions for req.
func BuildPrompt(req Request) (string, error) {
	markets, err := json.MarshalIndent(req.Markets, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal market summaries: %w", err)
	}

	ts := ""
	if !req.News.Timestamp.IsZero() {
		ts = req.News.Timestamp.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf(`You are a quantitative trader specialised in prediction markets (Polymarket).

NEWS RECEIVED:
Channel: %s
Time: %s
Text: %s

ACTIVE POLYMARKET MARKETS (yes_price = market-implied probability):
%s

YOUR TASK:
1. Identify ONLY the markets directly affected by this news.
2. For each affected market, estimate the REAL probability of the outcome given the news.
3. Compute the edge: (true_prob - yes_price) for YES, or (true_prob - no_price) for NO.
4. Return ONLY markets with absolute edge >= %.2f (that is, %.0f%%).

Reply with valid JSON ONLY, no extra text:
{
  "opportunities": [
    {
      "market_id": "id of the market",
      "direction": "YES" or "NO",
      "true_prob": 0.XX,
      "edge": 0.XX,
      "reasoning": "short explanation of why the news moves this market"
    }
  ]
}

If no market is affected with enough edge, reply: {"opportunities": []}
`, req.News.Channel, ts, req.News.Text, markets, req.Threshold, req.Threshold*100), nil
}
