// Package oracle asks a reasoning model to estimate true probabilities for
// markets affected by a news item.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rewired-gh/polyedge/internal/models"
)

// Request is one estimation request: a news item and the markets it may affect.
type Request struct {
	News      models.NewsEvent
	Threshold float64
	Markets   []models.MarketSummary
}

// Client calls the Anthropic Messages API.
type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int
}

// NewClient creates a new oracle client. timeout caps each request and SDK
// retries are disabled.
func NewClient(apiURL, apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if apiURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(apiURL, "/")+"/"))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Estimate sends the request to the model and parses its structured reply.
func (c *Client) Estimate(ctx context.Context, req Request) ([]models.Estimate, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseEstimates(text)
}

// complete sends a single-turn prompt and returns the concatenated text blocks.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("oracle returned %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("oracle request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: no text content (stop_reason=%s)", ErrMalformedResponse, msg.StopReason)
	}
	return b.String(), nil
}
