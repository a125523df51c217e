// Package telegram delivers alerts through the Telegram Bot API and reads news
// from the channels the bot is a member of.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/pipeline"
)

const (
	newsPreviewRunes = 200
	errorRunes       = 500
)

// botAPI is the subset of *tgbotapi.BotAPI used by this package.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client handles Telegram notifications.
type Client struct {
	bot            botAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	marketURLBase  string
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, marketURLBase string) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase, marketURLBase), nil
}

func newClient(bot botAPI, chatID int64, maxRetries int, retryDelayBase time.Duration, marketURLBase string) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if marketURLBase == "" {
		marketURLBase = "https://polymarket.com"
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		marketURLBase:  marketURLBase,
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("send cancelled after %d attempt(s): %w", i+1, lastErr)
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// Deliver sends an opportunity alert. The result is informational only.
func (c *Client) Deliver(ctx context.Context, opp models.Opportunity) pipeline.DeliveryResult {
	if err := c.sendMarkdownV2(ctx, c.formatOpportunity(opp)); err != nil {
		return pipeline.DeliveryResult{Err: err}
	}
	logger.Info("Alert sent for market %s", opp.Market.ID)
	return pipeline.DeliveryResult{}
}

// SendStartup announces the monitored channels.
func (c *Client) SendStartup(ctx context.Context, channels []string, threshold float64) error {
	return c.sendMarkdownV2(ctx, formatStartup(channels, threshold))
}

// SendError sends an error notification with a truncated diagnostic.
func (c *Client) SendError(ctx context.Context, cause error) error {
	return c.sendMarkdownV2(ctx, formatError(cause))
}

// formatOpportunity formats an opportunity into a Telegram MarkdownV2 message.
func (c *Client) formatOpportunity(opp models.Opportunity) string {
	directionEmoji := "🟢"
	if opp.Direction == models.No {
		directionEmoji = "🔴"
	}

	edgePct := fmt.Sprintf("%+.1f%%", opp.Edge*100)
	currentPct := fmt.Sprintf("%.1f%%", opp.CurrentPrice*100)
	truePct := fmt.Sprintf("%.1f%%", opp.TrueProb*100)

	preview := escapeMarkdownV2(models.Truncate(opp.NewsText, newsPreviewRunes))
	if len([]rune(opp.NewsText)) > newsPreviewRunes {
		preview += "\\.\\.\\."
	}

	var b strings.Builder
	b.WriteString("🚨 *OPPORTUNITY DETECTED*\n\n")
	fmt.Fprintf(&b, "📰 *Source:* `%s`\n", escapeCode(opp.NewsChannel))
	fmt.Fprintf(&b, "💬 *News:* %s\n\n", preview)
	b.WriteString("━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "❓ *Market:* %s\n\n", escapeMarkdownV2(opp.Market.Question))
	fmt.Fprintf(&b, "%s *Direction:* %s\n", directionEmoji, opp.Direction)
	fmt.Fprintf(&b, "💰 *Current price:* %s\n", escapeMarkdownV2(currentPct))
	fmt.Fprintf(&b, "🧠 *Estimated prob\\.:* %s\n", escapeMarkdownV2(truePct))
	fmt.Fprintf(&b, "📈 *Edge:* `%s`\n\n", edgePct)
	fmt.Fprintf(&b, "💡 *Why:* %s\n\n", escapeMarkdownV2(opp.Reasoning))
	fmt.Fprintf(&b, "🔗 [Open on Polymarket](%s)", escapeLinkURL(opp.Market.URL(c.marketURLBase)))
	return b.String()
}

func formatStartup(channels []string, threshold float64) string {
	var b strings.Builder
	b.WriteString("✅ *Bot started\\!*\n\n📡 *Monitoring channels:*\n")
	for _, ch := range channels {
		if strings.TrimSpace(ch) == "" {
			continue
		}
		fmt.Fprintf(&b, "  • `%s`\n", escapeCode(ch))
	}
	fmt.Fprintf(&b, "\n🎯 Minimum edge: `%.1f%%`\n", threshold*100)
	b.WriteString("⏳ Waiting for news\\.\\.\\.")
	return b.String()
}

func formatError(cause error) string {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return fmt.Sprintf("⚠️ *Bot error:*\n```\n%s\n```", escapeCode(models.Truncate(msg, errorRunes)))
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside `code` or ```pre``` entities.
func escapeCode(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}

// escapeLinkURL escapes the URL part of an inline link.
func escapeLinkURL(u string) string {
	return strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(u)
}
