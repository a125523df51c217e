package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
)

const recentBatchLimit = 100

// Listener turns posts from the configured channels into news events.
// The bot must be a member of every monitored channel.
type Listener struct {
	bot         botAPI
	channels    []string
	usernames   map[string]struct{}
	chatIDs     map[int64]struct{}
	pollTimeout int
	now         func() time.Time
}

// NewListener connects to the Bot API and creates a listener for channels.
func NewListener(botToken string, channels []string, pollTimeout time.Duration) (*Listener, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newListener(bot, channels, pollTimeout), nil
}

func newListener(bot botAPI, channels []string, pollTimeout time.Duration) *Listener {
	l := &Listener{
		bot:         bot,
		usernames:   make(map[string]struct{}),
		chatIDs:     make(map[int64]struct{}),
		pollTimeout: int(pollTimeout / time.Second),
		now:         time.Now,
	}
	if l.pollTimeout <= 0 {
		l.pollTimeout = 60
	}
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		l.channels = append(l.channels, ch)
		if id, err := strconv.ParseInt(ch, 10, 64); err == nil {
			l.chatIDs[id] = struct{}{}
			continue
		}
		l.usernames[strings.ToLower(strings.TrimPrefix(ch, "@"))] = struct{}{}
	}
	return l
}

// Channels returns the monitored channel identifiers as configured.
func (l *Listener) Channels() []string {
	return append([]string(nil), l.channels...)
}

// Subscribe starts polling for updates and returns the stream of news events.
// The channel is closed once ctx is cancelled.
func (l *Listener) Subscribe(ctx context.Context) <-chan models.NewsEvent {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = l.pollTimeout
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := l.bot.GetUpdatesChan(u)

	out := make(chan models.NewsEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				l.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					l.handleCommand(update.Message)
					continue
				}
				event, ok := l.toNewsEvent(update.ChannelPost)
				if !ok {
					continue
				}
				logger.Debug("News from %s: %s", event.Channel, event.Preview(80))
				select {
				case out <- event:
				case <-ctx.Done():
					l.bot.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// FetchRecent drains the updates retained by Telegram and returns the channel
// posts published within window, oldest first.
func (l *Listener) FetchRecent(ctx context.Context, window time.Duration) ([]models.NewsEvent, error) {
	cutoff := l.now().Add(-window)
	var events []models.NewsEvent

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := tgbotapi.NewUpdate(offset)
		u.Limit = recentBatchLimit
		u.AllowedUpdates = []string{"channel_post"}
		batch, err := l.bot.GetUpdates(u)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch updates: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, update := range batch {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			event, ok := l.toNewsEvent(update.ChannelPost)
			if !ok || event.Timestamp.Before(cutoff) {
				continue
			}
			events = append(events, event)
		}
		if len(batch) < recentBatchLimit {
			break
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	logger.Info("Fetched %d recent news event(s) from the last %s", len(events), window)
	return events, nil
}

// toNewsEvent converts a channel post from a monitored channel. Posts without
// text or caption are ignored.
func (l *Listener) toNewsEvent(msg *tgbotapi.Message) (models.NewsEvent, bool) {
	if msg == nil || msg.Chat == nil || !l.monitors(msg.Chat) {
		return models.NewsEvent{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return models.NewsEvent{}, false
	}

	channel := msg.Chat.UserName
	if channel == "" {
		channel = strconv.FormatInt(msg.Chat.ID, 10)
	}
	return models.NewsEvent{
		ID:        uuid.NewString(),
		Text:      text,
		Channel:   channel,
		Timestamp: msg.Time(),
		MessageID: msg.MessageID,
	}, true
}

func (l *Listener) monitors(chat *tgbotapi.Chat) bool {
	if _, ok := l.chatIDs[chat.ID]; ok {
		return true
	}
	if chat.UserName == "" {
		return false
	}
	_, ok := l.usernames[strings.ToLower(chat.UserName)]
	return ok
}

func (l *Listener) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		text = fmt.Sprintf("Monitoring %d channel(s): %s", len(l.channels), strings.Join(l.channels, ", "))
	default:
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	l.bot.Send(reply) //nolint:errcheck
}
