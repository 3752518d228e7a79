// Package telegram delivers balance reports and bot commands via the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"github.com/rewired-gh/kickbalance/internal/report"
	"github.com/rewired-gh/kickbalance/internal/runner"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// BalancesFunc runs an on-demand projection batch and delivers its report.
type BalancesFunc func(ctx context.Context) error

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
// onBalances may be nil, in which case /balances is answered with a notice.
func (c *Client) ListenForCommands(ctx context.Context, onBalances BalancesFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, onBalances)
				}
			}
		}
	}()
}

// authorized reports whether commands from chatID may be served. Only the configured
// chat may trigger Kickbase traffic.
func (c *Client) authorized(chatID int64) bool {
	return chatID == c.chatID
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, onBalances BalancesFunc) {
	if !c.authorized(msg.Chat.ID) {
		logger.Warn("Ignoring /%s from unauthorized chat %d", msg.Command(), msg.Chat.ID)
		return
	}
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "balances":
		if onBalances == nil {
			c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "On-demand projections are disabled")) //nolint:errcheck
			return
		}
		c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Projecting balances…")) //nolint:errcheck
		go func() {
			if err := onBalances(ctx); err != nil {
				if errors.Is(err, runner.ErrBusy) {
					c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "A projection is already running")) //nolint:errcheck
					return
				}
				logger.Error("On-demand projection failed: %v", err)
				reply := tgbotapi.NewMessage(msg.Chat.ID, "Projection failed: "+err.Error())
				c.bot.Send(reply) //nolint:errcheck
			}
		}()
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a projection error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Projection error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Projections recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendReport sends the balance projections of one league.
func (c *Client) SendReport(leagueName string, rows []models.UserProjection, now time.Time) error {
	return c.sendMarkdownV2(formatReport(leagueName, rows, now))
}

// formatReport formats league projections into a Telegram MarkdownV2 message.
// Telegram has no tables, so every manager gets a short block.
func formatReport(leagueName string, rows []models.UserProjection, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "💰 *%s*\n", escapeMarkdownV2(leagueName))
	fmt.Fprintf(&b, "📅 %s\n\n", escapeMarkdownV2(now.UTC().Format("2006-01-02 15:04")))

	rank := 0
	var failed []models.UserProjection
	for _, row := range rows {
		if row.Failed() {
			failed = append(failed, row)
			continue
		}
		rank++
		p := row.Projection
		fmt.Fprintf(&b, "%d\\. *%s* \\(%s pts\\)\n", rank,
			escapeMarkdownV2(row.User.Name),
			escapeMarkdownV2(strconv.FormatInt(row.User.Points, 10)))
		fmt.Fprintf(&b, "   💶 %s\n", escapeMarkdownV2(report.Range(p.Balance.Min, p.Balance.Max)))
		fmt.Fprintf(&b, "   ⚽ %s\n", escapeMarkdownV2(report.EUR(p.TeamValueNow)))
		fmt.Fprintf(&b, "   🔨 %s\n\n", escapeMarkdownV2(report.Range(p.MaxBid.Min, p.MaxBid.Max)))
	}

	for _, row := range failed {
		fmt.Fprintf(&b, "❌ %s: `%s`\n", escapeMarkdownV2(row.User.Name), escapeMarkdownV2(row.Err.Error()))
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
