// Package telegram is the chat front end: it long-polls the Bot API and
// answers commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spikebot/internal/domain"
	tgapi "github.com/alanyoungcy/spikebot/internal/platform/telegram"
)

const (
	retryDelay   = 3 * time.Second
	staleMessage = 5 * time.Minute
)

// API is the subset of the Bot API client the bot uses.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgapi.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
}

// AlertChecker runs an alert batch on demand.
type AlertChecker interface {
	Check(ctx context.Context, ignorePrevious bool) ([]domain.Alert, error)
}

// SubscriberRegistry adds and removes alert subscribers.
type SubscriberRegistry interface {
	Subscribe(ctx context.Context, chatID int64, username string) (bool, error)
	Unsubscribe(ctx context.Context, chatID int64) (bool, error)
}

// ProfitCalculator prices a hypothetical sale.
type ProfitCalculator interface {
	SellProfit(ctx context.Context, coin string, amount decimal.Decimal, fiat string) (decimal.Decimal, error)
}

// Config holds the bot's access and rate limit settings.
type Config struct {
	// Whitelist lists the chats allowed to talk to the bot. Empty allows all.
	Whitelist     []int64
	CommandLimit  int
	CommandWindow time.Duration
	DefaultFiat   string
	PollInterval  time.Duration
}

// Deps lists the bot's collaborators. Limiter and Profits may be nil.
type Deps struct {
	API         API
	Alerts      AlertChecker
	Subscribers SubscriberRegistry
	Spot        domain.SpotSource
	Profits     ProfitCalculator
	Charts      domain.ChartRenderer
	Limiter     domain.RateLimiter
}

// Bot answers chat commands.
type Bot struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewBot creates a Bot.
func NewBot(cfg Config, deps Deps, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "telegram_bot")),
		now:    time.Now,
	}
}

// Run long-polls for updates until ctx is cancelled. Poll failures are
// logged and retried after a short delay.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.InfoContext(ctx, "telegram bot started", slog.Int("whitelist", len(b.cfg.Whitelist)))

	var offset int64
	for {
		updates, err := b.deps.API.GetUpdates(ctx, offset, tgapi.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.InfoContext(ctx, "telegram bot stopped")
				return ctx.Err()
			}
			b.logger.WarnContext(ctx, "get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgapi.Update) {
	msg := u.Message
	if msg == nil {
		return
	}
	if msg.Date > 0 && b.now().Sub(time.Unix(msg.Date, 0)) > staleMessage {
		b.logger.DebugContext(ctx, "skipping stale message", slog.Int64("update_id", u.UpdateID))
		return
	}

	cmd, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	log := b.logger.With(slog.Int64("chat_id", chatID), slog.String("command", cmd.Name))

	if !b.whitelisted(chatID) {
		log.WarnContext(ctx, "command from chat outside whitelist")
		return
	}
	if !b.allow(ctx, chatID) {
		b.reply(ctx, chatID, "Too many commands, try again in a minute.")
		return
	}

	log.InfoContext(ctx, "handling command")
	b.dispatch(ctx, msg, cmd)
}

func (b *Bot) whitelisted(chatID int64) bool {
	return len(b.cfg.Whitelist) == 0 || slices.Contains(b.cfg.Whitelist, chatID)
}

// allow applies the per-chat command limit. A failing limiter lets the
// command through.
func (b *Bot) allow(ctx context.Context, chatID int64) bool {
	if b.deps.Limiter == nil || b.cfg.CommandLimit <= 0 {
		return true
	}
	ok, err := b.deps.Limiter.Allow(ctx, "chat:"+strconv.FormatInt(chatID, 10), b.cfg.CommandLimit, b.cfg.CommandWindow)
	if err != nil {
		b.logger.WarnContext(ctx, "rate limiter failed", slog.String("error", err.Error()))
		return true
	}
	return ok
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.deps.API.SendMessage(ctx, chatID, text); err != nil {
		b.logger.WarnContext(ctx, "reply failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// replyError answers with a short reason and logs the full error.
func (b *Bot) replyError(ctx context.Context, chatID int64, what string, err error) {
	b.logger.WarnContext(ctx, what+" failed",
		slog.Int64("chat_id", chatID),
		slog.String("error", err.Error()),
	)
	reason := "something went wrong"
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		reason = "a check is already running, try again shortly"
	case errors.Is(err, domain.ErrInsufficientBalance):
		reason = "you do not hold that much"
	case errors.Is(err, domain.ErrUnauthorized):
		reason = "the exchange rejected our credentials"
	case errors.Is(err, domain.ErrRateLimited):
		reason = "the exchange is rate limiting us"
	case errors.Is(err, domain.ErrDataUnavailable):
		reason = "price data is unavailable right now"
	}
	b.reply(ctx, chatID, fmt.Sprintf("Could not %s: %s.", what, reason))
}
