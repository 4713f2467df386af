package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spikebot/internal/domain"
	tgapi "github.com/alanyoungcy/spikebot/internal/platform/telegram"
	"github.com/alanyoungcy/spikebot/internal/profit"
	"github.com/alanyoungcy/spikebot/internal/service"
)

const helpText = `/start - receive spike alerts
/stop - stop receiving spike alerts
/latest - every current spike, even if already reported
/current <coin> [<fiat>] - spot price
/profits <coin> <amount> <fiat> - result of selling from your account
/chart [day|week] - trend chart of the tracked coins
/help - this message`

func (b *Bot) dispatch(ctx context.Context, msg *tgapi.Message, cmd Command) {
	chatID := msg.Chat.ID
	switch cmd.Name {
	case "start":
		b.handleStart(ctx, msg)
	case "stop":
		b.handleStop(ctx, chatID)
	case "latest":
		b.handleLatest(ctx, chatID)
	case "current":
		b.handleCurrent(ctx, chatID, cmd)
	case "profits":
		b.handleProfits(ctx, chatID, cmd)
	case "chart":
		b.handleChart(ctx, chatID, cmd)
	case "help":
		b.reply(ctx, chatID, helpText)
	default:
		b.reply(ctx, chatID, "Unknown command /"+cmd.Name+". Try /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgapi.Message) {
	username := msg.Chat.Username
	if username == "" && msg.From != nil {
		username = msg.From.Username
	}
	added, err := b.deps.Subscribers.Subscribe(ctx, msg.Chat.ID, username)
	if err != nil {
		b.replyError(ctx, msg.Chat.ID, "subscribe", err)
		return
	}
	if !added {
		b.reply(ctx, msg.Chat.ID, "You are already subscribed.")
		return
	}
	text := "Subscribed. You will hear about every spike."
	if b.cfg.PollInterval > 0 {
		text = "Subscribed. Prices are checked every " + b.cfg.PollInterval.String() + "."
	}
	b.reply(ctx, msg.Chat.ID, text)
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	removed, err := b.deps.Subscribers.Unsubscribe(ctx, chatID)
	if err != nil {
		b.replyError(ctx, chatID, "unsubscribe", err)
		return
	}
	if !removed {
		b.reply(ctx, chatID, "You were not subscribed.")
		return
	}
	b.reply(ctx, chatID, "Unsubscribed.")
}

func (b *Bot) handleLatest(ctx context.Context, chatID int64) {
	alerts, err := b.deps.Alerts.Check(ctx, true)
	if err != nil {
		b.replyError(ctx, chatID, "check prices", err)
		return
	}
	if len(alerts) == 0 {
		b.reply(ctx, chatID, "Nothing is spiking right now.")
		return
	}
	b.reply(ctx, chatID, service.JoinAlerts(alerts))
}

func (b *Bot) handleCurrent(ctx context.Context, chatID int64, cmd Command) {
	coin := strings.ToUpper(cmd.Arg(0))
	if coin == "" {
		b.reply(ctx, chatID, "Usage: /current <coin> [<fiat>]")
		return
	}
	fiat := strings.ToUpper(cmd.Arg(1))
	if fiat == "" {
		fiat = b.cfg.DefaultFiat
	}

	price, err := b.deps.Spot.SpotPrice(ctx, coin, fiat)
	if err != nil {
		b.replyError(ctx, chatID, "look up "+coin, err)
		return
	}
	b.reply(ctx, chatID, "1 "+coin+" = "+strconv.FormatFloat(price, 'f', 2, 64)+" "+fiat)
}

func (b *Bot) handleProfits(ctx context.Context, chatID int64, cmd Command) {
	if b.deps.Profits == nil {
		b.reply(ctx, chatID, "Profit lookups need exchange credentials, none are configured.")
		return
	}
	if len(cmd.Args) != 3 {
		b.reply(ctx, chatID, "Usage: /profits <coin> <amount> <fiat>")
		return
	}
	coin, fiat := strings.ToUpper(cmd.Args[0]), strings.ToUpper(cmd.Args[2])
	amount, err := decimal.NewFromString(cmd.Args[1])
	if err != nil || !amount.IsPositive() {
		b.reply(ctx, chatID, "The amount must be a positive number.")
		return
	}

	result, err := b.deps.Profits.SellProfit(ctx, coin, amount, fiat)
	if err != nil {
		b.replyError(ctx, chatID, "compute profits", err)
		return
	}
	b.reply(ctx, chatID, profit.Describe(result, fiat))
}

func (b *Bot) handleChart(ctx context.Context, chatID int64, cmd Command) {
	period := domain.PeriodDay
	if arg := cmd.Arg(0); arg != "" {
		p, err := domain.ParsePeriod(arg)
		if err != nil {
			b.reply(ctx, chatID, "Usage: /chart [day|week]")
			return
		}
		period = p
	}

	png, err := b.deps.Charts.Render(ctx, period, nil)
	if err != nil {
		b.replyError(ctx, chatID, "draw the chart", err)
		return
	}
	if err := b.deps.API.SendPhoto(ctx, chatID, png, "Past "+period.String()); err != nil {
		b.logger.WarnContext(ctx, "send chart failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}
