package profit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// BalancePoint is the coin balance held at a point in time.
type BalancePoint struct {
	Time    time.Time
	Balance decimal.Decimal
}

// Calculator estimates the fiat profit of selling part of a holding.
type Calculator struct {
	accounts domain.AccountSource
	prices   domain.SpotSource
	now      func() time.Time
}

// NewCalculator creates a Calculator over the given account and price sources.
func NewCalculator(accounts domain.AccountSource, prices domain.SpotSource) *Calculator {
	return &Calculator{accounts: accounts, prices: prices, now: time.Now}
}

// SellProfit returns spot*amount minus what the sold coins cost when they
// were acquired. Coins are attributed oldest first. Selling more than the
// current balance fails with domain.ErrInsufficientBalance.
func (c *Calculator) SellProfit(ctx context.Context, coin string, amount decimal.Decimal, fiat string) (decimal.Decimal, error) {
	coin, fiat = strings.ToUpper(coin), strings.ToUpper(fiat)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("profit: sell amount must be positive, got %s", amount)
	}

	balance, err := c.accounts.Balance(ctx, coin)
	if err != nil {
		return decimal.Zero, fmt.Errorf("profit: balance %s: %w", coin, err)
	}
	if amount.GreaterThan(balance) {
		return decimal.Zero, fmt.Errorf("profit: sell %s %s: %w (available %s)", amount, coin, domain.ErrInsufficientBalance, balance)
	}

	txs, err := c.accounts.Transactions(ctx, coin)
	if err != nil {
		return decimal.Zero, fmt.Errorf("profit: transactions %s: %w", coin, err)
	}

	hull := MonotoneHull(BalanceHistory(txs, balance, c.now()))

	cost := decimal.Zero
	for i := 0; i+1 < len(hull); i += 2 {
		before := decimal.Min(hull[i].Balance, amount)
		after := decimal.Min(hull[i+1].Balance, amount)
		acquired := after.Sub(before)
		if acquired.IsZero() {
			continue
		}
		rate, err := c.prices.HistoricRate(ctx, coin, fiat, hull[i].Time)
		if err != nil {
			return decimal.Zero, fmt.Errorf("profit: rate %s-%s at %s: %w", coin, fiat, hull[i].Time.Format(time.RFC3339), err)
		}
		cost = cost.Add(acquired.Mul(decimal.NewFromFloat(rate)))
	}

	spot, err := c.prices.SpotPrice(ctx, coin, fiat)
	if err != nil {
		return decimal.Zero, fmt.Errorf("profit: spot %s-%s: %w", coin, fiat, err)
	}
	return decimal.NewFromFloat(spot).Mul(amount).Sub(cost), nil
}

// BalanceHistory replays txs oldest first, recording the balance before and
// after each one, and ends with the current balance at now.
func BalanceHistory(txs []domain.Transaction, current decimal.Decimal, now time.Time) []BalancePoint {
	sorted := append([]domain.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	points := make([]BalancePoint, 0, 2*len(sorted)+1)
	running := decimal.Zero
	for _, tx := range sorted {
		points = append(points, BalancePoint{Time: tx.CreatedAt, Balance: running})
		running = running.Add(tx.Amount)
		points = append(points, BalancePoint{Time: tx.CreatedAt, Balance: running})
	}
	return append(points, BalancePoint{Time: now, Balance: current})
}

// MonotoneHull walks the history backward from the present and clips every
// balance above the lowest balance seen since, so the result never
// decreases going forward in time.
func MonotoneHull(points []BalancePoint) []BalancePoint {
	out := make([]BalancePoint, len(points))
	if len(points) == 0 {
		return out
	}
	ceiling := points[len(points)-1].Balance
	for i := len(points) - 1; i >= 0; i-- {
		b := points[i].Balance
		if b.GreaterThan(ceiling) {
			b = ceiling
		} else {
			ceiling = b
		}
		out[i] = BalancePoint{Time: points[i].Time, Balance: b}
	}
	return out
}

// Describe renders a profit figure as a chat reply.
func Describe(profit decimal.Decimal, fiat string) string {
	fiat = strings.ToUpper(fiat)
	rounded := profit.Round(2)
	switch {
	case rounded.IsPositive():
		return fmt.Sprintf("Selling would yield %s %s in profits", rounded.StringFixed(2), fiat)
	case rounded.IsNegative():
		return fmt.Sprintf("Selling would yield %s %s in losses", rounded.Abs().StringFixed(2), fiat)
	default:
		return "No portfolio change would be yielded by selling"
	}
}
