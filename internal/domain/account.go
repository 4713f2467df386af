package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a signed change in holdings of a single coin.
type Transaction struct {
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AccountSource reads wallet balances and their transaction ledgers.
type AccountSource interface {
	Balance(ctx context.Context, coin string) (decimal.Decimal, error)
	Transactions(ctx context.Context, coin string) ([]Transaction, error)
}
