package interfaces

import (
	"context"

	"crypto-trading-bot/internal/types"
)

// OrderExecutor places market orders. The paper and live implementations are
// interchangeable; core logic never branches on the trading mode.
//
// Buy spends quoteAmount of the quote currency, Sell liquidates baseAmount of
// the base currency. Both return the actual fill so callers tolerate
// slippage. Failures wrap ErrExecution.
type OrderExecutor interface {
	Buy(ctx context.Context, pair string, quoteAmount float64) (types.Fill, error)
	Sell(ctx context.Context, pair string, baseAmount float64) (types.Fill, error)
	Wallet(ctx context.Context) (types.WalletSnapshot, error)
}
