package interfaces

import (
	"context"

	"crypto-trading-bot/internal/types"
)

// MarketDataFeed supplies OHLCV history and live ticker data for a pair.
// Implementations wrap network failures with ErrDataUnavailable and apply
// their own per-call timeouts; no retries happen at this layer.
type MarketDataFeed interface {
	Candles(ctx context.Context, pair, timeframe string, limit int) ([]types.Candle, error)
	Ticker(ctx context.Context, pair string) (types.Ticker, error)
}
