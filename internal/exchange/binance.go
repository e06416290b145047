package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/types"
)

// Feed serves OHLCV candles and ticker data from Binance spot markets.
// Every call runs under its own timeout; failures wrap ErrDataUnavailable
// and the caller skips the pair for the cycle.
type Feed struct {
	client  *binance.Client
	timeout time.Duration
}

var _ interfaces.MarketDataFeed = (*Feed)(nil)

func NewFeed(apiKey, apiSecret string, timeout time.Duration) *Feed {
	return &Feed{
		client:  binance.NewClient(apiKey, apiSecret),
		timeout: timeout,
	}
}

// symbol converts "BTC/USDT" to the exchange form "BTCUSDT".
func symbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

func (f *Feed) Candles(ctx context.Context, pair, timeframe string, limit int) ([]types.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	klines, err := f.client.NewKlinesService().
		Symbol(symbol(pair)).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s: %v", interfaces.ErrDataUnavailable, pair, err)
	}

	candles := make([]types.Candle, len(klines))
	for i, k := range klines {
		candles[i] = types.Candle{
			Ts:    k.OpenTime / 1000,
			Open:  parseFloat(k.Open),
			High:  parseFloat(k.High),
			Low:   parseFloat(k.Low),
			Close: parseFloat(k.Close),
			Vol:   parseFloat(k.Volume),
		}
	}
	return candles, nil
}

func (f *Feed) Ticker(ctx context.Context, pair string) (types.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stats, err := f.client.NewListPriceChangeStatsService().
		Symbol(symbol(pair)).
		Do(ctx)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("%w: ticker %s: %v", interfaces.ErrDataUnavailable, pair, err)
	}
	if len(stats) == 0 {
		return types.Ticker{}, fmt.Errorf("%w: no ticker stats for %s", interfaces.ErrDataUnavailable, pair)
	}

	return types.Ticker{
		Pair:      pair,
		Price:     parseFloat(stats[0].LastPrice),
		Change24h: parseFloat(stats[0].PriceChangePercent),
	}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
