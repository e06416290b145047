package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-trading-bot/internal/advisor"
	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/position"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/strategy"
	"crypto-trading-bot/internal/ta"
	"crypto-trading-bot/internal/tradelog"
	"crypto-trading-bot/internal/types"
)

// Engine runs one full trading pass for a pair: refresh market data, check
// protective levels on the open position, gather indicator and AI signals,
// aggregate them into a decision and act on it within the risk limits.
type Engine struct {
	cfg       *store.Config
	feed      interfaces.MarketDataFeed
	executor  interfaces.OrderExecutor
	advisors  *advisor.Cache
	agg       *strategy.Aggregator
	risk      *risk.Manager
	positions *position.Manager
	db        interfaces.Store
	paused    func() bool
}

var _ interfaces.Engine = (*Engine)(nil)

func New(
	cfg *store.Config,
	feed interfaces.MarketDataFeed,
	executor interfaces.OrderExecutor,
	advisors *advisor.Cache,
	agg *strategy.Aggregator,
	riskMgr *risk.Manager,
	positions *position.Manager,
	db interfaces.Store,
	paused func() bool,
) *Engine {
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Engine{
		cfg:       cfg,
		feed:      feed,
		executor:  executor,
		advisors:  advisors,
		agg:       agg,
		risk:      riskMgr,
		positions: positions,
		db:        db,
		paused:    paused,
	}
}

func (e *Engine) Step(ctx context.Context, pair string) (*types.StepResult, error) {
	logger.Debug(ctx, "Starting trading step", "pair", pair)

	candles, err := e.feed.Candles(ctx, pair, e.cfg.Trading.Timeframe, e.cfg.Trading.CandleLimit)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch candles", err, "pair", pair)
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s", interfaces.ErrDataUnavailable, pair)
	}
	logger.Debug(ctx, "Candles fetched", "pair", pair, "count", len(candles))

	tick, err := e.feed.Ticker(ctx, pair)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch ticker", err, "pair", pair)
		return nil, err
	}
	price := tick.Price

	inds := e.calcIndicators(candles)
	logger.Debug(ctx, "Indicators calculated",
		"pair", pair,
		"price", price,
		"rsi", inds.RSI,
		"macd_histogram", inds.MACDHistogram,
		"ema_fast", inds.EMAFast,
		"ema_slow", inds.EMASlow,
		"bb_upper", inds.BB.Upper,
		"bb_lower", inds.BB.Lower,
	)

	// Protective levels come first: a triggered stop or target closes the
	// position before any new decision is considered.
	if closed, err := e.positions.Monitor(ctx, pair, price); err != nil {
		logger.ErrorWithErr(ctx, "Failed to close triggered position", err, "pair", pair)
		return nil, err
	} else if closed != nil {
		return &types.StepResult{
			Pair:     pair,
			Price:    price,
			Time:     time.Now().UTC().Unix(),
			Position: closed,
			Reason:   closed.CloseReason,
		}, nil
	}

	// The advisory is best-effort. A failed refresh degrades to indicator
	// votes only; the cycle never aborts on advisory errors.
	var rec *types.Recommendation
	if r, err := e.advisors.Recommendation(ctx, pair, candles, inds); err != nil {
		logger.Warn(ctx, "Advisory unavailable, using indicator votes only", "pair", pair, "error", err)
	} else {
		rec = &r
	}

	d := e.agg.Aggregate(pair, inds, price, rec)
	logger.Decision(ctx, pair, d.Action, d.Confidence, d.Reason, "downgraded", d.Downgraded)

	if err := e.db.AppendDecision(ctx, d); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist decision", err, "pair", pair)
	}
	_ = tradelog.AppendDecision(tradelog.DecisionEntry{
		Pair: pair, Action: d.Action, Reason: d.Reason, Confidence: d.Confidence, Price: price,
		Indicators: map[string]float64{
			"RSI":      inds.RSI,
			"MACD_H":   inds.MACDHistogram,
			"EMA_FAST": inds.EMAFast,
			"EMA_SLOW": inds.EMASlow,
			"BB_UP":    inds.BB.Upper,
			"BB_LOW":   inds.BB.Lower,
		},
	})

	result := &types.StepResult{Pair: pair, Decision: d, Price: price, Time: time.Now().UTC().Unix(), Reason: d.Reason}

	switch d.Action {
	case types.ActionSell:
		if e.positions.Get(pair) == nil {
			logger.Debug(ctx, "SELL decision with no open position, nothing to do", "pair", pair)
			result.Reason = "no_position_to_sell"
			return result, nil
		}
		closed, err := e.positions.Close(ctx, pair, types.CloseReasonSignal)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to close position on sell signal", err, "pair", pair)
			return nil, err
		}
		result.Position = closed
		result.Reason = types.CloseReasonSignal

	case types.ActionBuy:
		if e.positions.Get(pair) != nil {
			logger.Debug(ctx, "BUY decision with position already open", "pair", pair)
			result.Reason = "position_already_open"
			return result, nil
		}
		if e.paused() {
			logger.Info(ctx, "BUY decision skipped, bot is paused", "pair", pair)
			result.Reason = "paused"
			return result, nil
		}

		wallet, err := e.executor.Wallet(ctx)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to read wallet", err, "pair", pair)
			return nil, err
		}
		available := wallet.Balances[e.cfg.Trading.QuoteCurrency]

		verdict := e.risk.Authorize(d, available, e.cfg.Trading.TradeAmount)
		if !verdict.Approved {
			logger.Risk(ctx, pair, "ENTRY_REJECTED", "reason", verdict.Reason,
				"confidence", d.Confidence, "available", available)
			result.Reason = verdict.Reason
			return result, nil
		}

		opened, err := e.positions.Open(ctx, d, e.cfg.Trading.TradeAmount)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to open position", err, "pair", pair)
			return nil, err
		}
		result.Position = opened

	default:
		logger.Debug(ctx, "HOLD decision, no action taken", "pair", pair, "reason", d.Reason)
	}

	return result, nil
}

func (e *Engine) calcIndicators(candles []types.Candle) types.IndicatorSet {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var inds types.IndicatorSet
	inds.RSI = ta.RSI(closes, e.cfg.Indicators.RSIPeriod)
	inds.MACD, inds.MACDSignal, inds.MACDHistogram = ta.MACD(closes,
		e.cfg.Indicators.MACDFast, e.cfg.Indicators.MACDSlow, e.cfg.Indicators.MACDSignal)
	inds.EMAFast = ta.EMA(closes, e.cfg.Indicators.EMAFast)
	inds.EMASlow = ta.EMA(closes, e.cfg.Indicators.EMASlow)
	inds.BB.Middle, inds.BB.Upper, inds.BB.Lower = ta.Bollinger(closes,
		e.cfg.Indicators.BBWindow, e.cfg.Indicators.BBStdDev)
	return inds
}

// SkippablePairError reports whether the step error is one that should skip
// the pair for this cycle rather than stop the bot.
func SkippablePairError(err error) bool {
	return errors.Is(err, interfaces.ErrDataUnavailable) ||
		errors.Is(err, interfaces.ErrAdvisory) ||
		errors.Is(err, interfaces.ErrExecution)
}
