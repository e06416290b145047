package strategy

import (
	"math"
	"testing"

	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Strategy.ConfidenceThreshold = 70
	cfg.Strategy.RSIOversold = 30
	cfg.Strategy.RSIOverbought = 70
	cfg.Strategy.Weights.RSI = 1
	cfg.Strategy.Weights.MACD = 1
	cfg.Strategy.Weights.EMA = 1
	cfg.Strategy.Weights.Bollinger = 1
	cfg.Strategy.Weights.AI = 1.5
	cfg.AI.MinConfidence = 70
	return cfg
}

func neutralIndicators() types.IndicatorSet {
	inds := types.IndicatorSet{
		RSI:           50,
		MACDHistogram: 0,
		EMAFast:       100,
		EMASlow:       100,
	}
	inds.BB.Lower = 90
	inds.BB.Middle = 100
	inds.BB.Upper = 110
	return inds
}

func bullishIndicators() types.IndicatorSet {
	inds := types.IndicatorSet{
		RSI:           20, // oversold
		MACD:          1,
		MACDSignal:    0.5,
		MACDHistogram: 0.5,
		EMAFast:       101,
		EMASlow:       100,
	}
	inds.BB.Lower = 95
	inds.BB.Middle = 100
	inds.BB.Upper = 105
	return inds
}

func TestAggregateBullishConsensus(t *testing.T) {
	// RSI (65 conf, weight 1) plus a strong AI buy (90 conf, weight 1.5)
	// gives a weighted mean of 80, above the 70 threshold.
	cfg := testConfig()
	cfg.Strategy.Weights.MACD = 0
	cfg.Strategy.Weights.EMA = 0
	cfg.Strategy.Weights.Bollinger = 0
	a := New(cfg)
	rec := &types.Recommendation{Action: types.ActionBuy, Confidence: 90}

	d := a.Aggregate("BTC/USDT", bullishIndicators(), 100, rec)

	if d.Action != types.ActionBuy {
		t.Errorf("Expected BUY, got %s with confidence %f", d.Action, d.Confidence)
	}
	if d.Confidence != 80 {
		t.Errorf("Expected weighted mean confidence 80, got %f", d.Confidence)
	}
	if d.Downgraded {
		t.Error("Expected an actionable decision, not a downgrade")
	}
}

func TestAggregateConfidenceBounds(t *testing.T) {
	a := New(testConfig())
	rec := &types.Recommendation{Action: types.ActionBuy, Confidence: 90}

	d := a.Aggregate("BTC/USDT", bullishIndicators(), 94, rec)
	if d.Confidence < 0 || d.Confidence > 100 {
		t.Errorf("Confidence out of [0,100]: %f", d.Confidence)
	}
}

func TestAggregateTieResolvesToHold(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)

	// Scale the weights so the MACD sell vote and the EMA buy vote both
	// score exactly 50; equal scores must resolve to hold.
	cfg.Strategy.Weights.RSI = 0
	cfg.Strategy.Weights.Bollinger = 0
	cfg.Strategy.Weights.AI = 0
	cfg.Strategy.Weights.MACD = 50.0 / 60.0 // macd vote scores 50
	cfg.Strategy.Weights.EMA = 1            // ema vote scores 50

	inds := neutralIndicators()
	inds.MACDHistogram = -1 // sell, score 50
	inds.EMAFast = 101      // buy, score 50
	inds.EMASlow = 100

	d := a.Aggregate("BTC/USDT", inds, 100, nil)
	if d.Action != types.ActionHold {
		t.Errorf("Expected HOLD on a tie, got %s with confidence %f", d.Action, d.Confidence)
	}
}

func TestAggregateAllHoldVotes(t *testing.T) {
	a := New(testConfig())
	d := a.Aggregate("BTC/USDT", neutralIndicators(), 100, nil)
	if d.Action != types.ActionHold {
		t.Errorf("Expected HOLD, got %s", d.Action)
	}
	if d.Confidence != 0 {
		t.Errorf("Expected zero confidence with no directional votes, got %f", d.Confidence)
	}
}

func TestAggregateThresholdDowngrade(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.ConfidenceThreshold = 99
	a := New(cfg)

	d := a.Aggregate("BTC/USDT", bullishIndicators(), 100, nil)
	if d.Action != types.ActionHold {
		t.Errorf("Expected downgrade to HOLD, got %s", d.Action)
	}
	if !d.Downgraded {
		t.Error("Expected the downgrade to be flagged")
	}
	if d.Confidence == 0 {
		t.Error("Expected the original confidence to be kept for audit")
	}
}

func TestAggregateWeakAIVoteIsHold(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Weights.RSI = 0
	cfg.Strategy.Weights.MACD = 0
	cfg.Strategy.Weights.EMA = 0
	cfg.Strategy.Weights.Bollinger = 0
	a := New(cfg)

	rec := &types.Recommendation{Action: types.ActionBuy, Confidence: 40} // below min_confidence 70
	d := a.Aggregate("BTC/USDT", neutralIndicators(), 100, rec)
	if d.Action != types.ActionHold {
		t.Errorf("Expected weak AI advice to carry no direction, got %s", d.Action)
	}
}

func TestAggregateSkipsNaNIndicators(t *testing.T) {
	a := New(testConfig())
	inds := types.IndicatorSet{
		RSI:           math.NaN(),
		MACDHistogram: math.NaN(),
		EMAFast:       math.NaN(),
		EMASlow:       math.NaN(),
	}
	inds.BB.Lower = math.NaN()
	inds.BB.Upper = math.NaN()

	d := a.Aggregate("BTC/USDT", inds, 100, nil)
	if d.Action != types.ActionHold {
		t.Errorf("Expected HOLD with no usable indicators, got %s", d.Action)
	}
	if len(d.Signals) != 0 {
		t.Errorf("Expected no votes from NaN indicators, got %d", len(d.Signals))
	}
}

func TestAggregateDeterministic(t *testing.T) {
	a := New(testConfig())
	rec := &types.Recommendation{Action: types.ActionSell, Confidence: 85}
	inds := bullishIndicators()

	first := a.Aggregate("ETH/USDT", inds, 100, rec)
	second := a.Aggregate("ETH/USDT", inds, 100, rec)
	if first.Action != second.Action || first.Confidence != second.Confidence {
		t.Errorf("Aggregation not deterministic: %+v vs %+v", first, second)
	}
}
