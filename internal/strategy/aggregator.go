package strategy

import (
	"math"
	"time"

	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

// Per-indicator vote strengths. The relative weighting between indicator and
// AI votes comes from config; these are the base confidences each threshold
// rule asserts.
const (
	rsiVoteConfidence  = 65.0
	macdVoteConfidence = 60.0
	emaVoteConfidence  = 50.0
	bbVoteConfidence   = 55.0
)

// Aggregator combines indicator votes and the AI recommendation into one
// Decision. Pure function of its inputs; no hidden state, no randomness.
type Aggregator struct {
	cfg *store.Config
	now func() time.Time
}

func New(cfg *store.Config) *Aggregator {
	return &Aggregator{cfg: cfg, now: time.Now}
}

// Aggregate produces the Decision for one pair in one cycle. rec may be nil
// when the advisory call failed or is disabled; indicator votes then stand
// alone. A non-hold result below the confidence threshold is downgraded to
// HOLD but keeps its confidence for audit.
func (a *Aggregator) Aggregate(pair string, inds types.IndicatorSet, price float64, rec *types.Recommendation) types.Decision {
	signals := a.indicatorVotes(inds, price)
	if rec != nil {
		if v, ok := a.aiVote(rec); ok {
			signals = append(signals, v)
		}
	}

	action, confidence := tally(signals)

	d := types.Decision{
		Pair:       pair,
		Action:     action,
		Confidence: confidence,
		Reason:     "signal_aggregation",
		Signals:    signals,
		Ts:         a.now().Unix(),
	}
	if action != types.ActionHold && confidence < a.cfg.Strategy.ConfidenceThreshold {
		d.Action = types.ActionHold
		d.Downgraded = true
		d.Reason = "below_confidence_threshold"
	}
	return d
}

func (a *Aggregator) indicatorVotes(inds types.IndicatorSet, price float64) []types.Signal {
	w := a.cfg.Strategy.Weights
	votes := make([]types.Signal, 0, 4)

	if !math.IsNaN(inds.RSI) {
		switch {
		case inds.RSI < a.cfg.Strategy.RSIOversold:
			votes = append(votes, types.Signal{Source: "rsi", Direction: types.ActionBuy, Weight: w.RSI, Confidence: rsiVoteConfidence})
		case inds.RSI > a.cfg.Strategy.RSIOverbought:
			votes = append(votes, types.Signal{Source: "rsi", Direction: types.ActionSell, Weight: w.RSI, Confidence: rsiVoteConfidence})
		default:
			votes = append(votes, types.Signal{Source: "rsi", Direction: types.ActionHold, Weight: w.RSI})
		}
	}

	if !math.IsNaN(inds.MACDHistogram) {
		switch {
		case inds.MACDHistogram > 0:
			votes = append(votes, types.Signal{Source: "macd", Direction: types.ActionBuy, Weight: w.MACD, Confidence: macdVoteConfidence})
		case inds.MACDHistogram < 0:
			votes = append(votes, types.Signal{Source: "macd", Direction: types.ActionSell, Weight: w.MACD, Confidence: macdVoteConfidence})
		default:
			votes = append(votes, types.Signal{Source: "macd", Direction: types.ActionHold, Weight: w.MACD})
		}
	}

	if !math.IsNaN(inds.EMAFast) && !math.IsNaN(inds.EMASlow) {
		switch {
		case inds.EMAFast > inds.EMASlow:
			votes = append(votes, types.Signal{Source: "ema", Direction: types.ActionBuy, Weight: w.EMA, Confidence: emaVoteConfidence})
		case inds.EMAFast < inds.EMASlow:
			votes = append(votes, types.Signal{Source: "ema", Direction: types.ActionSell, Weight: w.EMA, Confidence: emaVoteConfidence})
		default:
			votes = append(votes, types.Signal{Source: "ema", Direction: types.ActionHold, Weight: w.EMA})
		}
	}

	if !math.IsNaN(inds.BB.Lower) && !math.IsNaN(inds.BB.Upper) {
		switch {
		case price < inds.BB.Lower:
			votes = append(votes, types.Signal{Source: "bollinger", Direction: types.ActionBuy, Weight: w.Bollinger, Confidence: bbVoteConfidence})
		case price > inds.BB.Upper:
			votes = append(votes, types.Signal{Source: "bollinger", Direction: types.ActionSell, Weight: w.Bollinger, Confidence: bbVoteConfidence})
		default:
			votes = append(votes, types.Signal{Source: "bollinger", Direction: types.ActionHold, Weight: w.Bollinger})
		}
	}

	return votes
}

// aiVote maps a recommendation onto a vote. Only directional recommendations
// above the configured minimum confidence participate; weak or HOLD advice
// is recorded as a hold vote so it still shows up in the audit trail.
func (a *Aggregator) aiVote(rec *types.Recommendation) (types.Signal, bool) {
	w := a.cfg.Strategy.Weights.AI
	if rec.Action == types.ActionHold || rec.Confidence < a.cfg.AI.MinConfidence {
		return types.Signal{Source: "ai", Direction: types.ActionHold, Weight: w}, true
	}
	return types.Signal{Source: "ai", Direction: rec.Action, Weight: w, Confidence: rec.Confidence}, true
}

// tally computes the weighted score per direction and the confidence of the
// winning side. Ties resolve to hold.
func tally(signals []types.Signal) (string, float64) {
	var buyScore, sellScore, buyWeight, sellWeight float64
	for _, s := range signals {
		switch s.Direction {
		case types.ActionBuy:
			buyScore += s.Weight * s.Confidence
			buyWeight += s.Weight
		case types.ActionSell:
			sellScore += s.Weight * s.Confidence
			sellWeight += s.Weight
		}
	}

	switch {
	case buyScore > sellScore:
		return types.ActionBuy, clamp(buyScore/buyWeight, 0, 100)
	case sellScore > buyScore:
		return types.ActionSell, clamp(sellScore/sellWeight, 0, 100)
	default:
		return types.ActionHold, 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
