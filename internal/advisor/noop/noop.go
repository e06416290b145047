package noop

import (
	"context"

	"crypto-trading-bot/internal/types"
)

// Advisor always recommends HOLD with zero confidence. Used when no AI
// provider is configured; the aggregator then works from indicators alone.
type Advisor struct{}

func NewAdvisor() *Advisor {
	return &Advisor{}
}

func (a *Advisor) Recommend(ctx context.Context, pc types.PromptContext) (types.Recommendation, error) {
	return types.Recommendation{
		Pair:       pc.Pair,
		Action:     types.ActionHold,
		Confidence: 0.0,
		Reasoning:  "noop_advisor_fallback",
	}, nil
}
