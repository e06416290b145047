package advisorobs

import (
	"context"
	"time"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/trace"
	"crypto-trading-bot/internal/types"
)

type observableProvider struct {
	provider interfaces.AIProvider
}

var _ interfaces.AIProvider = (*observableProvider)(nil)

func Wrap(p interfaces.AIProvider) interfaces.AIProvider {
	return &observableProvider{provider: p}
}

func (op *observableProvider) Recommend(ctx context.Context, pc types.PromptContext) (types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.Recommend")
	defer span.End()

	start := time.Now()

	rec, err := op.provider.Recommend(ctx, pc)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Advisory call failed", err,
			"pair", pc.Pair,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return types.Recommendation{}, err
	}

	logger.InfoSkip(ctx, 1, "Advisory call completed",
		"pair", pc.Pair,
		"action", rec.Action,
		"confidence", rec.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}
