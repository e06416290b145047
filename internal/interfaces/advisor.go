package interfaces

import (
	"context"

	"crypto-trading-bot/internal/types"
)

// AIProvider produces a structured trading recommendation from recent market
// state. Failed or unparsable responses are errors; the advisory cache wraps
// them with ErrAdvisory.
type AIProvider interface {
	Recommend(ctx context.Context, pc types.PromptContext) (types.Recommendation, error)
}
