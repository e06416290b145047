package interfaces

import (
	"context"

	"crypto-trading-bot/internal/types"
)

type Engine interface {
	Step(ctx context.Context, pair string) (*types.StepResult, error)
}
