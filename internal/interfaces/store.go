package interfaces

import (
	"context"

	"crypto-trading-bot/internal/types"
)

// Store persists positions, decisions, AI history and wallet snapshots.
// Write failures wrap ErrPersistence.
type Store interface {
	SavePosition(ctx context.Context, p types.Position) error
	UpdatePosition(ctx context.Context, p types.Position) error
	OpenPositions(ctx context.Context) ([]types.Position, error)
	ClosedPositions(ctx context.Context, limit int) ([]types.Position, error)

	AppendDecision(ctx context.Context, d types.Decision) error
	Decisions(ctx context.Context, pair string, limit int) ([]types.Decision, error)

	AppendRecommendation(ctx context.Context, r types.Recommendation) error
	Recommendations(ctx context.Context, pair string, limit int) ([]types.Recommendation, error)

	SaveWalletSnapshot(ctx context.Context, w types.WalletSnapshot) error
	WalletHistory(ctx context.Context, limit int) ([]types.WalletSnapshot, error)
	Performance(ctx context.Context) (types.PerformanceSummary, error)

	Close() error
}
