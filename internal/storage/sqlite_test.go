package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"crypto-trading-bot/internal/types"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePosition(id, pair string) types.Position {
	return types.Position{
		ID:         id,
		Pair:       pair,
		Side:       types.ActionBuy,
		EntryPrice: 100,
		Amount:     0.05,
		EntryFee:   0.005,
		StopLoss:   97,
		TakeProfit: 105,
		OpenedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:     types.StatusOpen,
		Confidence: 80,
	}
}

func TestPositionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := samplePosition("pos-1", "BTC/USDT")
	if err := s.SavePosition(ctx, p); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}

	open, err := s.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("Expected 1 open position, got %d", len(open))
	}
	got := open[0]
	if got.ID != "pos-1" || got.Pair != "BTC/USDT" || got.EntryPrice != 100 {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.EntryFee != 0.005 {
		t.Errorf("Expected entry fee 0.005, got %f", got.EntryFee)
	}
	if !got.OpenedAt.Equal(p.OpenedAt) {
		t.Errorf("Expected opened_at %v, got %v", p.OpenedAt, got.OpenedAt)
	}
}

func TestClosePositionMovesToHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := samplePosition("pos-1", "BTC/USDT")
	if err := s.SavePosition(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Status = types.StatusClosed
	p.ExitPrice = 105
	p.ClosedAt = p.OpenedAt.Add(time.Hour)
	p.PnL = 0.25
	p.PnLPercent = 5
	p.CloseReason = types.CloseReasonTakeProfit
	if err := s.UpdatePosition(ctx, p); err != nil {
		t.Fatalf("UpdatePosition failed: %v", err)
	}

	open, _ := s.OpenPositions(ctx)
	if len(open) != 0 {
		t.Errorf("Expected no open positions, got %d", len(open))
	}
	closed, err := s.ClosedPositions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Fatalf("Expected 1 closed position, got %d", len(closed))
	}
	if closed[0].CloseReason != types.CloseReasonTakeProfit || closed[0].PnL != 0.25 {
		t.Errorf("Closed position mismatch: %+v", closed[0])
	}
}

func TestOpenPositionsIncludesClosePending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := samplePosition("pos-1", "BTC/USDT")
	p.Status = types.StatusClosePending
	if err := s.SavePosition(ctx, p); err != nil {
		t.Fatal(err)
	}

	open, err := s.OpenPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].Status != types.StatusClosePending {
		t.Errorf("Expected close_pending position to surface on restart, got %+v", open)
	}
}

func TestDecisionHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := types.Decision{
			Pair:       "ETH/USDT",
			Action:     types.ActionBuy,
			Confidence: 75,
			Reason:     "indicator_consensus",
			Signals: []types.Signal{
				{Source: "rsi", Direction: types.ActionBuy, Weight: 1, Confidence: 65},
			},
			Ts: int64(1000 + i),
		}
		if err := s.AppendDecision(ctx, d); err != nil {
			t.Fatalf("AppendDecision failed: %v", err)
		}
	}

	decisions, err := s.Decisions(ctx, "ETH/USDT", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(decisions))
	}
	// Newest first
	if decisions[0].Ts != 1002 {
		t.Errorf("Expected newest decision first, got ts %d", decisions[0].Ts)
	}
	if len(decisions[0].Signals) != 1 || decisions[0].Signals[0].Source != "rsi" {
		t.Errorf("Signals did not survive the round trip: %+v", decisions[0].Signals)
	}

	other, _ := s.Decisions(ctx, "BTC/USDT", 10)
	if len(other) != 0 {
		t.Errorf("Expected no decisions for other pair, got %d", len(other))
	}
}

func TestRecommendationHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := types.Recommendation{
		Pair:       "BTC/USDT",
		Action:     types.ActionBuy,
		Confidence: 85,
		Reasoning:  "oversold bounce",
		Ts:         2000,
	}
	if err := s.AppendRecommendation(ctx, r); err != nil {
		t.Fatalf("AppendRecommendation failed: %v", err)
	}

	recs, err := s.Recommendations(ctx, "BTC/USDT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Reasoning != "oversold bounce" {
		t.Errorf("Recommendation mismatch: %+v", recs)
	}
}

func TestWalletSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := types.WalletSnapshot{
		Balances: map[string]float64{"USDT": 10.25, "BTC": 0},
		Initial:  10,
		Ts:       time.Now().UTC(),
	}
	if err := s.SaveWalletSnapshot(ctx, w); err != nil {
		t.Fatalf("SaveWalletSnapshot failed: %v", err)
	}

	history, err := s.WalletHistory(ctx, 10)
	if err != nil {
		t.Fatalf("WalletHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(history))
	}
	if history[0].Balances["USDT"] != 10.25 || history[0].Initial != 10 {
		t.Errorf("Snapshot round trip mismatch: %+v", history[0])
	}
}

func TestPerformanceAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	closeWith := func(id string, pnl float64) {
		p := samplePosition(id, "BTC/USDT")
		if err := s.SavePosition(ctx, p); err != nil {
			t.Fatal(err)
		}
		p.Status = types.StatusClosed
		p.ClosedAt = p.OpenedAt.Add(time.Hour)
		p.PnL = pnl
		if err := s.UpdatePosition(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	closeWith("w1", 0.5)
	closeWith("w2", 0.3)
	closeWith("l1", -0.2)

	// Open positions must not count toward performance
	if err := s.SavePosition(ctx, samplePosition("open", "ETH/USDT")); err != nil {
		t.Fatal(err)
	}

	perf, err := s.Performance(ctx)
	if err != nil {
		t.Fatalf("Performance failed: %v", err)
	}
	if perf.TotalTrades != 3 || perf.WinningTrades != 2 || perf.LosingTrades != 1 {
		t.Errorf("Unexpected trade counts: %+v", perf)
	}
	if math.Abs(perf.TotalPnL-0.6) > 1e-9 {
		t.Errorf("Expected total PnL 0.6, got %f", perf.TotalPnL)
	}
	if math.Abs(perf.WinRate-66.666666) > 0.001 {
		t.Errorf("Expected win rate ~66.67, got %f", perf.WinRate)
	}
}

func TestPerformanceEmpty(t *testing.T) {
	s := openTestStore(t)

	perf, err := s.Performance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if perf.TotalTrades != 0 || perf.WinRate != 0 {
		t.Errorf("Expected zero summary, got %+v", perf)
	}
}
