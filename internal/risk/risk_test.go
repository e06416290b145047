package risk

import (
	"testing"
	"time"

	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &store.Config{}
	cfg.Risk.MaxPositions = 2
	cfg.Risk.DailyLossLimitPct = 5
	cfg.Risk.Timezone = "UTC"
	cfg.Trading.InitialBalance = 1000
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func buyDecision() types.Decision {
	return types.Decision{Pair: "BTC/USDT", Action: types.ActionBuy, Confidence: 80}
}

func TestAuthorizeMaxPositions(t *testing.T) {
	m := testManager(t)
	m.PositionOpened()
	m.PositionOpened()

	v := m.Authorize(buyDecision(), 1000, 50)
	if v.Approved {
		t.Fatal("Expected rejection at the position cap")
	}
	if v.Reason == "" {
		t.Error("Expected a reason on rejection")
	}

	// Closing one frees a slot
	m.PositionClosed(10)
	if v := m.Authorize(buyDecision(), 1000, 50); !v.Approved {
		t.Errorf("Expected approval after a close, got %s", v.Reason)
	}
}

func TestAuthorizeDailyLossHalt(t *testing.T) {
	m := testManager(t)
	m.PositionOpened()
	m.PositionClosed(-60) // -6% of 1000, limit is 5%

	v := m.Authorize(buyDecision(), 1000, 50)
	if v.Approved {
		t.Fatal("Expected halt after exceeding the daily loss limit")
	}
	if !m.State().Halted {
		t.Error("Expected halted risk state")
	}
}

func TestAuthorizeInsufficientBalance(t *testing.T) {
	m := testManager(t)
	v := m.Authorize(buyDecision(), 30, 50)
	if v.Approved {
		t.Fatal("Expected rejection when notional exceeds available balance")
	}
}

func TestAuthorizeApproves(t *testing.T) {
	m := testManager(t)
	v := m.Authorize(buyDecision(), 1000, 50)
	if !v.Approved {
		t.Fatalf("Expected approval, got %s", v.Reason)
	}
}

func TestDayRolloverLiftsHalt(t *testing.T) {
	m := testManager(t)
	current := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return current })

	m.PositionOpened()
	m.PositionClosed(-100)
	if v := m.Authorize(buyDecision(), 1000, 50); v.Approved {
		t.Fatal("Expected halt on the same day")
	}

	// Past midnight the accumulator resets lazily
	current = time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)
	if v := m.Authorize(buyDecision(), 1000, 50); !v.Approved {
		t.Errorf("Expected the halt to lift after the day boundary, got %s", v.Reason)
	}
	if got := m.State().DailyRealizedPnL; got != 0 {
		t.Errorf("Expected daily pnl reset, got %f", got)
	}
}

func TestResetDay(t *testing.T) {
	m := testManager(t)
	m.PositionOpened()
	m.PositionClosed(-100)
	m.ResetDay()
	if v := m.Authorize(buyDecision(), 1000, 50); !v.Approved {
		t.Errorf("Expected approval after explicit reset, got %s", v.Reason)
	}
}
