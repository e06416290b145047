package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfigDefaults(t *testing.T) {
	p := writeConfig(t, `
trading:
  mode: PAPER
  pairs: ["BTC/USDT"]
  trade_amount: 50
  initial_balance: 1000
`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}
	if cfg.Indicators.RSIPeriod != 14 {
		t.Errorf("Expected default rsi_period 14, got %d", cfg.Indicators.RSIPeriod)
	}
	if cfg.Strategy.ConfidenceThreshold != 70 {
		t.Errorf("Expected default confidence_threshold 70, got %f", cfg.Strategy.ConfidenceThreshold)
	}
	if cfg.Risk.StopLossPct != 3 || cfg.Risk.TakeProfitPct != 5 {
		t.Errorf("Expected default stop/take 3/5, got %f/%f", cfg.Risk.StopLossPct, cfg.Risk.TakeProfitPct)
	}
	if cfg.AI.IntervalSeconds != 300 {
		t.Errorf("Expected default analysis interval 300, got %d", cfg.AI.IntervalSeconds)
	}
	if cfg.Risk.Timezone != "UTC" {
		t.Errorf("Expected default timezone UTC, got %s", cfg.Risk.Timezone)
	}
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	p := writeConfig(t, `
trading:
  mode: DEMO
  pairs: ["BTC/USDT"]
  trade_amount: 50
  initial_balance: 1000
`)
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("Expected validation error for unknown mode")
	}
}

func TestLoadConfigRejectsEmptyPairs(t *testing.T) {
	p := writeConfig(t, `
trading:
  mode: PAPER
  pairs: []
  trade_amount: 50
  initial_balance: 1000
`)
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("Expected validation error for empty pairs")
	}
}
