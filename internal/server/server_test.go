package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"crypto-trading-bot/internal/advisor"
	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/position"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tradelog")
	if err != nil {
		os.Exit(1)
	}
	os.Setenv("BOT_LOG_DIR", dir)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type stubFeed struct{ price float64 }

func (s *stubFeed) Candles(ctx context.Context, pair, timeframe string, limit int) ([]types.Candle, error) {
	return nil, nil
}

func (s *stubFeed) Ticker(ctx context.Context, pair string) (types.Ticker, error) {
	return types.Ticker{Pair: pair, Price: s.price}, nil
}

type stubAdvisor struct{}

func (stubAdvisor) Recommend(ctx context.Context, pc types.PromptContext) (types.Recommendation, error) {
	return types.Recommendation{Action: types.ActionHold}, nil
}

type nullStore struct{}

func (nullStore) SavePosition(ctx context.Context, p types.Position) error   { return nil }
func (nullStore) UpdatePosition(ctx context.Context, p types.Position) error { return nil }
func (nullStore) OpenPositions(ctx context.Context) ([]types.Position, error) {
	return nil, nil
}
func (nullStore) ClosedPositions(ctx context.Context, limit int) ([]types.Position, error) {
	return nil, nil
}
func (nullStore) AppendDecision(ctx context.Context, d types.Decision) error { return nil }
func (nullStore) Decisions(ctx context.Context, pair string, limit int) ([]types.Decision, error) {
	return nil, nil
}
func (nullStore) AppendRecommendation(ctx context.Context, r types.Recommendation) error {
	return nil
}
func (nullStore) Recommendations(ctx context.Context, pair string, limit int) ([]types.Recommendation, error) {
	return nil, nil
}
func (nullStore) SaveWalletSnapshot(ctx context.Context, w types.WalletSnapshot) error { return nil }
func (nullStore) WalletHistory(ctx context.Context, limit int) ([]types.WalletSnapshot, error) {
	return nil, nil
}
func (nullStore) Performance(ctx context.Context) (types.PerformanceSummary, error) {
	return types.PerformanceSummary{TotalTrades: 4, WinningTrades: 3, LosingTrades: 1, WinRate: 75, TotalPnL: 1.2}, nil
}
func (nullStore) Close() error { return nil }

type fixture struct {
	srv        *Server
	controller *engine.Controller
	positions  *position.Manager
	feed       *stubFeed
	exec       *executor.Paper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &store.Config{}
	cfg.Trading.Mode = "PAPER"
	cfg.Trading.Pairs = []string{"BTC/USDT"}
	cfg.Trading.QuoteCurrency = "USDT"
	cfg.Trading.InitialBalance = 10
	cfg.Risk.MaxPositions = 3
	cfg.Risk.StopLossPct = 3
	cfg.Risk.TakeProfitPct = 5
	cfg.Risk.Timezone = "UTC"
	cfg.Risk.CloseRetries = 1
	cfg.Server.Addr = ":0"

	feed := &stubFeed{price: 100}
	exec := executor.NewPaper(feed, "USDT", 10, 0)
	riskMgr, err := risk.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	positions := position.NewManager(exec, nullStore{}, riskMgr, cfg)
	cache := advisor.NewCache(stubAdvisor{}, 5*time.Minute, time.Second)
	controller := engine.NewController(cfg)

	return &fixture{
		srv:        New(cfg, controller, positions, cache, riskMgr, nullStore{}, exec),
		controller: controller,
		positions:  positions,
		feed:       feed,
		exec:       exec,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	return m
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["state"] != engine.StateRunning {
		t.Errorf("Expected running state, got %v", body["state"])
	}
	if body["mode"] != "PAPER" {
		t.Errorf("Expected PAPER mode, got %v", body["mode"])
	}
}

func TestControlVerbs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/bot/pause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on pause, got %d", rec.Code)
	}
	if f.controller.State() != engine.StatePaused {
		t.Errorf("Expected paused, got %s", f.controller.State())
	}

	// Invalid transition reports a conflict
	rec = f.do(t, http.MethodPost, "/api/bot/pause", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 pausing a paused bot, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/bot/resume", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on resume, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/bot/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on stop, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/bot/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on start, got %d", rec.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/balance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["quote_balance"].(float64) != 10 {
		t.Errorf("Expected quote balance 10, got %v", body["quote_balance"])
	}
}

func TestAIIntervalUpdate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/config/ai-interval", `{"seconds": 600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["interval"] != "10m0s" {
		t.Errorf("Expected 10m0s, got %v", body["interval"])
	}

	rec = f.do(t, http.MethodPost, "/api/config/ai-interval", `{"seconds": -5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative interval, got %d", rec.Code)
	}
}

func TestManualClose(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/positions/close?pair=BTC/USDT", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 with no open position, got %d", rec.Code)
	}

	d := types.Decision{Pair: "BTC/USDT", Action: types.ActionBuy, Confidence: 80}
	if _, err := f.positions.Open(context.Background(), d, 5); err != nil {
		t.Fatal(err)
	}

	rec = f.do(t, http.MethodPost, "/api/positions/close?pair=BTC/USDT", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p types.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.CloseReason != types.CloseReasonManual {
		t.Errorf("Expected MANUAL close reason, got %s", p.CloseReason)
	}
	if f.positions.Get("BTC/USDT") != nil {
		t.Error("Expected position gone after manual close")
	}
}

func TestManualCloseConflictWhenAlreadyClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := types.Decision{Pair: "BTC/USDT", Action: types.ActionBuy, Confidence: 80}
	if _, err := f.positions.Open(ctx, d, 5); err != nil {
		t.Fatal(err)
	}

	// Drain the base balance so the close's sell fails and the position
	// parks as close_pending
	if _, err := f.exec.Sell(ctx, "BTC/USDT", 0.05); err != nil {
		t.Fatal(err)
	}
	rec := f.do(t, http.MethodPost, "/api/positions/close?pair=BTC/USDT", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 when the sell fails, got %d: %s", rec.Code, rec.Body.String())
	}
	p := f.positions.Get("BTC/USDT")
	if p == nil || p.Status != types.StatusClosePending {
		t.Fatalf("Expected close_pending position, got %+v", p)
	}

	// The position is still tracked but not closeable; the handler must
	// report the conflict, never a 200 with a null body
	rec = f.do(t, http.MethodPost, "/api/positions/close?pair=BTC/USDT", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for a position already closing, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) == "null" {
		t.Error("Handler must not serialize a nil position")
	}
	body := decode(t, rec)
	if body["error"] == "" {
		t.Error("Expected an error message in the conflict response")
	}
}

func TestPerformanceEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/performance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["total_trades"].(float64) != 4 {
		t.Errorf("Expected 4 trades, got %v", body["total_trades"])
	}
	if body["win_rate"].(float64) != 75 {
		t.Errorf("Expected win rate 75, got %v", body["win_rate"])
	}
}

func TestPositionsEndpointEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/positions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["count"].(float64) != 0 {
		t.Errorf("Expected empty positions, got %v", body["count"])
	}
}
