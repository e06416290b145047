package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"crypto-trading-bot/internal/advisor"
	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/position"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

// Server exposes the dashboard read endpoints and the bot control verbs over
// plain HTTP. Read endpoints serve JSON snapshots; control verbs delegate to
// the controller and return the resulting state.
type Server struct {
	cfg        *store.Config
	controller *engine.Controller
	positions  *position.Manager
	advisors   *advisor.Cache
	riskMgr    *risk.Manager
	db         interfaces.Store
	executor   interfaces.OrderExecutor
	httpSrv    *http.Server
}

func New(
	cfg *store.Config,
	controller *engine.Controller,
	positions *position.Manager,
	advisors *advisor.Cache,
	riskMgr *risk.Manager,
	db interfaces.Store,
	executor interfaces.OrderExecutor,
) *Server {
	s := &Server{
		cfg:        cfg,
		controller: controller,
		positions:  positions,
		advisors:   advisors,
		riskMgr:    riskMgr,
		db:         db,
		executor:   executor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/ai-analysis", s.handleAIAnalysis)
	mux.HandleFunc("GET /api/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/wallet-history", s.handleWalletHistory)
	mux.HandleFunc("POST /api/bot/start", s.handleControl((*engine.Controller).Start))
	mux.HandleFunc("POST /api/bot/pause", s.handleControl((*engine.Controller).Pause))
	mux.HandleFunc("POST /api/bot/resume", s.handleControl((*engine.Controller).Resume))
	mux.HandleFunc("POST /api/bot/stop", s.handleControl((*engine.Controller).Stop))
	mux.HandleFunc("POST /api/config/ai-interval", s.handleAIInterval)
	mux.HandleFunc("POST /api/positions/close", s.handleManualClose)

	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Info(context.Background(), "Dashboard server listening", "addr", s.cfg.Server.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	riskState := s.riskMgr.State()
	startedAt := s.controller.StartedAt()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":              s.controller.State(),
		"mode":               s.cfg.Trading.Mode,
		"pairs":              s.cfg.Trading.Pairs,
		"uptime":             humanize.Time(startedAt),
		"started_at":         startedAt,
		"last_cycle":         s.controller.LastCycle(),
		"open_positions":     riskState.OpenPositions,
		"daily_realized_pnl": riskState.DailyRealizedPnL,
		"halted":             riskState.Halted,
		"ai_interval":        s.advisors.Interval().String(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.executor.Wallet(r.Context())
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to read wallet", err)
		writeError(w, http.StatusBadGateway, "wallet unavailable")
		return
	}
	quote := wallet.Balances[s.cfg.Trading.QuoteCurrency]
	writeJSON(w, http.StatusOK, map[string]any{
		"balances":        wallet.Balances,
		"quote_currency":  s.cfg.Trading.QuoteCurrency,
		"quote_balance":   quote,
		"quote_display":   humanize.CommafWithDigits(quote, 2),
		"initial_balance": wallet.Initial,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	open := s.positions.All()
	if open == nil {
		open = []types.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": open, "count": len(open)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	closed, err := s.db.ClosedPositions(r.Context(), limit)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load closed trades", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if closed == nil {
		closed = []types.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": closed, "count": len(closed)})
}

func (s *Server) handleAIAnalysis(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	limit := queryInt(r, "limit", 20)

	history, err := s.db.Recommendations(r.Context(), pair, limit)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load AI history", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	resp := map[string]any{"history": history}
	if pair != "" {
		if rec, ok := s.advisors.Latest(pair); ok {
			resp["latest"] = rec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.db.Performance(r.Context())
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to compute performance", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_trades":     perf.TotalTrades,
		"winning_trades":   perf.WinningTrades,
		"losing_trades":    perf.LosingTrades,
		"win_rate":         perf.WinRate,
		"win_rate_display": humanize.FormatFloat("#,###.##", perf.WinRate) + "%",
		"total_pnl":        perf.TotalPnL,
	})
}

func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 168)
	history, err := s.db.WalletHistory(r.Context(), limit)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Failed to load wallet history", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if history == nil {
		history = []types.WalletSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": history, "count": len(history)})
}

func (s *Server) handleControl(verb func(*engine.Controller, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verb(s.controller, r.Context()); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": s.controller.State()})
	}
}

func (s *Server) handleAIInterval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Seconds <= 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"seconds\": n} with n > 0")
		return
	}
	s.advisors.SetInterval(time.Duration(body.Seconds) * time.Second)
	logger.Info(r.Context(), "AI analysis interval changed", "seconds", body.Seconds)
	writeJSON(w, http.StatusOK, map[string]any{"interval": s.advisors.Interval().String()})
}

func (s *Server) handleManualClose(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		writeError(w, http.StatusBadRequest, "pair query parameter is required")
		return
	}
	if s.positions.Get(pair) == nil {
		writeError(w, http.StatusNotFound, "no open position for "+pair)
		return
	}
	closed, err := s.positions.Close(r.Context(), pair, types.CloseReasonManual)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Manual close failed", err, "pair", pair)
		writeError(w, http.StatusBadGateway, "close failed: "+err.Error())
		return
	}
	if closed == nil {
		// Another trigger won the race, or the position is mid-close.
		writeError(w, http.StatusConflict, "position for "+pair+" is already closing or closed")
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
