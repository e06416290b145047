package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/tradelog"
	"crypto-trading-bot/internal/types"
)

// riskNotifier receives position lifecycle events so the risk manager can
// track open-count and daily realized P&L.
type riskNotifier interface {
	PositionOpened()
	PositionClosed(realizedPnL float64)
}

// Manager owns the lifecycle of open positions: opening on approved
// decisions, monitoring stop-loss and take-profit levels, and closing
// idempotently. At most one position per pair is open at a time.
type Manager struct {
	executor interfaces.OrderExecutor
	db       interfaces.Store
	risk     riskNotifier

	stopLossPct   float64
	takeProfitPct float64
	closeRetries  int

	mu        sync.Mutex
	positions map[string]*types.Position // keyed by pair
	closing   map[string]bool            // pairs with a sell in flight
	now       func() time.Time
}

func NewManager(executor interfaces.OrderExecutor, db interfaces.Store, risk riskNotifier, cfg *store.Config) *Manager {
	return &Manager{
		executor:      executor,
		db:            db,
		risk:          risk,
		stopLossPct:   cfg.Risk.StopLossPct,
		takeProfitPct: cfg.Risk.TakeProfitPct,
		closeRetries:  cfg.Risk.CloseRetries,
		positions:     make(map[string]*types.Position),
		closing:       make(map[string]bool),
		now:           time.Now,
	}
}

// SetClock injects a clock for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Restore loads open and close-pending positions from the store so a
// restarted bot keeps managing positions it opened before going down.
func (m *Manager) Restore(ctx context.Context) error {
	saved, err := m.db.OpenPositions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range saved {
		p := saved[i]
		m.positions[p.Pair] = &p
		m.risk.PositionOpened()
		logger.Info(ctx, "Restored position", "pair", p.Pair, "id", p.ID, "status", p.Status)
	}
	return nil
}

// Get returns a copy of the position open for the pair, or nil.
func (m *Manager) Get(pair string) *types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[pair]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// All returns copies of every tracked position.
func (m *Manager) All() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Open buys quoteAmount worth of the pair and starts tracking the resulting
// position. A failed order commits nothing. A failed persist keeps the
// in-memory position alive and logs the error; the fill already happened and
// must not be lost.
func (m *Manager) Open(ctx context.Context, d types.Decision, quoteAmount float64) (*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[d.Pair]; exists {
		return nil, fmt.Errorf("position already open for %s", d.Pair)
	}

	fill, err := m.executor.Buy(ctx, d.Pair, quoteAmount)
	if err != nil {
		return nil, err
	}

	p := &types.Position{
		ID:         uuid.NewString(),
		Pair:       d.Pair,
		Side:       types.ActionBuy,
		EntryPrice: fill.Price,
		Amount:     fill.Amount,
		EntryFee:   fill.Fee,
		StopLoss:   fill.Price * (1 - m.stopLossPct/100),
		TakeProfit: fill.Price * (1 + m.takeProfitPct/100),
		OpenedAt:   m.now().UTC(),
		Status:     types.StatusOpen,
		Confidence: d.Confidence,
	}
	m.positions[d.Pair] = p
	m.risk.PositionOpened()

	if err := m.persistWithRetry(ctx, func() error { return m.db.SavePosition(ctx, *p) }); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist opened position, keeping it in memory", err,
			"pair", p.Pair, "id", p.ID)
	}
	if err := tradelog.Append(tradelog.Entry{
		Pair: p.Pair, Side: types.ActionBuy, PositionID: p.ID, Reason: d.Reason,
		Amount: fill.Amount, Price: fill.Price, Fee: fill.Fee,
	}); err != nil {
		logger.Warn(ctx, "Failed to append trade log entry", "error", err)
	}
	logger.Trade(ctx, p.Pair, types.ActionBuy, fill.Amount, fill.Price,
		"id", p.ID, "stop_loss", p.StopLoss, "take_profit", p.TakeProfit)

	cp := *p
	return &cp, nil
}

// Monitor marks the position to the current price, then checks it against the
// protective levels and closes it when one is hit. Triggers are level-based,
// not path-based: a price at or beyond the level fires even if the move
// happened between ticks. Returns the closed position, or nil when nothing
// triggered.
func (m *Manager) Monitor(ctx context.Context, pair string, price float64) (*types.Position, error) {
	m.mu.Lock()
	p, ok := m.positions[pair]
	if !ok || p.Status != types.StatusOpen {
		m.mu.Unlock()
		return nil, nil
	}
	p.PnL = (price - p.EntryPrice) * p.Amount
	if p.EntryPrice > 0 {
		p.PnLPercent = (price - p.EntryPrice) / p.EntryPrice * 100
	}
	var reason string
	switch {
	case price <= p.StopLoss:
		reason = types.CloseReasonStopLoss
	case price >= p.TakeProfit:
		reason = types.CloseReasonTakeProfit
	}
	m.mu.Unlock()

	if reason == "" {
		return nil, nil
	}
	return m.Close(ctx, pair, reason)
}

// Close liquidates the pair's position. Only an open position proceeds to the
// sell, and it flips to close_pending before the lock is released, so
// concurrent triggers (stop level and a manual close, say) cannot double-sell
// and the lock is never held across the sell's backoff waits. When every sell
// attempt fails the position stays parked as close_pending for the next cycle
// to retry.
func (m *Manager) Close(ctx context.Context, pair, reason string) (*types.Position, error) {
	m.mu.Lock()
	p, ok := m.positions[pair]
	if !ok || p.Status != types.StatusOpen || m.closing[pair] {
		m.mu.Unlock()
		return nil, nil
	}
	m.closing[pair] = true
	p.Status = types.StatusClosePending
	p.CloseReason = reason
	amount := p.Amount
	m.mu.Unlock()

	fill, err := m.sellWithRetry(ctx, pair, amount)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.closing, pair)

	if err != nil {
		if perr := m.persistWithRetry(ctx, func() error { return m.db.UpdatePosition(ctx, *p) }); perr != nil {
			logger.ErrorWithErr(ctx, "Failed to persist close_pending state", perr, "pair", pair, "id", p.ID)
		}
		logger.ErrorWithErr(ctx, "Close failed after retries, position parked as close_pending", err,
			"pair", pair, "id", p.ID, "reason", reason)
		return nil, err
	}

	p.Status = types.StatusClosed
	p.ExitPrice = fill.Price
	p.ClosedAt = m.now().UTC()
	p.PnL = (fill.Price-p.EntryPrice)*p.Amount - fill.Fee - p.EntryFee
	if p.EntryPrice > 0 {
		p.PnLPercent = (fill.Price - p.EntryPrice) / p.EntryPrice * 100
	}
	delete(m.positions, pair)
	m.risk.PositionClosed(p.PnL)

	if err := m.persistWithRetry(ctx, func() error { return m.db.UpdatePosition(ctx, *p) }); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist closed position", err, "pair", pair, "id", p.ID)
	}
	if err := tradelog.Append(tradelog.Entry{
		Pair: pair, Side: types.ActionSell, PositionID: p.ID, Reason: reason,
		Amount: fill.Amount, Price: fill.Price, Fee: fill.Fee, PnL: p.PnL,
	}); err != nil {
		logger.Warn(ctx, "Failed to append trade log entry", "error", err)
	}
	logger.Trade(ctx, pair, types.ActionSell, fill.Amount, fill.Price,
		"id", p.ID, "pnl", p.PnL, "pnl_percent", p.PnLPercent, "reason", reason)

	cp := *p
	return &cp, nil
}

// RetryPending retries the sell for positions stuck in close_pending.
func (m *Manager) RetryPending(ctx context.Context) {
	m.mu.Lock()
	var pending []*types.Position
	for _, p := range m.positions {
		if p.Status == types.StatusClosePending && !m.closing[p.Pair] {
			pending = append(pending, p)
		}
	}
	m.mu.Unlock()

	for _, p := range pending {
		m.mu.Lock()
		p.Status = types.StatusOpen // rearm so Close proceeds
		reason := p.CloseReason
		m.mu.Unlock()
		if _, err := m.Close(ctx, p.Pair, reason); err != nil {
			logger.Warn(ctx, "Retry of pending close failed", "pair", p.Pair, "id", p.ID, "error", err)
		}
	}
}

// CloseAll closes every tracked position, used on shutdown when configured.
// Stuck close_pending positions get one more sell attempt on the way out.
func (m *Manager) CloseAll(ctx context.Context, reason string) {
	m.mu.Lock()
	pairs := make([]string, 0, len(m.positions))
	for pair, p := range m.positions {
		if p.Status == types.StatusClosePending && !m.closing[pair] {
			p.Status = types.StatusOpen // rearm so Close proceeds
		}
		pairs = append(pairs, pair)
	}
	m.mu.Unlock()

	for _, pair := range pairs {
		if _, err := m.Close(ctx, pair, reason); err != nil {
			logger.ErrorWithErr(ctx, "Failed to close position on shutdown", err, "pair", pair)
		}
	}
}

// sellWithRetry attempts the sell up to closeRetries times with exponential
// backoff. Called without m.mu held so reads and manual closes are not
// blocked behind the waits.
func (m *Manager) sellWithRetry(ctx context.Context, pair string, amount float64) (types.Fill, error) {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
	attempts := m.closeRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		fill, err := m.executor.Sell(ctx, pair, amount)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return types.Fill{}, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
	}
	return types.Fill{}, lastErr
}

func (m *Manager) persistWithRetry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := fn(); err == nil {
			return nil
		} else if !errors.Is(err, interfaces.ErrPersistence) {
			return err
		} else {
			lastErr = err
		}
		if i < 2 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(b.Duration()):
			}
		}
	}
	return lastErr
}
