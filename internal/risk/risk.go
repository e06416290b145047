package risk

import (
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

// Manager enforces the pre-trade business rules: position-count cap, daily
// realized-loss halt and notional-vs-balance check. Rejections are verdict
// values, not errors; a rejected entry is a logged skip for this cycle.
type Manager struct {
	mu sync.Mutex

	maxPositions      int
	dailyLossLimitPct float64
	baseline          float64 // balance the daily loss percent is measured against
	loc               *time.Location
	now               func() time.Time

	day           time.Time // midnight of the current trading day in loc
	dailyRealized float64
	openCount     int
}

func New(cfg *store.Config) (*Manager, error) {
	loc, err := time.LoadLocation(cfg.Risk.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid risk.timezone %q: %w", cfg.Risk.Timezone, err)
	}
	m := &Manager{
		maxPositions:      cfg.Risk.MaxPositions,
		dailyLossLimitPct: cfg.Risk.DailyLossLimitPct,
		baseline:          cfg.Trading.InitialBalance,
		loc:               loc,
		now:               time.Now,
	}
	m.day = m.midnight(m.now())
	return m, nil
}

// SetClock injects a clock; used by tests to drive day rollover.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.day = m.midnight(now())
}

func (m *Manager) midnight(t time.Time) time.Time {
	z := t.In(m.loc)
	return time.Date(z.Year(), z.Month(), z.Day(), 0, 0, 0, 0, m.loc)
}

// rollover resets the daily loss accumulator when the calendar day in the
// configured timezone has changed. Caller holds m.mu.
func (m *Manager) rollover() {
	if mid := m.midnight(m.now()); mid.After(m.day) {
		m.day = mid
		m.dailyRealized = 0
	}
}

// Authorize decides whether a directional decision may open a position of
// the given notional size against the available quote balance.
func (m *Manager) Authorize(d types.Decision, available, notional float64) types.RiskVerdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	if m.openCount >= m.maxPositions {
		return types.RiskVerdict{Reason: fmt.Sprintf("max positions reached (%d/%d)", m.openCount, m.maxPositions)}
	}
	if m.baseline > 0 && m.dailyLossLimitPct > 0 {
		lossPct := m.dailyRealized / m.baseline * 100.0
		if lossPct <= -m.dailyLossLimitPct {
			return types.RiskVerdict{Reason: fmt.Sprintf("daily loss limit hit (%.2f%% <= -%.2f%%), trading halted until tomorrow", lossPct, m.dailyLossLimitPct)}
		}
	}
	if notional > available {
		return types.RiskVerdict{Reason: fmt.Sprintf("notional %.2f exceeds available balance %.2f", notional, available)}
	}
	return types.RiskVerdict{Approved: true}
}

// PositionOpened records a newly opened position.
func (m *Manager) PositionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCount++
}

// PositionClosed records a close and folds the realized P&L into the daily
// accumulator.
func (m *Manager) PositionClosed(realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.openCount > 0 {
		m.openCount--
	}
	m.dailyRealized += realizedPnL
}

// ResetDay clears the daily accumulator; wired to the midnight cron job so
// the halt lifts exactly at the day boundary even with no trading activity.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.day = m.midnight(m.now())
	m.dailyRealized = 0
}

func (m *Manager) State() types.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	halted := false
	if m.baseline > 0 && m.dailyLossLimitPct > 0 {
		halted = m.dailyRealized/m.baseline*100.0 <= -m.dailyLossLimitPct
	}
	return types.RiskState{
		OpenPositions:    m.openCount,
		DailyRealizedPnL: m.dailyRealized,
		Halted:           halted,
	}
}
