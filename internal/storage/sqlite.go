package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/types"
)

// SQLite persists positions, decisions, AI history and wallet snapshots in a
// single local database file. Writes are serialized with a mutex; SQLite
// handles one writer at a time and the bot is effectively single-writer
// anyway.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

var _ interfaces.Store = (*SQLite)(nil)

func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			pair TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			amount REAL NOT NULL,
			entry_fee REAL NOT NULL DEFAULT 0,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			opened_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			exit_price REAL NOT NULL DEFAULT 0,
			closed_at INTEGER NOT NULL DEFAULT 0,
			pnl REAL NOT NULL DEFAULT 0,
			pnl_percent REAL NOT NULL DEFAULT 0,
			close_reason TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			pair TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			downgraded INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			signals TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_pair_ts ON decisions(pair, ts)`,
		`CREATE TABLE IF NOT EXISTS ai_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			pair TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			reasoning TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_history_pair_ts ON ai_history(pair, ts)`,
		`CREATE TABLE IF NOT EXISTS wallet_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			balances TEXT NOT NULL,
			initial_balance REAL NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", interfaces.ErrPersistence, op, err)
}

func (s *SQLite) SavePosition(ctx context.Context, p types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO positions
		(id, pair, side, entry_price, amount, entry_fee, stop_loss, take_profit, opened_at, status,
		 exit_price, closed_at, pnl, pnl_percent, close_reason, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Pair, p.Side, p.EntryPrice, p.Amount, p.EntryFee, p.StopLoss, p.TakeProfit,
		p.OpenedAt.UTC().Unix(), p.Status, p.ExitPrice, unixOrZero(p.ClosedAt),
		p.PnL, p.PnLPercent, p.CloseReason, p.Confidence)
	if err != nil {
		return persistErr("save position", err)
	}
	return nil
}

func (s *SQLite) UpdatePosition(ctx context.Context, p types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE positions SET
		status = ?, exit_price = ?, closed_at = ?, pnl = ?, pnl_percent = ?, close_reason = ?
		WHERE id = ?`,
		p.Status, p.ExitPrice, unixOrZero(p.ClosedAt), p.PnL, p.PnLPercent, p.CloseReason, p.ID)
	if err != nil {
		return persistErr("update position", err)
	}
	return nil
}

func (s *SQLite) OpenPositions(ctx context.Context) ([]types.Position, error) {
	return s.queryPositions(ctx,
		`SELECT id, pair, side, entry_price, amount, entry_fee, stop_loss, take_profit, opened_at, status,
		        exit_price, closed_at, pnl, pnl_percent, close_reason, confidence
		 FROM positions WHERE status IN (?, ?) ORDER BY opened_at`,
		types.StatusOpen, types.StatusClosePending)
}

func (s *SQLite) ClosedPositions(ctx context.Context, limit int) ([]types.Position, error) {
	return s.queryPositions(ctx,
		`SELECT id, pair, side, entry_price, amount, entry_fee, stop_loss, take_profit, opened_at, status,
		        exit_price, closed_at, pnl, pnl_percent, close_reason, confidence
		 FROM positions WHERE status = ? ORDER BY closed_at DESC LIMIT ?`,
		types.StatusClosed, limit)
}

func (s *SQLite) queryPositions(ctx context.Context, query string, args ...any) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query positions", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var openedAt, closedAt int64
		if err := rows.Scan(&p.ID, &p.Pair, &p.Side, &p.EntryPrice, &p.Amount, &p.EntryFee,
			&p.StopLoss, &p.TakeProfit, &openedAt, &p.Status, &p.ExitPrice, &closedAt,
			&p.PnL, &p.PnLPercent, &p.CloseReason, &p.Confidence); err != nil {
			return nil, persistErr("scan position", err)
		}
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		if closedAt > 0 {
			p.ClosedAt = time.Unix(closedAt, 0).UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendDecision(ctx context.Context, d types.Decision) error {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return persistErr("encode signals", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO decisions
		(ts, pair, action, confidence, downgraded, reason, signals)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Ts, d.Pair, d.Action, d.Confidence, boolToInt(d.Downgraded), d.Reason, string(signals))
	if err != nil {
		return persistErr("append decision", err)
	}
	return nil
}

func (s *SQLite) Decisions(ctx context.Context, pair string, limit int) ([]types.Decision, error) {
	query := `SELECT ts, pair, action, confidence, downgraded, reason, signals
	          FROM decisions`
	args := []any{}
	if pair != "" {
		query += ` WHERE pair = ?`
		args = append(args, pair)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query decisions", err)
	}
	defer rows.Close()

	var out []types.Decision
	for rows.Next() {
		var d types.Decision
		var downgraded int
		var signals string
		if err := rows.Scan(&d.Ts, &d.Pair, &d.Action, &d.Confidence, &downgraded, &d.Reason, &signals); err != nil {
			return nil, persistErr("scan decision", err)
		}
		d.Downgraded = downgraded != 0
		_ = json.Unmarshal([]byte(signals), &d.Signals)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendRecommendation(ctx context.Context, r types.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO ai_history
		(ts, pair, action, confidence, reasoning) VALUES (?, ?, ?, ?, ?)`,
		r.Ts, r.Pair, r.Action, r.Confidence, r.Reasoning)
	if err != nil {
		return persistErr("append recommendation", err)
	}
	return nil
}

func (s *SQLite) Recommendations(ctx context.Context, pair string, limit int) ([]types.Recommendation, error) {
	query := `SELECT ts, pair, action, confidence, reasoning FROM ai_history`
	args := []any{}
	if pair != "" {
		query += ` WHERE pair = ?`
		args = append(args, pair)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query recommendations", err)
	}
	defer rows.Close()

	var out []types.Recommendation
	for rows.Next() {
		var r types.Recommendation
		if err := rows.Scan(&r.Ts, &r.Pair, &r.Action, &r.Confidence, &r.Reasoning); err != nil {
			return nil, persistErr("scan recommendation", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveWalletSnapshot(ctx context.Context, w types.WalletSnapshot) error {
	balances, err := json.Marshal(w.Balances)
	if err != nil {
		return persistErr("encode balances", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO wallet_snapshots
		(ts, balances, initial_balance) VALUES (?, ?, ?)`,
		w.Ts.UTC().Unix(), string(balances), w.Initial)
	if err != nil {
		return persistErr("save wallet snapshot", err)
	}
	return nil
}

func (s *SQLite) WalletHistory(ctx context.Context, limit int) ([]types.WalletSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, balances, initial_balance FROM wallet_snapshots ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("query wallet history", err)
	}
	defer rows.Close()

	var out []types.WalletSnapshot
	for rows.Next() {
		var w types.WalletSnapshot
		var ts int64
		var balances string
		if err := rows.Scan(&ts, &balances, &w.Initial); err != nil {
			return nil, persistErr("scan wallet snapshot", err)
		}
		w.Ts = time.Unix(ts, 0).UTC()
		_ = json.Unmarshal([]byte(balances), &w.Balances)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLite) Performance(ctx context.Context) (types.PerformanceSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(pnl), 0)
		FROM positions WHERE status = ?`, types.StatusClosed)

	var p types.PerformanceSummary
	if err := row.Scan(&p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.TotalPnL); err != nil {
		return types.PerformanceSummary{}, persistErr("query performance", err)
	}
	if p.TotalTrades > 0 {
		p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades) * 100.0
	}
	return p, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
