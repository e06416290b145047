package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
)

// closedLookback bounds how much history the daily summary pulls from the
// store. A day with more closed trades than this is not a retail bot.
const closedLookback = 1000

type pairRow struct {
	Pair   string
	Trades int
	Wins   int
	Losses int
	Volume float64
	PnL    float64
}

// Reporter writes daily trading summaries as CSV files and records wallet
// snapshots for the equity-over-time view.
type Reporter struct {
	db       interfaces.Store
	executor interfaces.OrderExecutor
	dir      string
	loc      *time.Location
	now      func() time.Time
}

func New(db interfaces.Store, executor interfaces.OrderExecutor, dir string, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{db: db, executor: executor, dir: dir, loc: loc, now: time.Now}
}

// SetClock injects a clock for tests.
func (r *Reporter) SetClock(now func() time.Time) { r.now = now }

func (r *Reporter) csvPath(day time.Time) string {
	return filepath.Join(r.dir, day.In(r.loc).Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the day's closed positions per pair into a CSV.
// Returns the written path, or "" when the day had no closed trades.
func (r *Reporter) SummarizeDay(ctx context.Context, day time.Time) (string, error) {
	closed, err := r.db.ClosedPositions(ctx, closedLookback)
	if err != nil {
		return "", err
	}

	dayStart := time.Date(day.In(r.loc).Year(), day.In(r.loc).Month(), day.In(r.loc).Day(), 0, 0, 0, 0, r.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows := map[string]*pairRow{}
	for _, p := range closed {
		closedAt := p.ClosedAt.In(r.loc)
		if closedAt.Before(dayStart) || !closedAt.Before(dayEnd) {
			continue
		}
		row := rows[p.Pair]
		if row == nil {
			row = &pairRow{Pair: p.Pair}
			rows[p.Pair] = row
		}
		row.Trades++
		if p.PnL >= 0 {
			row.Wins++
		} else {
			row.Losses++
		}
		row.Volume += p.ExitPrice * p.Amount
		row.PnL += p.PnL
	}
	if len(rows) == 0 {
		return "", nil
	}

	pairs := make([]string, 0, len(rows))
	for k := range rows {
		pairs = append(pairs, k)
	}
	sort.Strings(pairs)

	outPath := r.csvPath(day)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	if err := w.Write([]string{"pair", "trades", "wins", "losses", "volume", "realized_pnl"}); err != nil {
		return "", err
	}
	var totalTrades int
	var totalVolume, totalPnL float64
	for _, k := range pairs {
		row := rows[k]
		rec := []string{
			row.Pair,
			strconv.Itoa(row.Trades),
			strconv.Itoa(row.Wins),
			strconv.Itoa(row.Losses),
			fmt.Sprintf("%.2f", row.Volume),
			fmt.Sprintf("%.4f", row.PnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalTrades += row.Trades
		totalVolume += row.Volume
		totalPnL += row.PnL
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalTrades), "", "", fmt.Sprintf("%.2f", totalVolume), fmt.Sprintf("%.4f", totalPnL)})

	logger.Info(ctx, "Daily report written", "path", outPath, "trades", totalTrades, "pnl", totalPnL)
	return outPath, nil
}

// SummarizeYesterday is the cron entry point; the job fires just after
// midnight and reports on the day that ended.
func (r *Reporter) SummarizeYesterday(ctx context.Context) (string, error) {
	return r.SummarizeDay(ctx, r.now().In(r.loc).AddDate(0, 0, -1))
}

// SnapshotWallet persists the current balances for the equity curve.
func (r *Reporter) SnapshotWallet(ctx context.Context) error {
	wallet, err := r.executor.Wallet(ctx)
	if err != nil {
		return err
	}
	if err := r.db.SaveWalletSnapshot(ctx, wallet); err != nil {
		return err
	}
	logger.Debug(ctx, "Wallet snapshot saved", "balances", wallet.Balances)
	return nil
}
