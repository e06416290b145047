package types

import "time"

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

const (
	StatusOpen         = "open"
	StatusClosed       = "closed"
	StatusClosePending = "close_pending"
)

const (
	CloseReasonStopLoss   = "STOP_LOSS"
	CloseReasonTakeProfit = "TAKE_PROFIT"
	CloseReasonSignal     = "SELL_SIGNAL"
	CloseReasonManual     = "MANUAL"
	CloseReasonShutdown   = "SHUTDOWN"
)

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

type Ticker struct {
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

// IndicatorSet holds the indicator values for the most recent candle.
// Recomputed from scratch every cycle; fields are NaN when the candle
// history is too short for the lookback window.
type IndicatorSet struct {
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	EMAFast       float64 `json:"ema_fast"`
	EMASlow       float64 `json:"ema_slow"`
	BB            struct {
		Upper  float64 `json:"upper"`
		Middle float64 `json:"middle"`
		Lower  float64 `json:"lower"`
	} `json:"bollinger"`
}

// Recommendation is the structured output of the AI advisory call.
type Recommendation struct {
	Pair       string  `json:"pair"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Ts         int64   `json:"ts"`
}

// PromptContext is the market state handed to an AI provider.
type PromptContext struct {
	Pair       string
	Candles    []Candle
	Indicators IndicatorSet
}

// Signal is a single weighted vote contributing to a Decision.
type Signal struct {
	Source     string  `json:"source"`
	Direction  string  `json:"direction"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

// Decision is the aggregated output for one pair in one cycle. When the
// aggregate confidence falls below the configured threshold the Action is
// downgraded to HOLD but Confidence keeps the original value for audit.
type Decision struct {
	Pair       string   `json:"pair"`
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Downgraded bool     `json:"downgraded,omitempty"`
	Reason     string   `json:"reason"`
	Signals    []Signal `json:"signals"`
	Ts         int64    `json:"ts"`
}

type Position struct {
	ID          string    `json:"id"`
	Pair        string    `json:"pair"`
	Side        string    `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	Amount      float64   `json:"amount"`
	EntryFee    float64   `json:"entry_fee"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	OpenedAt    time.Time `json:"opened_at"`
	Status      string    `json:"status"`
	ExitPrice   float64   `json:"exit_price,omitempty"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	PnL         float64   `json:"profit_loss"`
	PnLPercent  float64   `json:"profit_loss_percent"`
	CloseReason string    `json:"close_reason,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// Fill is the result of an executed order, real or simulated.
type Fill struct {
	Pair   string  `json:"pair"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Fee    float64 `json:"fee"`
}

type WalletSnapshot struct {
	Balances map[string]float64 `json:"balances"`
	Initial  float64            `json:"initial_balance"`
	Ts       time.Time          `json:"ts"`
}

type RiskState struct {
	OpenPositions    int     `json:"open_positions"`
	DailyRealizedPnL float64 `json:"daily_realized_pnl"`
	Halted           bool    `json:"halted"`
}

type RiskVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

type PerformanceSummary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
}

// StepResult summarizes one orchestrator pass over a single pair.
type StepResult struct {
	Pair     string    `json:"pair"`
	Decision Decision  `json:"decision"`
	Price    float64   `json:"price"`
	Time     int64     `json:"time"`
	Position *Position `json:"position,omitempty"`
	Reason   string    `json:"reason"`
}
