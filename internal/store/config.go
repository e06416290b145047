package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Trading struct {
		Mode           string   `yaml:"mode"` // PAPER or LIVE
		Pairs          []string `yaml:"pairs"`
		Timeframe      string   `yaml:"timeframe"`
		CandleLimit    int      `yaml:"candle_limit"`
		CheckInterval  int      `yaml:"check_interval_seconds"`
		TradeAmount    float64  `yaml:"trade_amount"`
		QuoteCurrency  string   `yaml:"quote_currency"`
		InitialBalance float64  `yaml:"initial_balance"`
		FeePercent     float64  `yaml:"fee_percent"`
		CloseOnStop    bool     `yaml:"close_positions_on_stop"`
	} `yaml:"trading"`
	Indicators struct {
		RSIPeriod  int     `yaml:"rsi_period"`
		MACDFast   int     `yaml:"macd_fast"`
		MACDSlow   int     `yaml:"macd_slow"`
		MACDSignal int     `yaml:"macd_signal"`
		EMAFast    int     `yaml:"ema_fast"`
		EMASlow    int     `yaml:"ema_slow"`
		BBWindow   int     `yaml:"bb_window"`
		BBStdDev   float64 `yaml:"bb_stddev"`
	} `yaml:"indicators"`
	Strategy struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		RSIOversold         float64 `yaml:"rsi_oversold"`
		RSIOverbought       float64 `yaml:"rsi_overbought"`
		Weights             struct {
			RSI       float64 `yaml:"rsi"`
			MACD      float64 `yaml:"macd"`
			EMA       float64 `yaml:"ema"`
			Bollinger float64 `yaml:"bollinger"`
			AI        float64 `yaml:"ai"`
		} `yaml:"weights"`
	} `yaml:"strategy"`
	AI struct {
		Provider        string  `yaml:"provider"` // OPENAI or NONE
		Model           string  `yaml:"model"`
		MaxTokens       int     `yaml:"max_tokens"`
		Temperature     float32 `yaml:"temperature"`
		IntervalSeconds int     `yaml:"analysis_interval_seconds"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		MinConfidence   float64 `yaml:"min_confidence"`
	} `yaml:"ai"`
	Risk struct {
		MaxPositions      int     `yaml:"max_positions"`
		DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
		StopLossPct       float64 `yaml:"stop_loss_pct"`
		TakeProfitPct     float64 `yaml:"take_profit_pct"`
		Timezone          string  `yaml:"timezone"`
		CloseRetries      int     `yaml:"close_retries"`
	} `yaml:"risk"`
	Feed struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"feed"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Report struct {
		Dir              string `yaml:"dir"`
		DailySchedule    string `yaml:"daily_schedule"`
		SnapshotSchedule string `yaml:"snapshot_schedule"`
	} `yaml:"report"`
}

func (c *Config) Validate() error {
	if c.Trading.Mode != "PAPER" && c.Trading.Mode != "LIVE" {
		return fmt.Errorf("invalid trading.mode '%s': must be 'PAPER' or 'LIVE'", c.Trading.Mode)
	}
	if len(c.Trading.Pairs) == 0 {
		return errors.New("trading.pairs cannot be empty")
	}
	if c.Trading.TradeAmount <= 0 {
		return fmt.Errorf("trading.trade_amount must be positive, got %.2f", c.Trading.TradeAmount)
	}
	if c.Trading.InitialBalance <= 0 && c.Trading.Mode == "PAPER" {
		return fmt.Errorf("trading.initial_balance must be positive in PAPER mode, got %.2f", c.Trading.InitialBalance)
	}
	if c.Trading.FeePercent < 0 || c.Trading.FeePercent > 100 {
		return fmt.Errorf("trading.fee_percent must be between 0-100, got %.2f", c.Trading.FeePercent)
	}
	if c.Strategy.ConfidenceThreshold < 0 || c.Strategy.ConfidenceThreshold > 100 {
		return fmt.Errorf("strategy.confidence_threshold must be between 0-100, got %.2f", c.Strategy.ConfidenceThreshold)
	}
	if c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		return fmt.Errorf("strategy.rsi_oversold (%.1f) must be below rsi_overbought (%.1f)", c.Strategy.RSIOversold, c.Strategy.RSIOverbought)
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive, got %d", c.Risk.MaxPositions)
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 100 {
		return fmt.Errorf("risk.stop_loss_pct must be between 0-100, got %.2f", c.Risk.StopLossPct)
	}
	if c.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("risk.take_profit_pct must be positive, got %.2f", c.Risk.TakeProfitPct)
	}
	if c.Indicators.MACDSlow <= c.Indicators.MACDFast {
		return fmt.Errorf("indicators.macd_slow (%d) must exceed macd_fast (%d)", c.Indicators.MACDSlow, c.Indicators.MACDFast)
	}
	if c.Indicators.EMASlow <= c.Indicators.EMAFast {
		return fmt.Errorf("indicators.ema_slow (%d) must exceed ema_fast (%d)", c.Indicators.EMASlow, c.Indicators.EMAFast)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Timeframe == "" {
		c.Trading.Timeframe = "1h"
	}
	if c.Trading.CandleLimit == 0 {
		c.Trading.CandleLimit = 100
	}
	if c.Trading.CheckInterval == 0 {
		c.Trading.CheckInterval = 60
	}
	if c.Trading.QuoteCurrency == "" {
		c.Trading.QuoteCurrency = "USDT"
	}
	if c.Trading.FeePercent == 0 {
		c.Trading.FeePercent = 0.1
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.MACDFast == 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow == 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal == 0 {
		c.Indicators.MACDSignal = 9
	}
	if c.Indicators.EMAFast == 0 {
		c.Indicators.EMAFast = 9
	}
	if c.Indicators.EMASlow == 0 {
		c.Indicators.EMASlow = 21
	}
	if c.Indicators.BBWindow == 0 {
		c.Indicators.BBWindow = 20
	}
	if c.Indicators.BBStdDev == 0 {
		c.Indicators.BBStdDev = 2.0
	}
	if c.Strategy.ConfidenceThreshold == 0 {
		c.Strategy.ConfidenceThreshold = 70
	}
	if c.Strategy.RSIOversold == 0 {
		c.Strategy.RSIOversold = 30
	}
	if c.Strategy.RSIOverbought == 0 {
		c.Strategy.RSIOverbought = 70
	}
	w := &c.Strategy.Weights
	if w.RSI == 0 && w.MACD == 0 && w.EMA == 0 && w.Bollinger == 0 && w.AI == 0 {
		w.RSI, w.MACD, w.EMA, w.Bollinger, w.AI = 1.0, 1.0, 1.0, 1.0, 1.5
	}
	if c.AI.IntervalSeconds == 0 {
		c.AI.IntervalSeconds = 300
	}
	if c.AI.TimeoutSeconds == 0 {
		c.AI.TimeoutSeconds = 30
	}
	if c.AI.MinConfidence == 0 {
		c.AI.MinConfidence = 70
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 3
	}
	if c.Risk.DailyLossLimitPct == 0 {
		c.Risk.DailyLossLimitPct = 5
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 3
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 5
	}
	if c.Risk.Timezone == "" {
		c.Risk.Timezone = "UTC"
	}
	if c.Risk.CloseRetries == 0 {
		c.Risk.CloseRetries = 3
	}
	if c.Feed.TimeoutSeconds == 0 {
		c.Feed.TimeoutSeconds = 10
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/trading_bot.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
	if c.Report.DailySchedule == "" {
		c.Report.DailySchedule = "5 0 * * *"
	}
	if c.Report.SnapshotSchedule == "" {
		c.Report.SnapshotSchedule = "@hourly"
	}
}
