package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/types"
)

const (
	StateStopped = "stopped"
	StateRunning = "running"
	StatePaused  = "paused"
)

// Controller drives the trading loop and owns the run state. Running cycles
// every pair on the configured interval; paused keeps monitoring open
// positions but blocks new entries; stopped skips cycles entirely.
type Controller struct {
	cfg *store.Config
	eng interfaces.Engine

	mu        sync.Mutex
	state     string
	startedAt time.Time
	lastCycle time.Time
	closeAll  func(ctx context.Context, reason string)
}

func NewController(cfg *store.Config) *Controller {
	return &Controller{cfg: cfg, state: StateRunning, startedAt: time.Now().UTC()}
}

// Bind attaches the engine after construction. The controller is created
// first so the engine can consult its pause state.
func (c *Controller) Bind(eng interfaces.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eng = eng
}

// OnStop registers the hook invoked when the bot is stopped with
// close_positions_on_stop enabled.
func (c *Controller) OnStop(closeAll func(ctx context.Context, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeAll = closeAll
}

func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Paused reports whether new entries are currently blocked.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateRunning
}

func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

func (c *Controller) LastCycle() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCycle
}

func (c *Controller) Start(ctx context.Context) error {
	return c.transition(ctx, StateStopped, StateRunning)
}

func (c *Controller) Pause(ctx context.Context) error {
	return c.transition(ctx, StateRunning, StatePaused)
}

func (c *Controller) Resume(ctx context.Context) error {
	return c.transition(ctx, StatePaused, StateRunning)
}

// Stop halts trading from any state. When configured, every open position is
// closed before the state flips so a crash mid-close leaves close_pending
// rows to recover from.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return fmt.Errorf("already stopped")
	}
	closeAll := c.closeAll
	c.mu.Unlock()

	if closeAll != nil && c.cfg.Trading.CloseOnStop {
		closeAll(ctx, types.CloseReasonShutdown)
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	logger.Info(ctx, "Bot stopped")
	return nil
}

func (c *Controller) transition(ctx context.Context, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("cannot go from %s to %s", c.state, to)
	}
	c.state = to
	logger.Info(ctx, "Bot state changed", "from", from, "to", to)
	return nil
}

// Run executes trading cycles until the context is cancelled. One failing
// pair never blocks the others; expected upstream failures are logged and
// the pair is skipped for the cycle.
func (c *Controller) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.Trading.CheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info(ctx, "Trading loop started",
		"pairs", c.cfg.Trading.Pairs, "interval", interval.String(), "mode", c.cfg.Trading.Mode)

	c.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Trading loop stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *Controller) cycle(ctx context.Context) {
	if c.State() == StateStopped {
		return
	}
	for _, pair := range c.cfg.Trading.Pairs {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.eng.Step(ctx, pair); err != nil {
			if SkippablePairError(err) {
				logger.Warn(ctx, "Skipping pair for this cycle", "pair", pair, "error", err)
				continue
			}
			logger.ErrorWithErr(ctx, "Trading step failed", err, "pair", pair)
		}
	}
	c.mu.Lock()
	c.lastCycle = time.Now().UTC()
	c.mu.Unlock()
}
