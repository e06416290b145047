package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/types"
)

// Paper simulates order execution against live market prices. Fills happen
// instantly at the current ticker price; a virtual wallet holds decimal
// balances so repeated fee arithmetic never drifts.
type Paper struct {
	feed  interfaces.MarketDataFeed
	quote string

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	initial  decimal.Decimal
	feePct   decimal.Decimal // e.g. 0.1 for 0.1% per fill
}

var _ interfaces.OrderExecutor = (*Paper)(nil)

func NewPaper(feed interfaces.MarketDataFeed, quote string, initialBalance, feePercent float64) *Paper {
	initial := decimal.NewFromFloat(initialBalance)
	return &Paper{
		feed:     feed,
		quote:    quote,
		balances: map[string]decimal.Decimal{quote: initial},
		initial:  initial,
		feePct:   decimal.NewFromFloat(feePercent),
	}
}

// splitPair returns the base and quote currencies of a "BASE/QUOTE" pair.
func splitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pair %q", pair)
	}
	return parts[0], parts[1], nil
}

func (p *Paper) fee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(p.feePct).Div(decimal.NewFromInt(100))
}

// Buy spends quoteAmount of the quote currency on the pair's base currency,
// charging the fee on top of the spent notional.
func (p *Paper) Buy(ctx context.Context, pair string, quoteAmount float64) (types.Fill, error) {
	base, quote, err := splitPair(pair)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: %v", interfaces.ErrExecution, err)
	}
	tick, err := p.feed.Ticker(ctx, pair)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: no fill price for %s: %v", interfaces.ErrExecution, pair, err)
	}
	if tick.Price <= 0 {
		return types.Fill{}, fmt.Errorf("%w: non-positive price %f for %s", interfaces.ErrExecution, tick.Price, pair)
	}

	cost := decimal.NewFromFloat(quoteAmount)
	price := decimal.NewFromFloat(tick.Price)
	fee := p.fee(cost)
	total := cost.Add(fee)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balances[quote].LessThan(total) {
		return types.Fill{}, fmt.Errorf("%w: insufficient %s balance: have %s, need %s",
			interfaces.ErrExecution, quote, p.balances[quote].String(), total.String())
	}
	amount := cost.Div(price)
	p.balances[quote] = p.balances[quote].Sub(total)
	p.balances[base] = p.balances[base].Add(amount)

	return types.Fill{
		Pair:   pair,
		Side:   types.ActionBuy,
		Price:  tick.Price,
		Amount: amount.InexactFloat64(),
		Fee:    fee.InexactFloat64(),
	}, nil
}

// Sell liquidates baseAmount of the base currency into quote, charging the
// fee on the proceeds.
func (p *Paper) Sell(ctx context.Context, pair string, baseAmount float64) (types.Fill, error) {
	base, quote, err := splitPair(pair)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: %v", interfaces.ErrExecution, err)
	}
	tick, err := p.feed.Ticker(ctx, pair)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: no fill price for %s: %v", interfaces.ErrExecution, pair, err)
	}
	if tick.Price <= 0 {
		return types.Fill{}, fmt.Errorf("%w: non-positive price %f for %s", interfaces.ErrExecution, tick.Price, pair)
	}

	amount := decimal.NewFromFloat(baseAmount)
	price := decimal.NewFromFloat(tick.Price)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balances[base].LessThan(amount) {
		return types.Fill{}, fmt.Errorf("%w: insufficient %s balance: have %s, need %s",
			interfaces.ErrExecution, base, p.balances[base].String(), amount.String())
	}
	proceeds := amount.Mul(price)
	fee := p.fee(proceeds)
	p.balances[base] = p.balances[base].Sub(amount)
	p.balances[quote] = p.balances[quote].Add(proceeds.Sub(fee))

	return types.Fill{
		Pair:   pair,
		Side:   types.ActionSell,
		Price:  tick.Price,
		Amount: baseAmount,
		Fee:    fee.InexactFloat64(),
	}, nil
}

// Wallet returns a consistent snapshot of the virtual balances.
func (p *Paper) Wallet(ctx context.Context) (types.WalletSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balances := make(map[string]float64, len(p.balances))
	for cur, amt := range p.balances {
		balances[cur] = amt.InexactFloat64()
	}
	return types.WalletSnapshot{
		Balances: balances,
		Initial:  p.initial.InexactFloat64(),
		Ts:       time.Now().UTC(),
	}, nil
}
