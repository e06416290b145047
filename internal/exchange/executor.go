package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/types"
)

// LiveExecutor places real market orders on Binance spot. It is the live
// counterpart of the paper executor behind the same interface.
type LiveExecutor struct {
	client  *binance.Client
	timeout time.Duration
	initial float64
}

var _ interfaces.OrderExecutor = (*LiveExecutor)(nil)

func NewLiveExecutor(apiKey, apiSecret string, timeout time.Duration, initialBalance float64) *LiveExecutor {
	return &LiveExecutor{
		client:  binance.NewClient(apiKey, apiSecret),
		timeout: timeout,
		initial: initialBalance,
	}
}

func (e *LiveExecutor) Buy(ctx context.Context, pair string, quoteAmount float64) (types.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.client.NewCreateOrderService().
		Symbol(symbol(pair)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatQty(quoteAmount)).
		Do(ctx)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: buy %s: %v", interfaces.ErrExecution, pair, err)
	}
	return fillFromOrder(pair, types.ActionBuy, res)
}

func (e *LiveExecutor) Sell(ctx context.Context, pair string, baseAmount float64) (types.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.client.NewCreateOrderService().
		Symbol(symbol(pair)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatQty(baseAmount)).
		Do(ctx)
	if err != nil {
		return types.Fill{}, fmt.Errorf("%w: sell %s: %v", interfaces.ErrExecution, pair, err)
	}
	return fillFromOrder(pair, types.ActionSell, res)
}

func (e *LiveExecutor) Wallet(ctx context.Context) (types.WalletSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	acct, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.WalletSnapshot{}, fmt.Errorf("%w: account: %v", interfaces.ErrExecution, err)
	}

	balances := make(map[string]float64)
	for _, b := range acct.Balances {
		free := parseFloat(b.Free)
		if free > 0 {
			balances[b.Asset] = free
		}
	}
	return types.WalletSnapshot{
		Balances: balances,
		Initial:  e.initial,
		Ts:       time.Now().UTC(),
	}, nil
}

// fillFromOrder derives the average fill price from the executed totals so
// partial fills across price levels report the effective price paid.
func fillFromOrder(pair, side string, res *binance.CreateOrderResponse) (types.Fill, error) {
	executed := parseFloat(res.ExecutedQuantity)
	quote := parseFloat(res.CummulativeQuoteQuantity)
	if executed <= 0 || quote <= 0 {
		return types.Fill{}, fmt.Errorf("%w: order %d not filled", interfaces.ErrExecution, res.OrderID)
	}

	var fee float64
	for _, f := range res.Fills {
		fee += parseFloat(f.Commission)
	}

	return types.Fill{
		Pair:   pair,
		Side:   side,
		Price:  quote / executed,
		Amount: executed,
		Fee:    fee,
	}, nil
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
