package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

type stubData struct {
	quote market.Quote
}

func (d stubData) Symbol(ctx context.Context, symbol string) (market.Symbol, error) {
	return market.Symbols[symbol], nil
}

func (d stubData) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return d.quote, nil
}

type stubLedger struct {
	positions []broker.Position
}

func (l stubLedger) Positions(ctx context.Context) ([]broker.Position, error) {
	return l.positions, nil
}

type stubAccounts struct {
	acct broker.AccountSnapshot
}

func (a stubAccounts) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	return a.acct, nil
}

// stubGateway records closes and stop modifications.
type stubGateway struct {
	closed   []string
	modified map[string]float64 // ticket -> stop
}

func (g *stubGateway) Open(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	return broker.OrderFill{}, nil
}

func (g *stubGateway) Close(ctx context.Context, ticket string) error {
	g.closed = append(g.closed, ticket)
	return nil
}

func (g *stubGateway) ModifyStops(ctx context.Context, ticket string, sl, tp float64) error {
	if g.modified == nil {
		g.modified = make(map[string]float64)
	}
	g.modified[ticket] = sl
	return nil
}

func newManager(balance, equity float64, positions ...broker.Position) (*PolicyManager, *stubGateway) {
	gw := &stubGateway{}
	m := NewPolicyManager(
		DefaultPolicy(),
		stubData{quote: market.Quote{Symbol: "EURUSD", Bid: 1.09990, Ask: 1.10000}},
		stubLedger{positions: positions},
		stubAccounts{acct: broker.AccountSnapshot{Balance: balance, Equity: equity, FreeMargin: equity}},
		gw,
	)
	return m, gw
}

func TestRiskAdjustedSizeScalesWithDrawdown(t *testing.T) {
	t.Parallel()

	// default policy allows 20% drawdown; bands sit at 5/10/15/20%
	tests := []struct {
		name   string
		equity float64
		want   float64
	}{
		{"no drawdown", 10000, 1.0},
		{"small drawdown", 9400, 0.9},
		{"half the budget", 8900, 0.75},
		{"deep drawdown", 8400, 0.5},
		{"busted", 7900, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newManager(10000, tt.equity)
			assert.InDelta(t, tt.want, m.RiskAdjustedSize("EURUSD", 1.0), 1e-9)
		})
	}
}

func TestCanOpenNewTradesClosesUnderStress(t *testing.T) {
	t.Parallel()

	m, _ := newManager(10000, 10000)
	assert.True(t, m.CanOpenNewTrades())
	assert.NoError(t, m.AllowNewTrade("EURUSD", "entry"))

	m, _ = newManager(10000, 8400)
	assert.False(t, m.CanOpenNewTrades())
	assert.Error(t, m.AllowNewTrade("EURUSD", "entry"))
}

func TestCheckExposureLimits(t *testing.T) {
	t.Parallel()

	// balance 10000 derives limits 20 total, 4 per symbol
	same := make([]broker.Position, 4)
	for i := range same {
		same[i] = broker.Position{Ticket: "t", Symbol: "EURUSD"}
	}

	m, _ := newManager(10000, 10000, same...)
	err := m.CheckExposureLimits("EURUSD", 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EURUSD")

	// other symbols still have room
	assert.NoError(t, m.CheckExposureLimits("USDJPY", 0.1))
}

func TestCheckExposureLimitsPolicyOverride(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{}
	p := DefaultPolicy()
	p.MaxOpenTrades = 1
	m := NewPolicyManager(p,
		stubData{quote: market.Quote{Symbol: "EURUSD", Bid: 1.09990, Ask: 1.10000}},
		stubLedger{positions: []broker.Position{{Ticket: "t1", Symbol: "XAUUSD"}}},
		stubAccounts{acct: broker.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 10000}},
		gw,
	)
	assert.Error(t, m.CheckExposureLimits("EURUSD", 0.1))
}

func TestIsMarginSufficient(t *testing.T) {
	t.Parallel()

	// 1 lot EURUSD reserves 3333, default policy allows half of free margin
	m, _ := newManager(10000, 10000)
	assert.NoError(t, m.IsMarginSufficient("EURUSD", 1.0))
	assert.Error(t, m.IsMarginSufficient("EURUSD", 2.0))
}

func TestValidateStopLossPlacement(t *testing.T) {
	t.Parallel()

	m, _ := newManager(10000, 10000)

	assert.Error(t, m.ValidateStopLossPlacement("EURUSD", broker.Long, 1.10000, 0))
	assert.Error(t, m.ValidateStopLossPlacement("EURUSD", broker.Long, 1.10000, 1.10100))
	assert.Error(t, m.ValidateStopLossPlacement("EURUSD", broker.Short, 1.10000, 1.09900))
	// inside the 10-point broker minimum
	assert.Error(t, m.ValidateStopLossPlacement("EURUSD", broker.Long, 1.10000, 1.09995))
	assert.NoError(t, m.ValidateStopLossPlacement("EURUSD", broker.Long, 1.10000, 1.09500))
}

func TestAcceptableVolatility(t *testing.T) {
	t.Parallel()

	m, _ := newManager(10000, 10000)

	// no reading recorded: not a blocker
	assert.NoError(t, m.AcceptableVolatility("EURUSD"))

	// ATR ~0.09% of price, under the 3% ceiling
	m.SetConditions("EURUSD", Conditions{ATR: 0.0010})
	assert.NoError(t, m.AcceptableVolatility("EURUSD"))

	// ATR ~4.5% of price
	m.SetConditions("EURUSD", Conditions{ATR: 0.0500})
	assert.Error(t, m.AcceptableVolatility("EURUSD"))
}

func TestAcceptableSpread(t *testing.T) {
	t.Parallel()

	// 10-point spread passes the 50-point default
	m, _ := newManager(10000, 10000)
	assert.NoError(t, m.AcceptableSpread("EURUSD"))

	gw := &stubGateway{}
	wide := NewPolicyManager(DefaultPolicy(),
		stubData{quote: market.Quote{Symbol: "EURUSD", Bid: 1.09900, Ask: 1.10000}},
		stubLedger{},
		stubAccounts{acct: broker.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 10000}},
		gw,
	)
	assert.Error(t, wide.AcceptableSpread("EURUSD"))
}

func TestUpdatePerformanceMetricsAccumulatesAbsoluteDrift(t *testing.T) {
	t.Parallel()

	// positive and negative slippage both widen the accumulated drift
	m, _ := newManager(10000, 10000)
	m.UpdatePerformanceMetrics("EURUSD", 12.5)
	m.UpdatePerformanceMetrics("EURUSD", -2.5)
	assert.InDelta(t, 15.0, m.RiskDrift("EURUSD"), 1e-9)
	assert.InDelta(t, 0.0, m.RiskDrift("XAUUSD"), 1e-9)
}

func TestSecureProfitBanksBiggestWinnerUnderStress(t *testing.T) {
	t.Parallel()

	positions := []broker.Position{
		{Ticket: "a", Symbol: "EURUSD", Profit: 150},
		{Ticket: "b", Symbol: "EURUSD", Profit: 320},
		{Ticket: "c", Symbol: "EURUSD", Profit: 40}, // under the banking threshold
	}

	// healthy account: nothing banked
	m, gw := newManager(10000, 10000, positions...)
	require.NoError(t, m.SecureProfit(context.Background()))
	assert.Empty(t, gw.closed)

	// stressed account: the biggest qualifying winner goes
	m, gw = newManager(10000, 8400, positions...)
	require.NoError(t, m.SecureProfit(context.Background()))
	assert.Equal(t, []string{"b"}, gw.closed)
}

func TestUpdateTrailingStopsPushesImprovedStops(t *testing.T) {
	t.Parallel()

	// long from 1.09000, price now 1.09990, stop still at 1.08800
	m, gw := newManager(10000, 10000, broker.Position{
		Ticket:    "t1",
		Symbol:    "EURUSD",
		Direction: broker.Long,
		Lots:      0.1,
		OpenPrice: 1.09000,
		StopLoss:  1.08800,
	})
	swing := 1.09600
	m.SetConditions("EURUSD", Conditions{ATR: 0.0010, SwingLow: &swing})

	require.NoError(t, m.UpdateTrailingStops(context.Background()))
	next, ok := gw.modified["t1"]
	require.True(t, ok, "expected a stop modification")
	// swing minus the 0.5 ATR buffer
	assert.InDelta(t, 1.09550, next, 1e-9)
}

func TestMoveToBreakeven(t *testing.T) {
	t.Parallel()

	// 99 points in profit, stop still below entry
	m, gw := newManager(10000, 10000, broker.Position{
		Ticket:    "t1",
		Symbol:    "EURUSD",
		Direction: broker.Long,
		Lots:      0.1,
		OpenPrice: 1.09000,
		StopLoss:  1.08800,
	})

	require.NoError(t, m.MoveToBreakeven(context.Background(), 50))
	assert.InDelta(t, 1.09000, gw.modified["t1"], 1e-9)

	// not enough movement: untouched
	m, gw = newManager(10000, 10000, broker.Position{
		Ticket:    "t2",
		Symbol:    "EURUSD",
		Direction: broker.Long,
		OpenPrice: 1.09980,
		StopLoss:  1.09900,
	})
	require.NoError(t, m.MoveToBreakeven(context.Background(), 50))
	assert.Empty(t, gw.modified)
}
