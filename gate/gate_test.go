package gate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
	"github.com/quantfold/pilot/risk"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type stubData struct {
	sym   market.Symbol
	quote market.Quote
}

func (d *stubData) Symbol(ctx context.Context, symbol string) (market.Symbol, error) {
	return d.sym, nil
}

func (d *stubData) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return d.quote, nil
}

type stubAccounts struct {
	acct broker.AccountSnapshot
}

func (a *stubAccounts) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	return a.acct, nil
}

type spyGateway struct {
	requests []broker.OrderRequest
	openErr  error
	slip     float64 // added to the requested price on fill
}

func (g *spyGateway) Open(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	if g.openErr != nil {
		return broker.OrderFill{}, g.openErr
	}
	g.requests = append(g.requests, req)
	return broker.OrderFill{Ticket: "T1", Price: req.Price + g.slip, Lots: req.Lots, Time: testNow}, nil
}

func (g *spyGateway) Close(ctx context.Context, ticket string) error { return nil }

type spyManager struct {
	allowErr    error
	exposureErr error
	marginErr   error
	stopErr     error
	volErr      error
	spreadErr   error
	perf        []float64
}

func (m *spyManager) AllowNewTrade(symbol, reason string) error { return m.allowErr }
func (m *spyManager) CheckExposureLimits(symbol string, lots float64) error {
	return m.exposureErr
}
func (m *spyManager) IsMarginSufficient(symbol string, lots float64) error { return m.marginErr }
func (m *spyManager) ValidateStopLossPlacement(symbol string, dir broker.Direction, entry, stop float64) error {
	return m.stopErr
}
func (m *spyManager) AcceptableVolatility(symbol string) error { return m.volErr }
func (m *spyManager) AcceptableSpread(symbol string) error     { return m.spreadErr }
func (m *spyManager) OptimalStopLoss(symbol string, dir broker.Direction, entry float64) float64 {
	return 0
}
func (m *spyManager) OptimalTakeProfit(symbol string, dir broker.Direction, entry, stop float64) float64 {
	return 0
}
func (m *spyManager) RiskAdjustedSize(symbol string, baseLots float64) float64 { return baseLots }
func (m *spyManager) CanOpenNewTrades() bool                                   { return true }
func (m *spyManager) RiskLevel() risk.Level                                    { return risk.LevelOptimal }
func (m *spyManager) UpdatePerformanceMetrics(symbol string, riskDrift float64) {
	m.perf = append(m.perf, riskDrift)
}
func (m *spyManager) SecureProfit(ctx context.Context) error        { return nil }
func (m *spyManager) UpdateTrailingStops(ctx context.Context) error { return nil }
func (m *spyManager) MoveToBreakeven(ctx context.Context, minProfitPoints float64) error {
	return nil
}

type fixture struct {
	data     *stubData
	accounts *stubAccounts
	gateway  *spyGateway
	mgr      *spyManager
	state    *risk.AccountRiskState
	exec     *Executor
}

func newFixture(freeMargin float64, mgr *spyManager) *fixture {
	f := &fixture{
		data: &stubData{
			sym: market.Symbols["EURUSD"],
			quote: market.Quote{
				Symbol: "EURUSD", Bid: 1.09990, Ask: 1.10000, Time: testNow,
			},
		},
		accounts: &stubAccounts{acct: broker.AccountSnapshot{
			Balance: 10000, Equity: 10000, FreeMargin: freeMargin,
		}},
		gateway: &spyGateway{},
		mgr:     mgr,
		state:   risk.NewAccountRiskState(0.5, risk.DefaultCloseInterval),
	}
	var m risk.Manager
	if mgr != nil {
		m = mgr
	}
	f.exec = NewExecutor(f.data, f.accounts, f.gateway, m, f.state, zerolog.Nop())
	f.exec.now = func() time.Time { return testNow }
	return f
}

func intent() Intent {
	return Intent{
		Symbol:     "EURUSD",
		Direction:  broker.Long,
		Lots:       0.10,
		StopLoss:   1.09500,
		TakeProfit: 1.11000,
		Reason:     "trend entry",
	}
}

func TestExecuteFillsAndRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, &spyManager{})
	fill, res, err := f.exec.Execute(context.Background(), intent())
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "T1", fill.Ticket)
	assert.InDelta(t, 0.10, fill.Lots, 1e-9)
	assert.Equal(t, 1, f.state.DailyTradeCount())
	require.Len(t, f.mgr.perf, 1)
	// a fill at the requested price carries no risk drift
	assert.InDelta(t, 0.0, f.mgr.perf[0], 1e-6)
}

func TestExecuteReportsRiskDriftOnSlippage(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, &spyManager{})
	f.gateway.slip = 0.00010

	fill, res, err := f.exec.Execute(context.Background(), intent())
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 1.10010, fill.Price, 1e-9)
	require.Len(t, f.mgr.perf, 1)
	// (|1.10010-1.09500| - |1.10000-1.09500|) × 0.1 × 100000
	assert.InDelta(t, 1.0, f.mgr.perf[0], 1e-6)
}

func TestExecuteCapsLotToMarginBuffer(t *testing.T) {
	t.Parallel()

	// 1000 free margin × 0.5 buffer supports 500/3333 ≈ 0.15 lots
	f := newFixture(1000, nil)
	in := intent()
	in.Lots = 1.0
	fill, res, err := f.exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 0.15, fill.Lots, 1e-9)

	sym := market.Symbols["EURUSD"]
	assert.LessOrEqual(t, sym.MarginPerLot*fill.Lots, 1000*0.5+1e-9,
		"approved margin must stay under the buffered free margin")
}

func TestExecuteRejectsWhenMarginSupportsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(30, nil)
	_, res, err := f.exec.Execute(context.Background(), intent())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Empty(t, f.gateway.requests)
	assert.Zero(t, f.state.DailyTradeCount())
}

func TestExecuteNeverRoundsAcrossTheBuffer(t *testing.T) {
	t.Parallel()

	// the margin-safe cap lands between steps; rounding to the nearest
	// step must not approve margin above the buffer
	for _, freeMargin := range []float64{103.0, 167.0, 251.0, 999.0} {
		f := newFixture(freeMargin, nil)
		in := intent()
		in.Lots = 5.0
		fill, res, err := f.exec.Execute(context.Background(), in)
		require.NoError(t, err)
		if !res.OK {
			continue
		}
		sym := market.Symbols["EURUSD"]
		assert.LessOrEqual(t, sym.MarginPerLot*fill.Lots, freeMargin*0.5+1e-6,
			"freeMargin=%v", freeMargin)
	}
}

func TestExecuteUsesSignalWithinTolerance(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, nil)
	in := intent()
	in.Signal = &Signal{
		EntryPrice: 1.10005,
		StopLoss:   1.09600,
		TakeProfit: 1.10900,
		Valid:      true,
		Expiry:     testNow.Add(time.Minute),
	}
	_, res, err := f.exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)

	req := f.gateway.requests[0]
	assert.InDelta(t, 1.10005, req.Price, 1e-9)
	assert.InDelta(t, 1.09600, req.StopLoss, 1e-9)
	assert.InDelta(t, 1.10900, req.TakeProfit, 1e-9)
}

func TestExecuteDiscardsDriftedSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, nil)
	in := intent()
	in.Signal = &Signal{
		EntryPrice: 1.10200, // 200 points away, tolerance is 10
		StopLoss:   1.09600,
		Valid:      true,
	}
	_, res, err := f.exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.OK, res.Reason)

	req := f.gateway.requests[0]
	assert.InDelta(t, 1.10000, req.Price, 1e-9, "falls back to market ask")
	assert.InDelta(t, 1.09500, req.StopLoss, 1e-9, "caller stop kept")
}

func TestExecuteIgnoresExpiredSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, nil)
	in := intent()
	in.Signal = &Signal{
		EntryPrice: 1.10005,
		StopLoss:   1.09600,
		Valid:      true,
		Expiry:     testNow.Add(-time.Second),
	}
	_, res, err := f.exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.InDelta(t, 1.10000, f.gateway.requests[0].Price, 1e-9)
}

func TestExecuteManagerRejectionShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, &spyManager{allowErr: assert.AnError})
	_, res, err := f.exec.Execute(context.Background(), intent())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Empty(t, f.gateway.requests)
	assert.Zero(t, f.state.DailyTradeCount())
}

func TestExecuteGatewayFailureMutatesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, &spyManager{})
	f.gateway.openErr = broker.NewExecError("open", broker.CodeOffQuotes)
	_, _, err := f.exec.Execute(context.Background(), intent())
	require.Error(t, err)
	ee, ok := broker.AsExecError(err)
	require.True(t, ok)
	assert.Equal(t, broker.CodeOffQuotes, ee.Code)
	assert.Zero(t, f.state.DailyTradeCount())
	assert.Empty(t, f.mgr.perf)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := newFixture(10000, &spyManager{})

	res := f.exec.Validate(context.Background(), intent())
	assert.True(t, res.OK, res.Reason)

	bad := intent()
	bad.Lots = 0
	assert.False(t, f.exec.Validate(context.Background(), bad).OK)

	big := intent()
	big.Lots = 50 // 3333 × 50 margin against 10000 × 0.5
	assert.False(t, f.exec.Validate(context.Background(), big).OK)

	f.mgr.spreadErr = assert.AnError
	assert.False(t, f.exec.Validate(context.Background(), intent()).OK)
	assert.Empty(t, f.gateway.requests, "validate never executes")
}

func TestSignalUsable(t *testing.T) {
	t.Parallel()

	var nilSig *Signal
	assert.False(t, nilSig.Usable(testNow))
	assert.False(t, (&Signal{Valid: false}).Usable(testNow))
	assert.True(t, (&Signal{Valid: true}).Usable(testNow), "zero expiry never ages out")
	assert.True(t, (&Signal{Valid: true, Expiry: testNow.Add(time.Second)}).Usable(testNow))
	assert.False(t, (&Signal{Valid: true, Expiry: testNow}).Usable(testNow))
}
