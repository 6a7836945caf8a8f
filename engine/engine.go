// Package engine is the hierarchical decision engine: a three-tier
// trend-confirmation state machine crossed with an access layer that
// blocks growth but never risk reduction. One Cycle per symbol per
// tick; the engine drives the gate for entries and the closing
// selector for unwinds.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/closer"
	"github.com/quantfold/pilot/gate"
	"github.com/quantfold/pilot/market"
	"github.com/quantfold/pilot/risk"
)

// breakevenPoints is how far a position must have run, in points,
// before its stop is lifted to entry.
const breakevenPoints = 100

// Calendar is the optional news-blackout collaborator.
type Calendar interface {
	InBlackout(symbol string, at time.Time) bool
}

// Config carries the engine's tunables. Zero limit fields fall back to
// the balance-derived position limit table.
type Config struct {
	RiskPercent    float64
	RewardRatio    float64
	MaxDailyTrades int
	MaxOpenTrades  int
	MaxPerSymbol   int
}

func DefaultConfig() Config {
	return Config{
		RiskPercent:    1.0,
		RewardRatio:    2.0,
		MaxDailyTrades: 10,
	}
}

// Snapshot is the per-cycle input for one symbol: the classified tier
// readings plus the indicator values and structure points the sizing
// path needs. Indicator computation happens upstream.
type Snapshot struct {
	Symbol    string
	Reading   Reading
	ATR       float64
	ADX       float64
	RSI       float64
	SwingHigh *float64
	SwingLow  *float64
	Signal    *gate.Signal
}

// Report describes what one cycle decided and did.
type Report struct {
	Symbol string
	Trend  Decision
	Action Action
	Reason string
	Fill   *broker.OrderFill
	Close  *closer.CloseReport
	Bulk   *closer.BulkReport
}

type Engine struct {
	cfg      Config
	data     market.Data
	accounts broker.Accounts
	ledger   broker.Ledger
	gate     *gate.Executor
	closer   *closer.Selector
	mgr      risk.Manager
	state    *risk.AccountRiskState
	cal      Calendar
	log      zerolog.Logger

	now func() time.Time
}

func New(cfg Config, data market.Data, accounts broker.Accounts, ledger broker.Ledger, gt *gate.Executor, cl *closer.Selector, mgr risk.Manager, state *risk.AccountRiskState, cal Calendar, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		data:     data,
		accounts: accounts,
		ledger:   ledger,
		gate:     gt,
		closer:   cl,
		mgr:      mgr,
		state:    state,
		cal:      cal,
		log:      log,
		now:      time.Now,
	}
}

// Cycle runs one full decision cycle for one symbol. It always
// completes: every failure is captured in the report and the caller
// moves on to the next symbol.
func (e *Engine) Cycle(ctx context.Context, snap Snapshot) Report {
	now := e.now()
	e.state.RollDay(now)

	trend := Decide(snap.Reading)
	rep := Report{Symbol: snap.Symbol, Trend: trend, Action: trend.Action}

	switch {
	case trend.Action.Entry():
		e.runEntry(ctx, snap, trend, &rep)
	case trend.Action == ActionCloseLosers:
		e.runFold(ctx, snap.Symbol, closer.BiggestLoss, &rep)
	case trend.Action == ActionCloseSlowly:
		e.runCloseSlowly(ctx, snap.Symbol, &rep)
	case trend.Action == ActionCloseAll:
		_, isBlocked := e.blocked(ctx, snap.Symbol)
		e.runCloseAll(ctx, snap.Symbol, !isBlocked, &rep)
	}

	e.maintain(ctx)

	e.log.Info().Str("symbol", snap.Symbol).
		Stringer("trend", trend.Action).
		Stringer("action", rep.Action).
		Str("reason", rep.Reason).
		Msg("cycle complete")
	return rep
}

// blocked evaluates the access layer. It gates growth only; unwind
// paths never consult it.
func (e *Engine) blocked(ctx context.Context, symbol string) (string, bool) {
	if e.mgr != nil && !e.mgr.CanOpenNewTrades() {
		return "risk level blocks new trades", true
	}
	if e.cfg.MaxDailyTrades > 0 && e.state.DailyTradeCount() >= e.cfg.MaxDailyTrades {
		return "daily trade limit reached", true
	}
	if e.cal != nil && e.cal.InBlackout(symbol, e.now()) {
		return "news blackout", true
	}

	acct, err := e.accounts.Account(ctx)
	if err != nil {
		return "account state unavailable", true
	}
	maxTotal, maxPerSymbol := risk.PositionLimits(acct.Balance)
	if e.cfg.MaxOpenTrades > 0 {
		maxTotal = e.cfg.MaxOpenTrades
	}
	if e.cfg.MaxPerSymbol > 0 {
		maxPerSymbol = e.cfg.MaxPerSymbol
	}

	positions, err := e.ledger.Positions(ctx)
	if err != nil {
		return "position ledger unavailable", true
	}
	if len(positions) >= maxTotal {
		return "open position limit reached", true
	}
	count := 0
	for _, p := range positions {
		if p.Symbol == symbol {
			count++
		}
	}
	if count >= maxPerSymbol {
		return "symbol position limit reached", true
	}
	return "", false
}

func (e *Engine) runEntry(ctx context.Context, snap Snapshot, trend Decision, rep *Report) {
	if reason, isBlocked := e.blocked(ctx, snap.Symbol); isBlocked {
		rep.Action = trend.Action.Blocked()
		rep.Reason = reason

		// Reversal stays permitted under a block: an opposing position
		// is risk, and closing it reduces exposure.
		if e.hasPosition(ctx, snap.Symbol, trend.Dir.Opposite()) {
			bulk, err := e.closer.CloseDirection(ctx, snap.Symbol, trend.Dir.Opposite())
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", snap.Symbol).Msg("blocked reversal close failed")
			}
			rep.Bulk = &bulk
			rep.Reason = reason + "; closed opposing side"
		}
		return
	}

	sym, err := e.data.Symbol(ctx, snap.Symbol)
	if err != nil {
		rep.Reason = "symbol unavailable: " + err.Error()
		return
	}
	quote, err := e.data.Quote(ctx, snap.Symbol)
	if err != nil {
		rep.Reason = "no quote: " + err.Error()
		return
	}
	acct, err := e.accounts.Account(ctx)
	if err != nil {
		rep.Reason = "account state unavailable: " + err.Error()
		return
	}

	dir := trend.Dir
	entry := quote.Ask
	swing := snap.SwingLow
	if dir == broker.Short {
		entry = quote.Bid
		swing = snap.SwingHigh
	}

	stop := risk.StopLoss(sym, dir, entry, snap.ATR, swing)
	target := risk.TakeProfit(sym, dir, entry, stop, e.cfg.RewardRatio)

	// Additions run at half risk, and only count as additions while a
	// same-direction position exists; otherwise this is a fresh entry.
	riskPercent := e.cfg.RiskPercent
	if trend.Action == ActionAdd {
		if e.hasPosition(ctx, snap.Symbol, dir) {
			riskPercent /= 2
		} else {
			rep.Action = actionFor(dir)
		}
	}

	lots := risk.PositionSize(acct.Balance, riskPercent, entry, stop, sym)
	if e.mgr != nil {
		lots = e.mgr.RiskAdjustedSize(snap.Symbol, lots)
	}
	if lots <= 0 {
		rep.Reason = "sizing produced no volume"
		return
	}

	fill, res, err := e.gate.Execute(ctx, gate.Intent{
		Symbol:     snap.Symbol,
		Direction:  dir,
		Lots:       lots,
		StopLoss:   stop,
		TakeProfit: target,
		Reason:     rep.Action.String(),
		Signal:     snap.Signal,
	})
	switch {
	case err != nil:
		rep.Reason = "execution failed: " + err.Error()
	case !res.OK:
		rep.Reason = res.Reason
	default:
		rep.Fill = &fill
	}
}

func actionFor(dir broker.Direction) Action {
	if dir == broker.Short {
		return ActionSell
	}
	return ActionBuy
}

// runFold closes one position under the given priority, honoring the
// per-symbol inter-close throttle.
func (e *Engine) runFold(ctx context.Context, symbol string, priority closer.Priority, rep *Report) {
	now := e.now()
	if !e.state.CanCloseAgain(symbol, now) {
		rep.Reason = "inter-close interval not elapsed"
		return
	}
	cr, err := e.closer.SmartClose(ctx, symbol, priority)
	switch {
	case errors.Is(err, closer.ErrNoCandidate):
		rep.Reason = "no position qualifies"
	case err != nil:
		rep.Reason = "close failed: " + err.Error()
	default:
		rep.Close = &cr
		e.state.RecordClose(symbol, now)
	}
}

func (e *Engine) runCloseSlowly(ctx context.Context, symbol string, rep *Report) {
	priority, err := e.closer.FoldingRecommendation(ctx, symbol, e.mgr)
	if err != nil {
		rep.Reason = "folding advisor: " + err.Error()
		return
	}
	e.runFold(ctx, symbol, priority, rep)
}

// runCloseAll folds one loser per cycle and only closes the whole book
// once no loser remains. Gradual de-risking over multiple cycles is the
// intended shape; a single-cycle full liquidation is not. Under an
// access block only the fold attempt runs.
func (e *Engine) runCloseAll(ctx context.Context, symbol string, allowBulk bool, rep *Report) {
	now := e.now()
	if !e.state.CanCloseAgain(symbol, now) {
		rep.Reason = "inter-close interval not elapsed"
		return
	}
	cr, err := e.closer.CloseBiggestLoss(ctx, symbol)
	switch {
	case err == nil:
		rep.Close = &cr
		e.state.RecordClose(symbol, now)
		return
	case !errors.Is(err, closer.ErrNoCandidate):
		rep.Reason = "close failed: " + err.Error()
		return
	}

	if !allowBulk {
		rep.Reason = "no loser to fold; full close deferred"
		return
	}
	bulk, err := e.closer.CloseAll(ctx, symbol)
	if err != nil {
		rep.Reason = "bulk close: " + err.Error()
	}
	rep.Bulk = &bulk
	if bulk.Closed > 0 {
		e.state.RecordClose(symbol, now)
	}
}

func (e *Engine) hasPosition(ctx context.Context, symbol string, dir broker.Direction) bool {
	positions, err := e.ledger.Positions(ctx)
	if err != nil {
		return false
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Direction == dir {
			return true
		}
	}
	return false
}

// maintain runs the per-cycle portfolio sweeps when a risk manager is
// attached. Sweep errors never abort the cycle.
func (e *Engine) maintain(ctx context.Context) {
	if e.mgr == nil {
		return
	}
	if err := e.mgr.UpdateTrailingStops(ctx); err != nil {
		e.log.Warn().Err(err).Msg("trailing stop sweep failed")
	}
	if err := e.mgr.MoveToBreakeven(ctx, breakevenPoints); err != nil {
		e.log.Warn().Err(err).Msg("breakeven sweep failed")
	}
	if err := e.mgr.SecureProfit(ctx); err != nil {
		e.log.Warn().Err(err).Msg("secure profit sweep failed")
	}
}
