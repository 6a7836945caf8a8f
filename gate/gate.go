// Package gate validates, sizes, and executes trade intents through a
// strict ordered pipeline. A failing validation stage aborts with a
// reason and no side effect; only a successful gateway fill mutates the
// shared account risk state.
package gate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
	"github.com/quantfold/pilot/risk"
)

// Result is the outcome of a validation stage. Rejections are values,
// not errors: an intent that fails a check is a normal occurrence.
type Result struct {
	OK     bool
	Reason string
}

func reject(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

var accepted = Result{OK: true}

// marginEpsilon absorbs float64 noise in margin comparisons, in account
// currency units.
const marginEpsilon = 1e-6

// Executor runs trade intents through the pipeline. The risk manager is
// optional; without one the gate degrades to local margin and lot
// checks.
type Executor struct {
	data     market.Data
	accounts broker.Accounts
	gateway  broker.Gateway
	mgr      risk.Manager
	state    *risk.AccountRiskState
	log      zerolog.Logger

	now func() time.Time
}

func NewExecutor(data market.Data, accounts broker.Accounts, gateway broker.Gateway, mgr risk.Manager, state *risk.AccountRiskState, log zerolog.Logger) *Executor {
	return &Executor{
		data:     data,
		accounts: accounts,
		gateway:  gateway,
		mgr:      mgr,
		state:    state,
		log:      log,
		now:      time.Now,
	}
}

// Execute runs the full pipeline for one intent. A Result with OK=false
// means a validation stage rejected the intent; the error return is
// reserved for gateway and collaborator failures. Exactly one execution
// attempt is made, never retried.
func (e *Executor) Execute(ctx context.Context, intent Intent) (broker.OrderFill, Result, error) {
	sym, err := e.data.Symbol(ctx, intent.Symbol)
	if err != nil {
		return broker.OrderFill{}, Result{}, fmt.Errorf("resolve symbol %s: %w", intent.Symbol, err)
	}
	quote, err := e.data.Quote(ctx, intent.Symbol)
	if err != nil {
		return broker.OrderFill{}, Result{}, fmt.Errorf("quote %s: %w", intent.Symbol, err)
	}

	entry := entryPrice(quote, intent.Direction)
	stop := intent.StopLoss
	target := intent.TakeProfit

	// Stage 1: signal reconciliation. The signal wins only while the
	// market has not drifted past the slippage tolerance.
	if intent.Signal.Usable(e.now()) {
		if math.Abs(entry-intent.Signal.EntryPrice) <= sym.StopDistance() {
			entry = intent.Signal.EntryPrice
			stop = intent.Signal.StopLoss
			target = intent.Signal.TakeProfit
		} else {
			e.log.Debug().Str("symbol", intent.Symbol).
				Float64("signal", intent.Signal.EntryPrice).
				Float64("market", entry).
				Msg("signal price drifted, using market")
		}
	}

	// Stage 2: risk manager gate, in fixed order. Stop placement is
	// informational only.
	if e.mgr != nil {
		if err := e.mgr.AllowNewTrade(intent.Symbol, intent.Reason); err != nil {
			return broker.OrderFill{}, reject("trade not allowed: %v", err), nil
		}
		if err := e.mgr.CheckExposureLimits(intent.Symbol, intent.Lots); err != nil {
			return broker.OrderFill{}, reject("exposure limit: %v", err), nil
		}
		if err := e.mgr.IsMarginSufficient(intent.Symbol, intent.Lots); err != nil {
			return broker.OrderFill{}, reject("margin check: %v", err), nil
		}
		if err := e.mgr.ValidateStopLossPlacement(intent.Symbol, intent.Direction, entry, stop); err != nil {
			e.log.Warn().Err(err).Str("symbol", intent.Symbol).Msg("stop placement advisory")
		}
	}

	acct, err := e.accounts.Account(ctx)
	if err != nil {
		return broker.OrderFill{}, Result{}, fmt.Errorf("account state: %w", err)
	}
	buffer := e.state.MarginSafetyBuffer()

	// Stage 3: cap the lot at what the free margin can safely carry.
	lots := intent.Lots
	if sym.MarginPerLot > 0 {
		maxSafe := acct.FreeMargin * buffer / sym.MarginPerLot
		if maxSafe < sym.MinLot {
			return broker.OrderFill{}, reject("free margin %.2f supports no position", acct.FreeMargin), nil
		}
		if maxSafe < lots {
			e.log.Debug().Str("symbol", intent.Symbol).
				Float64("requested", lots).Float64("capped", maxSafe).
				Msg("lot reduced to margin-safe maximum")
			lots = maxSafe
		}
	}

	// Stage 4: the reduced lot must still fit under the buffer. The
	// epsilon absorbs float noise from the division in stage 3.
	if sym.MarginPerLot*lots > acct.FreeMargin*buffer+marginEpsilon {
		return broker.OrderFill{}, reject("required margin %.2f exceeds %.2f×%.2f",
			sym.MarginPerLot*lots, acct.FreeMargin, buffer), nil
	}

	// Stage 5: step alignment and volume bounds. Rounding may nudge the
	// lot above the margin-safe cap; step back down rather than breach
	// the buffer.
	lots = sym.AdjustToConstraints(lots)
	if lots <= 0 {
		return broker.OrderFill{}, reject("lot size rounds to zero"), nil
	}
	if sym.MarginPerLot*lots > acct.FreeMargin*buffer+marginEpsilon {
		lots = sym.AdjustToConstraints(lots - sym.LotStep)
		if lots <= 0 || sym.MarginPerLot*lots > acct.FreeMargin*buffer+marginEpsilon {
			return broker.OrderFill{}, reject("no step-aligned lot fits the margin buffer"), nil
		}
	}

	// Stage 6: one execution attempt.
	fill, err := e.gateway.Open(ctx, broker.OrderRequest{
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		Lots:       lots,
		Price:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		Tag:        intent.Reason,
	})
	if err != nil {
		if ee, ok := broker.AsExecError(err); ok {
			e.log.Error().Str("symbol", intent.Symbol).
				Str("code", broker.CodeDescription(ee.Code)).
				Msg("order rejected")
		}
		return broker.OrderFill{}, Result{}, fmt.Errorf("open %s %s: %w", intent.Symbol, intent.Direction, err)
	}

	// Stage 7: bookkeeping against the realized fill, not the request.
	e.state.RecordTrade(e.now())
	expectedRisk := math.Abs(entry-stop) * lots * sym.ContractSize
	realizedRisk := math.Abs(fill.Price-stop) * lots * sym.ContractSize
	if e.mgr != nil {
		e.mgr.UpdatePerformanceMetrics(intent.Symbol, realizedRisk-expectedRisk)
	}
	e.log.Info().Str("symbol", intent.Symbol).
		Str("ticket", fill.Ticket).
		Str("direction", intent.Direction.String()).
		Float64("lots", fill.Lots).
		Float64("price", fill.Price).
		Float64("slippage", fill.Price-entry).
		Float64("risk_drift", realizedRisk-expectedRisk).
		Msg("order filled")

	return fill, accepted, nil
}

// Validate is the side-effect-free pre-flight: it runs the cheap checks
// an intent must pass without touching the gateway or any counter.
// Missing stops are reported in the log but do not block.
func (e *Executor) Validate(ctx context.Context, intent Intent) Result {
	sym, err := e.data.Symbol(ctx, intent.Symbol)
	if err != nil {
		return reject("symbol %s not tradeable: %v", intent.Symbol, err)
	}
	if _, err := e.data.Quote(ctx, intent.Symbol); err != nil {
		return reject("no market data for %s: %v", intent.Symbol, err)
	}
	if intent.Lots <= 0 {
		return reject("lot size %.4f must be positive", intent.Lots)
	}
	if intent.StopLoss == 0 || intent.TakeProfit == 0 {
		e.log.Warn().Str("symbol", intent.Symbol).Msg("intent carries no stop or target")
	}
	if e.mgr != nil {
		if err := e.mgr.AcceptableVolatility(intent.Symbol); err != nil {
			return reject("volatility: %v", err)
		}
		if err := e.mgr.AcceptableSpread(intent.Symbol); err != nil {
			return reject("spread: %v", err)
		}
	}
	acct, err := e.accounts.Account(ctx)
	if err != nil {
		return reject("account state unavailable: %v", err)
	}
	if sym.MarginPerLot*intent.Lots > acct.FreeMargin*e.state.MarginSafetyBuffer() {
		return reject("insufficient margin for %.2f lots", intent.Lots)
	}
	return accepted
}

func entryPrice(q market.Quote, dir broker.Direction) float64 {
	if dir == broker.Long {
		return q.Ask
	}
	return q.Bid
}
