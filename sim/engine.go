// Package sim is an in-process paper broker: it fills market orders at
// the current bid/ask, marks open positions to market, triggers stops
// and targets on price updates, enforces margin with forced
// liquidation, and journals everything. It implements the gateway,
// ledger, account, and market-data interfaces the core consumes, so a
// full session can run without a platform.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/internal/id"
	"github.com/quantfold/pilot/journal"
	"github.com/quantfold/pilot/market"
)

type Engine struct {
	mu        sync.Mutex
	balance   float64
	equity    float64
	margin    float64
	symbols   map[string]market.Symbol
	quotes    *market.QuoteBook
	positions map[string]*position
	journal   journal.Journal
	ids       *id.Generator
}

// NewEngine builds a sim broker over the given symbol universe with a
// starting balance. Quotes arrive via UpdateQuote.
func NewEngine(balance float64, symbols map[string]market.Symbol, j journal.Journal) *Engine {
	if j == nil {
		j = journal.Nop{}
	}
	return &Engine{
		balance:   balance,
		equity:    balance,
		symbols:   symbols,
		quotes:    market.NewQuoteBook(),
		positions: make(map[string]*position),
		journal:   j,
		ids:       id.NewGenerator(),
	}
}

// SeedTickets replaces the ticket source with a deterministic one, so
// two sessions with the same seed and quote stream issue identical
// tickets. Call before the first order.
func (e *Engine) SeedTickets(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = id.NewDeterministic(seed)
}

func (e *Engine) Symbol(ctx context.Context, symbol string) (market.Symbol, error) {
	sym, ok := e.symbols[symbol]
	if !ok {
		return market.Symbol{}, fmt.Errorf("sim: unknown symbol %q", symbol)
	}
	return sym, nil
}

func (e *Engine) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return e.quotes.Get(symbol)
}

func (e *Engine) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return broker.AccountSnapshot{
		Balance:    e.balance,
		Equity:     e.equity,
		FreeMargin: e.equity - e.margin,
	}, nil
}

// Positions returns a fresh marked-to-market snapshot of every open
// position, ordered by ticket.
func (e *Engine) Positions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if !p.open {
			continue
		}
		mark, sym, err := e.markLocked(p)
		if err != nil {
			return nil, err
		}
		out = append(out, p.snapshot(mark, sym))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// Open fills a market order at the current ask (long) or bid (short).
// The fill fails with CodeInsufficientFunds when the new position's
// margin would not fit in free margin.
func (e *Engine) Open(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sym, ok := e.symbols[req.Symbol]
	if !ok {
		return broker.OrderFill{}, broker.NewExecError("open", broker.CodeRejected)
	}
	if req.Lots < sym.MinLot || req.Lots > sym.MaxLot {
		return broker.OrderFill{}, broker.NewExecError("open", broker.CodeInvalidVolume)
	}
	q, err := e.quotes.Get(req.Symbol)
	if err != nil {
		return broker.OrderFill{}, broker.NewExecError("open", broker.CodeOffQuotes)
	}

	fillPrice := q.Ask
	if req.Direction == broker.Short {
		fillPrice = q.Bid
	}

	if sym.MarginPerLot*req.Lots > e.equity-e.margin {
		return broker.OrderFill{}, broker.NewExecError("open", broker.CodeInsufficientFunds)
	}

	p := &position{
		ticket:     e.ids.New(),
		symbol:     req.Symbol,
		direction:  req.Direction,
		lots:       req.Lots,
		openPrice:  fillPrice,
		openTime:   q.Time,
		stopLoss:   req.StopLoss,
		takeProfit: req.TakeProfit,
		open:       true,
	}
	e.positions[p.ticket] = p
	e.margin += p.margin(sym)

	if err := e.journal.RecordOrder(journal.OrderRecord{
		Ticket:         p.ticket,
		Symbol:         p.symbol,
		Direction:      p.direction.String(),
		Lots:           p.lots,
		RequestedPrice: req.Price,
		FillPrice:      fillPrice,
		StopLoss:       p.stopLoss,
		TakeProfit:     p.takeProfit,
		Reason:         req.Tag,
		Time:           q.Time,
	}); err != nil {
		return broker.OrderFill{}, fmt.Errorf("sim: journal order: %w", err)
	}

	return broker.OrderFill{
		Ticket: p.ticket,
		Price:  fillPrice,
		Lots:   p.lots,
		Time:   q.Time,
	}, nil
}

// Close closes an open position at the current close-side price. Longs
// close on bid, shorts on ask. An unknown or already-closed ticket
// reports broker.ErrNoPosition.
func (e *Engine) Close(ctx context.Context, ticket string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok || !p.open {
		return broker.ErrNoPosition
	}

	mark, sym, err := e.markLocked(p)
	if err != nil {
		return broker.NewExecError("close", broker.CodeOffQuotes)
	}
	q, _ := e.quotes.Get(p.symbol)

	closeTime := q.Time
	if closeTime.IsZero() {
		closeTime = time.Now()
	}

	if err := e.closeLocked(p, mark, sym, closeTime, "ManualClose"); err != nil {
		return err
	}
	return e.settleLocked(closeTime)
}

// ModifyStops updates the stop loss and take profit on an open
// position. Zero keeps a level unset.
func (e *Engine) ModifyStops(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok || !p.open {
		return broker.ErrNoPosition
	}
	p.stopLoss = stopLoss
	p.takeProfit = takeProfit
	return nil
}

// UpdateQuote feeds the next tick: stores the quote, triggers any stop
// or target it crosses, revalues the account, journals an equity
// snapshot, and force-liquidates while equity cannot cover margin.
func (e *Engine) UpdateQuote(q market.Quote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.quotes.Set(q)

	for _, p := range e.tickets() {
		if !p.open || p.symbol != q.Symbol {
			continue
		}
		sym := e.symbols[p.symbol]
		mark := q.Bid
		if p.direction == broker.Short {
			mark = q.Ask
		}

		reason := ""
		switch {
		case p.hitStopLoss(mark):
			reason = "StopLoss"
		case p.hitTakeProfit(mark):
			reason = "TakeProfit"
		}
		if reason != "" {
			if err := e.closeLocked(p, mark, sym, q.Time, reason); err != nil {
				return err
			}
		}
	}

	return e.settleLocked(q.Time)
}

// tickets returns open positions in ticket order so trigger and
// liquidation sweeps are deterministic.
func (e *Engine) tickets() []*position {
	out := make([]*position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ticket < out[j].ticket })
	return out
}

func (e *Engine) markLocked(p *position) (float64, market.Symbol, error) {
	sym, ok := e.symbols[p.symbol]
	if !ok {
		return 0, market.Symbol{}, fmt.Errorf("sim: unknown symbol %q", p.symbol)
	}
	q, err := e.quotes.Get(p.symbol)
	if err != nil {
		return 0, market.Symbol{}, err
	}
	mark := q.Bid
	if p.direction == broker.Short {
		mark = q.Ask
	}
	return mark, sym, nil
}

func (e *Engine) closeLocked(p *position, closePrice float64, sym market.Symbol, closeTime time.Time, reason string) error {
	pl := p.unrealized(closePrice, sym)

	p.closePrice = closePrice
	p.closeTime = closeTime
	p.realized = pl
	p.open = false

	e.balance += pl

	return e.journal.RecordClose(journal.CloseRecord{
		Ticket:    p.ticket,
		Symbol:    p.symbol,
		Direction: p.direction.String(),
		Lots:      p.lots,
		OpenPrice: p.openPrice,
		ExitPrice: closePrice,
		OpenTime:  p.openTime,
		CloseTime: closeTime,
		Profit:    pl,
		Reason:    reason,
	})
}

// settleLocked revalues equity and margin, journals the snapshot, and
// liquidates worst-first while equity cannot cover margin.
func (e *Engine) settleLocked(at time.Time) error {
	if err := e.revalueLocked(); err != nil {
		return err
	}

	level := 0.0
	if e.margin > 0 {
		level = e.equity / e.margin
	}
	if err := e.journal.RecordEquity(journal.EquitySnapshot{
		Time:        at,
		Balance:     e.balance,
		Equity:      e.equity,
		MarginUsed:  e.margin,
		FreeMargin:  e.equity - e.margin,
		MarginLevel: level,
	}); err != nil {
		return err
	}

	return e.enforceMarginLocked(at)
}

func (e *Engine) revalueLocked() error {
	equity := e.balance
	margin := 0.0

	for _, p := range e.positions {
		if !p.open {
			continue
		}
		mark, sym, err := e.markLocked(p)
		if err != nil {
			return err
		}
		equity += p.unrealized(mark, sym)
		margin += p.margin(sym)
	}

	e.equity = equity
	e.margin = margin
	return nil
}

func (e *Engine) enforceMarginLocked(at time.Time) error {
	for {
		if e.margin <= 0 || e.equity >= e.margin {
			return nil
		}

		var worst *position
		var worstPL float64
		for _, p := range e.tickets() {
			if !p.open {
				continue
			}
			mark, sym, err := e.markLocked(p)
			if err != nil {
				return err
			}
			pl := p.unrealized(mark, sym)
			if worst == nil || pl < worstPL {
				worst = p
				worstPL = pl
			}
		}
		if worst == nil {
			return nil
		}

		mark, sym, err := e.markLocked(worst)
		if err != nil {
			return err
		}
		if err := e.closeLocked(worst, mark, sym, at, "Liquidation"); err != nil {
			return err
		}
		if err := e.revalueLocked(); err != nil {
			return err
		}
	}
}
