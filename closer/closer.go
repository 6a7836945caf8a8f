// Package closer selects and unwinds open positions. Every strategy
// works from a fresh ledger enumeration, scans once tracking the best
// candidate so far, closes by ticket, and reports symbol and profit or
// a failure. Enumeration is ordered by ticket ascending so tie-breaks
// are deterministic rather than ledger-order-dependent.
package closer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/risk"
)

// ErrNoCandidate reports that no position qualified for the requested
// strategy (e.g. no loser for a biggest-loss close).
var ErrNoCandidate = errors.New("no position qualifies")

// Priority selects the unwind policy for SmartClose.
type Priority int

const (
	SmallestAbsProfit Priority = iota
	BiggestLoss
	SmallestLoss
	Oldest
	Newest
	SmallestWin
)

func (p Priority) String() string {
	switch p {
	case SmallestAbsProfit:
		return "smallest_abs_profit"
	case BiggestLoss:
		return "biggest_loss"
	case SmallestLoss:
		return "smallest_loss"
	case Oldest:
		return "oldest"
	case Newest:
		return "newest"
	case SmallestWin:
		return "smallest_win"
	}
	return "unknown"
}

// CloseReport describes the outcome of a single-position close. Stale
// means the selected ticket vanished between enumeration and close — a
// no-op, not an error.
type CloseReport struct {
	Ticket   string
	Symbol   string
	Profit   float64
	Strategy Priority
	Stale    bool
}

// BulkReport aggregates a multi-position close, which continues past
// individual failures.
type BulkReport struct {
	Closed  int
	Failed  int
	Skipped int // stale tickets
	Profit  float64
}

// Selector implements the close strategies over a ledger and gateway.
type Selector struct {
	ledger  broker.Ledger
	gateway broker.Gateway
	log     zerolog.Logger
}

func NewSelector(ledger broker.Ledger, gateway broker.Gateway, log zerolog.Logger) *Selector {
	return &Selector{ledger: ledger, gateway: gateway, log: log}
}

// snapshot enumerates open positions, filtered by symbol when non-empty,
// sorted by ticket ascending.
func (s *Selector) snapshot(ctx context.Context, symbol string) ([]broker.Position, error) {
	all, err := s.ledger.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate positions: %w", err)
	}
	out := all[:0:0]
	for _, p := range all {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// close issues the close and builds the report. A vanished ticket is a
// stale-reference skip.
func (s *Selector) close(ctx context.Context, p broker.Position, strategy Priority) (CloseReport, error) {
	if err := s.gateway.Close(ctx, p.Ticket); err != nil {
		if errors.Is(err, broker.ErrNoPosition) {
			s.log.Debug().Str("ticket", p.Ticket).Str("symbol", p.Symbol).
				Msg("position gone before close, skipping")
			return CloseReport{Ticket: p.Ticket, Symbol: p.Symbol, Strategy: strategy, Stale: true}, nil
		}
		return CloseReport{}, fmt.Errorf("close %s: %w", p.Ticket, err)
	}
	s.log.Info().Str("ticket", p.Ticket).Str("symbol", p.Symbol).
		Float64("profit", p.Profit).Stringer("strategy", strategy).
		Msg("position closed")
	return CloseReport{Ticket: p.Ticket, Symbol: p.Symbol, Profit: p.Profit, Strategy: strategy}, nil
}

// CloseSmallestAbsProfit closes the position nearest to flat, winner or
// loser. First encountered (lowest ticket) wins ties.
func (s *Selector) CloseSmallestAbsProfit(ctx context.Context, symbol string) (CloseReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return CloseReport{}, err
	}
	var best *broker.Position
	for i := range positions {
		p := &positions[i]
		if best == nil || math.Abs(p.Profit) < math.Abs(best.Profit) {
			best = p
		}
	}
	if best == nil {
		return CloseReport{}, ErrNoCandidate
	}
	return s.close(ctx, *best, SmallestAbsProfit)
}

// CloseBiggestLoss closes the deepest losing position. With no losers it
// reports ErrNoCandidate.
func (s *Selector) CloseBiggestLoss(ctx context.Context, symbol string) (CloseReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return CloseReport{}, err
	}
	var best *broker.Position
	for i := range positions {
		p := &positions[i]
		if p.Profit < 0 && (best == nil || p.Profit < best.Profit) {
			best = p
		}
	}
	if best == nil {
		return CloseReport{}, ErrNoCandidate
	}
	return s.close(ctx, *best, BiggestLoss)
}

// CloseSmallestLoss closes the least-negative loser. The comparison
// sentinel starts at exactly 0 and doubles as the not-found marker, so
// a position sitting at precisely 0.00 profit never qualifies. That
// matches the system's historical behavior and is kept deliberately.
func (s *Selector) CloseSmallestLoss(ctx context.Context, symbol string) (CloseReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return CloseReport{}, err
	}
	var best *broker.Position
	smallest := 0.0
	for i := range positions {
		p := &positions[i]
		if p.Profit < 0 && (smallest == 0 || p.Profit > smallest) {
			smallest = p.Profit
			best = p
		}
	}
	if best == nil {
		return CloseReport{}, ErrNoCandidate
	}
	return s.close(ctx, *best, SmallestLoss)
}

// CloseSmallestWin closes the smallest winner at or above minProfit.
// With no qualifying winner it falls through to CloseSmallestLoss.
func (s *Selector) CloseSmallestWin(ctx context.Context, symbol string, minProfit float64) (CloseReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return CloseReport{}, err
	}
	var best *broker.Position
	for i := range positions {
		p := &positions[i]
		if p.Profit >= minProfit && (best == nil || p.Profit < best.Profit) {
			best = p
		}
	}
	if best == nil {
		return s.CloseSmallestLoss(ctx, symbol)
	}
	return s.close(ctx, *best, SmallestWin)
}

// CloseOldest closes the longest-held position.
func (s *Selector) CloseOldest(ctx context.Context, symbol string) (CloseReport, error) {
	return s.closeByAge(ctx, symbol, true)
}

// CloseNewest closes the most recently opened position.
func (s *Selector) CloseNewest(ctx context.Context, symbol string) (CloseReport, error) {
	return s.closeByAge(ctx, symbol, false)
}

func (s *Selector) closeByAge(ctx context.Context, symbol string, oldest bool) (CloseReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return CloseReport{}, err
	}
	var best *broker.Position
	for i := range positions {
		p := &positions[i]
		if best == nil {
			best = p
			continue
		}
		if oldest && p.OpenTime.Before(best.OpenTime) {
			best = p
		}
		if !oldest && p.OpenTime.After(best.OpenTime) {
			best = p
		}
	}
	if best == nil {
		return CloseReport{}, ErrNoCandidate
	}
	strategy := Oldest
	if !oldest {
		strategy = Newest
	}
	return s.close(ctx, *best, strategy)
}

// SmartClose dispatches to the strategy for the given priority.
func (s *Selector) SmartClose(ctx context.Context, symbol string, priority Priority) (CloseReport, error) {
	switch priority {
	case SmallestAbsProfit:
		return s.CloseSmallestAbsProfit(ctx, symbol)
	case BiggestLoss:
		return s.CloseBiggestLoss(ctx, symbol)
	case SmallestLoss:
		return s.CloseSmallestLoss(ctx, symbol)
	case Oldest:
		return s.CloseOldest(ctx, symbol)
	case Newest:
		return s.CloseNewest(ctx, symbol)
	case SmallestWin:
		return s.CloseSmallestWin(ctx, symbol, 0)
	}
	return CloseReport{}, fmt.Errorf("unknown close priority %d", int(priority))
}

// FoldingRecommendation advises which priority to fold with right now:
// under High/Critical account risk cut the deepest loser; with the book
// in aggregate profit shave the flattest position to preserve capital;
// with losers present work off the shallowest one; otherwise fall back
// to the deepest loser.
func (s *Selector) FoldingRecommendation(ctx context.Context, symbol string, mgr risk.Manager) (Priority, error) {
	if mgr != nil {
		if lvl := mgr.RiskLevel(); lvl == risk.LevelHigh || lvl == risk.LevelCritical {
			return BiggestLoss, nil
		}
	}
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return BiggestLoss, err
	}
	total := 0.0
	losers := false
	for _, p := range positions {
		total += p.Profit
		if p.Profit < 0 {
			losers = true
		}
	}
	switch {
	case total >= 0:
		return SmallestAbsProfit, nil
	case losers:
		return SmallestLoss, nil
	}
	return BiggestLoss, nil
}

// CloseAll closes every open position on the symbol (all symbols when
// empty), continuing past individual failures and aggregating counts.
func (s *Selector) CloseAll(ctx context.Context, symbol string) (BulkReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return BulkReport{}, err
	}
	var rep BulkReport
	for _, p := range positions {
		err := s.gateway.Close(ctx, p.Ticket)
		switch {
		case err == nil:
			rep.Closed++
			rep.Profit += p.Profit
		case errors.Is(err, broker.ErrNoPosition):
			rep.Skipped++
		default:
			rep.Failed++
			s.log.Warn().Err(err).Str("ticket", p.Ticket).Msg("bulk close failed for position")
		}
	}
	if rep.Failed > 0 {
		return rep, fmt.Errorf("bulk close: %d of %d closes failed", rep.Failed, len(positions))
	}
	return rep, nil
}

// CloseDirection closes every position on the given side of a symbol.
// Used for direction reversal while new entries are blocked.
func (s *Selector) CloseDirection(ctx context.Context, symbol string, dir broker.Direction) (BulkReport, error) {
	positions, err := s.snapshot(ctx, symbol)
	if err != nil {
		return BulkReport{}, err
	}
	var rep BulkReport
	for _, p := range positions {
		if p.Direction != dir {
			continue
		}
		err := s.gateway.Close(ctx, p.Ticket)
		switch {
		case err == nil:
			rep.Closed++
			rep.Profit += p.Profit
		case errors.Is(err, broker.ErrNoPosition):
			rep.Skipped++
		default:
			rep.Failed++
		}
	}
	return rep, nil
}
