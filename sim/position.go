package sim

import (
	"time"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

// position is an open holding inside the sim engine. The broker-facing
// view is produced by snapshot(); callers never see this struct.
type position struct {
	ticket     string
	symbol     string
	direction  broker.Direction
	lots       float64
	openPrice  float64
	openTime   time.Time
	stopLoss   float64
	takeProfit float64
	open       bool

	// realized on close
	closePrice float64
	closeTime  time.Time
	realized   float64
}

// unrealized marks the position to the given close-side price. Symbols
// are quoted in the account currency, so no conversion applies.
func (p *position) unrealized(mark float64, sym market.Symbol) float64 {
	return (mark - p.openPrice) * p.direction.Sign() * p.lots * sym.ContractSize
}

func (p *position) margin(sym market.Symbol) float64 {
	return sym.MarginPerLot * p.lots
}

// hitStopLoss checks the close-side price against the stop. A zero stop
// means none is set.
func (p *position) hitStopLoss(mark float64) bool {
	if p.stopLoss == 0 {
		return false
	}
	if p.direction == broker.Long {
		return mark <= p.stopLoss
	}
	return mark >= p.stopLoss
}

func (p *position) hitTakeProfit(mark float64) bool {
	if p.takeProfit == 0 {
		return false
	}
	if p.direction == broker.Long {
		return mark >= p.takeProfit
	}
	return mark <= p.takeProfit
}

func (p *position) snapshot(mark float64, sym market.Symbol) broker.Position {
	return broker.Position{
		Ticket:     p.ticket,
		Symbol:     p.symbol,
		Direction:  p.direction,
		Lots:       p.lots,
		OpenPrice:  p.openPrice,
		OpenTime:   p.openTime,
		Profit:     p.unrealized(mark, sym),
		StopLoss:   p.stopLoss,
		TakeProfit: p.takeProfit,
	}
}
