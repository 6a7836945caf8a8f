package broker

import (
	"context"
	"time"
)

// Direction is the side of a position or order.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "SELL"
	}
	return "BUY"
}

// Sign returns +1 for long, -1 for short. Handy for stop/target geometry.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// Position is a read snapshot of one open position. The broker owns the
// ledger; the core takes a fresh snapshot each enumeration and never
// mutates one in place.
type Position struct {
	Ticket     string
	Symbol     string
	Direction  Direction
	Lots       float64
	OpenPrice  float64
	OpenTime   time.Time
	Profit     float64 // unrealized, account currency, at snapshot time
	StopLoss   float64
	TakeProfit float64
}

// OrderRequest asks the gateway to open a position at market.
type OrderRequest struct {
	Symbol     string
	Direction  Direction
	Lots       float64
	Price      float64 // advisory; fills happen at the venue's price
	StopLoss   float64
	TakeProfit float64
	Tag        string
}

// OrderFill reports the actual execution of an OrderRequest.
type OrderFill struct {
	Ticket string
	Price  float64
	Lots   float64
	Time   time.Time
}

// Gateway routes orders to the venue. Calls are synchronous and
// single-attempt: the core never retries a failed open or close.
type Gateway interface {
	Open(ctx context.Context, req OrderRequest) (OrderFill, error)
	Close(ctx context.Context, ticket string) error
}

// StopModifier is an optional gateway capability for adjusting stops on
// an open position (trailing, breakeven moves). Gateways that cannot
// modify stops simply don't implement it.
type StopModifier interface {
	ModifyStops(ctx context.Context, ticket string, stopLoss, takeProfit float64) error
}

// Ledger enumerates currently open positions. Every call re-queries the
// venue; there is no caching contract, and a position returned here may
// already be gone by the time a close is attempted.
type Ledger interface {
	Positions(ctx context.Context) ([]Position, error)
}

// AccountSnapshot is the account state the risk layer works from.
type AccountSnapshot struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
}

// Accounts provides account state snapshots.
type Accounts interface {
	Account(ctx context.Context) (AccountSnapshot, error)
}
