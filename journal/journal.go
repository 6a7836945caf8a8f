// Package journal records what the trading core actually did: orders
// as requested versus filled, closes with their trigger, and equity
// snapshots. Backends: sqlite, csv, nop.
package journal

import "time"

// OrderRecord is one executed entry, capturing the intent alongside the
// fill so slippage is queryable later.
type OrderRecord struct {
	Ticket         string
	Symbol         string
	Direction      string
	Lots           float64
	RequestedPrice float64
	FillPrice      float64
	StopLoss       float64
	TakeProfit     float64
	Reason         string
	Time           time.Time
}

// Slippage is fill minus request, signed in price units.
func (r OrderRecord) Slippage() float64 {
	return r.FillPrice - r.RequestedPrice
}

// CloseRecord is one position close, whatever triggered it.
type CloseRecord struct {
	Ticket    string
	Symbol    string
	Direction string
	Lots      float64
	OpenPrice float64
	ExitPrice float64
	OpenTime  time.Time
	CloseTime time.Time
	Profit    float64
	Reason    string
}

type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordClose(CloseRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything. Used when no journal is configured.
type Nop struct{}

func (Nop) RecordOrder(OrderRecord) error     { return nil }
func (Nop) RecordClose(CloseRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
