package gate

import (
	"time"

	"github.com/quantfold/pilot/broker"
)

// Signal is an advisory price suggestion from an external generator.
// The gate only honors it while it is valid, unexpired, and within the
// symbol's slippage tolerance of the live market; otherwise it is
// discarded in favor of the market price and the caller's stops.
type Signal struct {
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Valid      bool
	Expiry     time.Time
}

// Usable reports whether the signal may be considered at all. A zero
// expiry means the signal does not age out.
func (s *Signal) Usable(now time.Time) bool {
	if s == nil || !s.Valid {
		return false
	}
	return s.Expiry.IsZero() || now.Before(s.Expiry)
}

// Intent is a single trade request. It is consumed exactly once by the
// executor and never persisted.
type Intent struct {
	Symbol     string
	Direction  broker.Direction
	Lots       float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	Signal     *Signal
}
