// market/symbol.go
package market

import "math"

// Class groups symbols by asset type. Stop-distance buffers and bands
// differ per class: metals and crypto move in much bigger increments
// than FX majors.
type Class int

const (
	ClassForex Class = iota
	ClassMetal
	ClassCrypto
	ClassIndex
)

func (c Class) String() string {
	switch c {
	case ClassForex:
		return "forex"
	case ClassMetal:
		return "metal"
	case ClassCrypto:
		return "crypto"
	case ClassIndex:
		return "index"
	}
	return "unknown"
}

// Timeframe is the working chart timeframe of a symbol, in minutes.
type Timeframe int

const (
	M1  Timeframe = 1
	M5  Timeframe = 5
	M15 Timeframe = 15
	M30 Timeframe = 30
	H1  Timeframe = 60
	H4  Timeframe = 240
	D1  Timeframe = 1440
)

// Symbol is the per-instrument metadata snapshot the core works against.
// It is the Go rendering of what a trading platform reports for a symbol:
// quoting precision, volume constraints, margin cost and broker stop rules.
type Symbol struct {
	Name         string
	Class        Class
	Digits       int
	Point        float64 // smallest quoted price increment (10^-Digits)
	TickSize     float64 // minimum price movement accepted by the broker
	ContractSize float64 // units of base per 1.0 lot
	MinLot       float64
	MaxLot       float64
	LotStep      float64
	MarginPerLot float64 // account-currency margin to hold 1.0 lot
	StopsLevel   int     // minimum stop distance from market, in points
	FreezeLevel  int     // no-modify zone around market, in points
	Timeframe    Timeframe
}

// NormalizePrice rounds a price to the symbol's tick size.
func (s Symbol) NormalizePrice(p float64) float64 {
	tick := s.TickSize
	if tick <= 0 {
		tick = s.Point
	}
	if tick <= 0 {
		return p
	}
	return math.Round(p/tick) * tick
}

// AdjustToConstraints clamps a lot size into [MinLot, MaxLot] and aligns
// it to LotStep. Non-positive inputs come back as MinLot; callers that
// want fail-closed behavior must check for zero before adjusting.
func (s Symbol) AdjustToConstraints(lots float64) float64 {
	if s.LotStep > 0 {
		lots = math.Round(lots/s.LotStep) * s.LotStep
	}
	if lots < s.MinLot {
		lots = s.MinLot
	}
	if s.MaxLot > 0 && lots > s.MaxLot {
		lots = s.MaxLot
	}
	return lots
}

// StopDistance converts the broker stops level to a price distance.
// Symbols that report no stops level fall back to 10 points, which keeps
// freshness and stop checks meaningful on every venue.
func (s Symbol) StopDistance() float64 {
	lvl := s.StopsLevel
	if lvl <= 0 {
		lvl = 10
	}
	return float64(lvl) * s.Point
}

// PointsToPrice converts a distance in points to a price distance.
func (s Symbol) PointsToPrice(points float64) float64 {
	return points * s.Point
}

// PriceToPoints converts a price distance to points.
func (s Symbol) PriceToPoints(dist float64) float64 {
	if s.Point <= 0 {
		return 0
	}
	return dist / s.Point
}

// Symbols is the builtin metadata table used by the sim gateway and the
// CLI. A live deployment would populate Symbol from the platform instead.
var Symbols = map[string]Symbol{
	"EURUSD": {
		Name: "EURUSD", Class: ClassForex, Digits: 5, Point: 0.00001,
		TickSize: 0.00001, ContractSize: 100_000,
		MinLot: 0.01, MaxLot: 100, LotStep: 0.01,
		MarginPerLot: 3333, StopsLevel: 10, FreezeLevel: 5, Timeframe: M15,
	},
	"USDJPY": {
		Name: "USDJPY", Class: ClassForex, Digits: 3, Point: 0.001,
		TickSize: 0.001, ContractSize: 100_000,
		MinLot: 0.01, MaxLot: 100, LotStep: 0.01,
		MarginPerLot: 3333, StopsLevel: 10, FreezeLevel: 5, Timeframe: M15,
	},
	"XAUUSD": {
		Name: "XAUUSD", Class: ClassMetal, Digits: 2, Point: 0.01,
		TickSize: 0.01, ContractSize: 100,
		MinLot: 0.01, MaxLot: 50, LotStep: 0.01,
		MarginPerLot: 2400, StopsLevel: 30, FreezeLevel: 10, Timeframe: H1,
	},
	"BTCUSD": {
		Name: "BTCUSD", Class: ClassCrypto, Digits: 2, Point: 0.01,
		TickSize: 0.01, ContractSize: 1,
		MinLot: 0.01, MaxLot: 10, LotStep: 0.01,
		MarginPerLot: 6000, StopsLevel: 0, FreezeLevel: 0, Timeframe: H1,
	},
	"US500": {
		Name: "US500", Class: ClassIndex, Digits: 1, Point: 0.1,
		TickSize: 0.1, ContractSize: 10,
		MinLot: 0.1, MaxLot: 100, LotStep: 0.1,
		MarginPerLot: 2750, StopsLevel: 20, FreezeLevel: 10, Timeframe: M30,
	},
}
