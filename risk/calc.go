// Package risk holds the pure calculation layer: position sizing, stop
// and target geometry, trailing logic and qualitative risk grading. No
// function here mutates external state; orchestration lives in gate and
// engine.
package risk

import (
	"math"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

// takeProfitRiskFloorPoints substitutes for degenerate stop distances.
// A stop under one point would otherwise produce an absurd target.
const takeProfitRiskFloorPoints = 200

// PositionSize converts account risk appetite into lots:
//
//	lots = (balance × riskPercent/100) / (|entry−stop| × contract)
//
// clamped and step-aligned to the symbol's volume constraints. A stop
// at or through the entry fails closed to 0 lots.
func PositionSize(balance, riskPercent, entry, stop float64, sym market.Symbol) float64 {
	dist := math.Abs(entry - stop)
	if dist <= 0 || balance <= 0 || riskPercent <= 0 || sym.ContractSize <= 0 {
		return 0
	}
	riskAmt := balance * riskPercent / 100
	lots := riskAmt / (dist * sym.ContractSize)
	return sym.AdjustToConstraints(lots)
}

// TakeProfit places the target at rrRatio times the stop distance from
// entry, on the profitable side. Risk distances under one point are
// floored at 200 points first, so a broken stop cannot collapse the
// target onto the entry.
func TakeProfit(sym market.Symbol, dir broker.Direction, entry, stop, rrRatio float64) float64 {
	if rrRatio <= 0 {
		rrRatio = 1
	}
	risk := math.Abs(entry - stop)
	if risk < sym.Point {
		risk = sym.PointsToPrice(takeProfitRiskFloorPoints)
	}
	reward := risk * rrRatio
	tp := entry + dir.Sign()*reward
	return sym.NormalizePrice(tp)
}
