package risk

import (
	"math"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

// atrStopMultiplier scales the ATR fallback when no swing point exists.
const atrStopMultiplier = 1.5

// trailingActivationATR is how far price must have moved in the
// position's favor, in ATR multiples, before the trail engages.
const trailingActivationATR = 1.5

// band is the allowed stop distance corridor for a symbol class, in
// points, plus the structural buffer added beyond a swing point.
type band struct {
	minPoints    float64
	maxPoints    float64
	bufferPoints float64
}

func classBand(c market.Class) band {
	switch c {
	case market.ClassMetal:
		return band{minPoints: 500, maxPoints: 4000, bufferPoints: 50}
	case market.ClassCrypto:
		return band{minPoints: 1000, maxPoints: 10000, bufferPoints: 100}
	case market.ClassIndex:
		return band{minPoints: 300, maxPoints: 2000, bufferPoints: 20}
	default:
		return band{minPoints: 150, maxPoints: 800, bufferPoints: 10}
	}
}

// stopBand returns the corridor in price terms, widened ×1.5 on slower
// working timeframes where noise bands are larger.
func stopBand(sym market.Symbol) (minDist, maxDist, buffer float64) {
	b := classBand(sym.Class)
	scale := 1.0
	if sym.Timeframe >= market.H1 {
		scale = 1.5
	}
	minDist = sym.PointsToPrice(b.minPoints) * scale
	maxDist = sym.PointsToPrice(b.maxPoints) * scale
	buffer = sym.PointsToPrice(b.bufferPoints)
	return minDist, maxDist, buffer
}

// StopLoss places the protective stop. The nearest qualifying swing
// point (a swing low below entry for longs, a swing high above for
// shorts) plus a class buffer is preferred; without one the stop falls
// back to entry ∓ ATR×1.5. The result is clamped into the class
// distance corridor and normalized to the symbol's tick size.
func StopLoss(sym market.Symbol, dir broker.Direction, entry, atr float64, swing *float64) float64 {
	minDist, maxDist, buffer := stopBand(sym)

	var stop float64
	placed := false
	if swing != nil {
		if dir == broker.Long && *swing < entry {
			stop = *swing - buffer
			placed = true
		} else if dir == broker.Short && *swing > entry {
			stop = *swing + buffer
			placed = true
		}
	}
	if !placed {
		stop = entry - dir.Sign()*atr*atrStopMultiplier
	}

	dist := math.Abs(entry - stop)
	if dist < minDist {
		dist = minDist
	}
	if dist > maxDist {
		dist = maxDist
	}
	stop = entry - dir.Sign()*dist
	return sym.NormalizePrice(stop)
}

// TrailingStop recomputes a candidate stop from the latest swing
// structure and returns it only when it improves the position. The
// candidate is swing ∓ max(0.5×ATR, 10×point); it is accepted when
//
//  1. price has moved at least 1.5×ATR in the position's favor since
//     entry, and
//  2. the candidate is strictly more favorable than the current stop
//     and still on the protective side of both price and entry.
//
// Otherwise the current stop comes back unchanged: trailing never
// retreats.
func TrailingStop(sym market.Symbol, dir broker.Direction, entry, price, currentStop, atr float64, swing *float64) float64 {
	if swing == nil || atr <= 0 {
		return currentStop
	}

	moved := dir.Sign() * (price - entry)
	if moved < trailingActivationATR*atr {
		return currentStop
	}

	buffer := math.Max(0.5*atr, sym.PointsToPrice(10))
	candidate := sym.NormalizePrice(*swing - dir.Sign()*buffer)

	if dir == broker.Long {
		// must sit between entry and price, and improve on the current stop
		if candidate <= entry || candidate >= price {
			return currentStop
		}
		if candidate <= currentStop {
			return currentStop
		}
	} else {
		if candidate >= entry || candidate <= price {
			return currentStop
		}
		if currentStop > 0 && candidate >= currentStop {
			return currentStop
		}
	}
	return candidate
}
