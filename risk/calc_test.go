package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

func TestPositionSize(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// risk $100 over a 50-pip stop on a 100k contract:
	// 100 / (0.0050 * 100000) = 0.2 lots
	lots := PositionSize(10000, 1.0, 1.1000, 1.0950, sym)
	assert.InDelta(t, 0.2, lots, 1e-9)
}

func TestPositionSizeClampedToConstraints(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// tiny account, wide stop: raw size under MinLot clamps up
	lots := PositionSize(100, 0.5, 1.1000, 1.0900, sym)
	assert.InDelta(t, sym.MinLot, lots, 1e-9)

	// huge account, tight stop: clamps to MaxLot
	lots = PositionSize(1e9, 2.0, 1.1000, 1.0990, sym)
	assert.InDelta(t, sym.MaxLot, lots, 1e-9)
}

func TestPositionSizeFailsClosed(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	assert.Zero(t, PositionSize(10000, 1.0, 1.1000, 1.1000, sym), "zero stop distance")
	assert.Zero(t, PositionSize(0, 1.0, 1.1000, 1.0950, sym), "zero balance")
	assert.Zero(t, PositionSize(10000, 0, 1.1000, 1.0950, sym), "zero risk percent")
}

func TestTakeProfitGeometry(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// long: 50 pip risk at 2R → 100 pip reward
	tp := TakeProfit(sym, broker.Long, 1.1000, 1.0950, 2.0)
	assert.InDelta(t, 1.1100, tp, 1e-9)

	// short mirrors
	tp = TakeProfit(sym, broker.Short, 1.1000, 1.1050, 2.0)
	assert.InDelta(t, 1.0900, tp, 1e-9)
}

func TestTakeProfitRiskFloor(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// risk below one point floors at 200 points before the multiplier
	tp := TakeProfit(sym, broker.Long, 1.10000, 1.10000, 2.0)
	wantRisk := sym.PointsToPrice(200)
	assert.InDelta(t, 1.10000+2*wantRisk, tp, 1e-9)

	// idempotent: recomputing from the floored risk yields the same target
	tp2 := TakeProfit(sym, broker.Long, 1.10000, 1.10000-wantRisk, 2.0)
	assert.InDelta(t, tp, tp2, 1e-9)
}
