package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

func fp(v float64) *float64 { return &v }

func TestStopLossPrefersSwingPoint(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// swing low 40 pips under entry, plus the 10-point forex buffer
	stop := StopLoss(sym, broker.Long, 1.1000, 0.0020, fp(1.0960))
	assert.InDelta(t, 1.0959, stop, 1e-9)

	// short: swing high above entry, buffer added beyond it
	stop = StopLoss(sym, broker.Short, 1.1000, 0.0020, fp(1.1040))
	assert.InDelta(t, 1.1041, stop, 1e-9)
}

func TestStopLossATRFallback(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// no swing point: entry − ATR×1.5
	stop := StopLoss(sym, broker.Long, 1.1000, 0.0020, nil)
	assert.InDelta(t, 1.0970, stop, 1e-9)

	// swing on the wrong side of entry is ignored
	stop = StopLoss(sym, broker.Long, 1.1000, 0.0020, fp(1.1050))
	assert.InDelta(t, 1.0970, stop, 1e-9)
}

func TestStopLossBandClamp(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// tiny ATR: distance clamps up to the 150-point forex minimum
	stop := StopLoss(sym, broker.Long, 1.1000, 0.0001, nil)
	assert.InDelta(t, 1.0985, stop, 1e-9)

	// distant swing: distance clamps down to the 800-point maximum
	stop = StopLoss(sym, broker.Long, 1.1000, 0.0020, fp(1.0800))
	assert.InDelta(t, 1.0920, stop, 1e-9)
}

func TestStopLossBandScalesOnSlowTimeframes(t *testing.T) {
	t.Parallel()

	gold := market.Symbols["XAUUSD"] // metal on H1: 500-point min × 1.5

	stop := StopLoss(gold, broker.Long, 2400.00, 2.0, nil)
	assert.InDelta(t, 2392.50, stop, 1e-9)
}

func TestTrailingStopAdvances(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// 100 pips in favor with ATR 20 pips: active; swing 1.1050 − buffer 0.0010
	got := TrailingStop(sym, broker.Long, 1.1000, 1.1100, 1.0950, 0.0020, fp(1.1050))
	assert.InDelta(t, 1.1040, got, 1e-9)
}

func TestTrailingStopNeverRetreats(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// candidate below the current stop: unchanged
	got := TrailingStop(sym, broker.Long, 1.1000, 1.1100, 1.1040, 0.0020, fp(1.1020))
	assert.InDelta(t, 1.1040, got, 1e-9)

	// short: candidate above the current stop: unchanged
	got = TrailingStop(sym, broker.Short, 1.1000, 1.0900, 1.0940, 0.0020, fp(1.0960))
	assert.InDelta(t, 1.0940, got, 1e-9)
}

func TestTrailingStopRequiresFavorableMove(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// only 10 pips in favor, activation needs 30: unchanged
	got := TrailingStop(sym, broker.Long, 1.1000, 1.1010, 1.0950, 0.0020, fp(1.1005))
	assert.InDelta(t, 1.0950, got, 1e-9)
}

func TestTrailingStopStaysBetweenEntryAndPrice(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	// candidate at or below entry never accepted
	got := TrailingStop(sym, broker.Long, 1.1000, 1.1100, 1.0950, 0.0020, fp(1.0990))
	assert.InDelta(t, 1.0950, got, 1e-9)

	// short accepts a candidate between price and entry
	got = TrailingStop(sym, broker.Short, 1.1000, 1.0900, 1.1050, 0.0020, fp(1.0950))
	assert.InDelta(t, 1.0960, got, 1e-9)
}

func TestTrailingStopMissingInputs(t *testing.T) {
	t.Parallel()

	sym := market.Symbols["EURUSD"]

	assert.InDelta(t, 1.0950, TrailingStop(sym, broker.Long, 1.1000, 1.1100, 1.0950, 0, fp(1.1050)), 1e-9)
	assert.InDelta(t, 1.0950, TrailingStop(sym, broker.Long, 1.1000, 1.1100, 1.0950, 0.0020, nil), 1e-9)
}
