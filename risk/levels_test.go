package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountRiskLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		balance float64
		equity  float64
		maxDD   float64
		want    Level
	}{
		{"no drawdown", 10000, 10000, 20, LevelOptimal},
		{"in profit", 10000, 10500, 20, LevelOptimal},
		{"quarter of max", 10000, 9500, 20, LevelLow},
		{"half of max", 10000, 9000, 20, LevelModerate},
		{"three quarters", 10000, 8500, 20, LevelHigh},
		{"at max", 10000, 8000, 20, LevelCritical},
		{"beyond max", 10000, 7000, 20, LevelCritical},
		{"zero balance", 0, 0, 20, LevelCritical},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AccountRiskLevel(tt.balance, tt.equity, tt.maxDD)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarketRiskScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		atrPct float64
		adx    float64
		rsi    float64
		want   MarketScore
	}{
		{"calm trending market", 0.2, 28, 55, MarketOptimal},
		{"quiet drift", 0.2, 18, 65, MarketLow},
		{"elevated volatility", 0.9, 28, 50, MarketLow},
		{"hot and overbought", 0.9, 42, 75, MarketHigh},
		{"extreme everything", 2.0, 45, 85, MarketHigh},
		{"choppy and stretched", 0.5, 12, 72, MarketModerate},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MarketRiskScore(tt.atrPct, tt.adx, tt.rsi)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPositionLimitsMonotonic(t *testing.T) {
	t.Parallel()

	balances := []float64{50, 100, 499, 500, 999, 1000, 2499, 2500, 4999, 5000, 9999, 10000, 1e6}

	prevTotal, prevPer := 0, 0
	for _, b := range balances {
		total, per := PositionLimits(b)
		assert.GreaterOrEqual(t, total, prevTotal, "total limit regressed at balance %v", b)
		assert.GreaterOrEqual(t, per, prevPer, "per-symbol limit regressed at balance %v", b)
		prevTotal, prevPer = total, per
	}

	total, per := PositionLimits(50)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, per)

	total, per = PositionLimits(50000)
	assert.Equal(t, 20, total)
	assert.Equal(t, 4, per)
}
