package risk

// Level grades account drawdown against the configured maximum.
type Level int

const (
	LevelOptimal Level = iota
	LevelLow
	LevelModerate
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelHigh:
		return "HIGH"
	case LevelModerate:
		return "MODERATE"
	case LevelLow:
		return "LOW"
	}
	return "OPTIMAL"
}

// AccountRiskLevel grades the current drawdown. Thresholds sit at 100%,
// 75%, 50% and 25% of maxDrawdownPercent.
func AccountRiskLevel(balance, equity, maxDrawdownPercent float64) Level {
	if balance <= 0 || maxDrawdownPercent <= 0 {
		return LevelCritical
	}
	dd := (balance - equity) / balance * 100
	switch {
	case dd >= maxDrawdownPercent:
		return LevelCritical
	case dd >= 0.75*maxDrawdownPercent:
		return LevelHigh
	case dd >= 0.50*maxDrawdownPercent:
		return LevelModerate
	case dd >= 0.25*maxDrawdownPercent:
		return LevelLow
	}
	return LevelOptimal
}

// MarketScore grades current market conditions for new exposure.
type MarketScore int

const (
	MarketOptimal MarketScore = iota
	MarketLow
	MarketModerate
	MarketHigh
)

func (s MarketScore) String() string {
	switch s {
	case MarketHigh:
		return "HIGH"
	case MarketModerate:
		return "MODERATE"
	case MarketLow:
		return "LOW"
	}
	return "OPTIMAL"
}

// MarketRiskScore combines volatility, trend strength and momentum
// extremes into a coarse market risk grade. atrPercent is ATR expressed
// as a percentage of price, so the grading works across asset classes.
//
// Additive scoring: elevated ATR adds up to +3; a very strong (≥40) or
// structureless (<15) ADX adds +1 each; RSI beyond 70/30 adds +1 and
// beyond 80/20 adds +2. Calm readings (ADX 20–35, RSI 40–60) subtract.
// Buckets: ≥4 High, ≥2 Moderate, ≥0 Low, below zero Optimal.
func MarketRiskScore(atrPercent, adx, rsi float64) MarketScore {
	score := 0

	switch {
	case atrPercent >= 1.5:
		score += 3
	case atrPercent >= 0.8:
		score += 2
	case atrPercent >= 0.4:
		score++
	}

	switch {
	case adx >= 40:
		score++
	case adx < 15:
		score++
	case adx >= 20 && adx <= 35:
		score--
	}

	switch {
	case rsi >= 80 || rsi <= 20:
		score += 2
	case rsi >= 70 || rsi <= 30:
		score++
	case rsi >= 40 && rsi <= 60:
		score--
	}

	switch {
	case score >= 4:
		return MarketHigh
	case score >= 2:
		return MarketModerate
	case score >= 0:
		return MarketLow
	}
	return MarketOptimal
}

// PositionLimits recommends how many positions an account of the given
// balance should carry, total and per symbol. The table is a monotonic
// step function of balance.
func PositionLimits(balance float64) (maxTotal, maxPerSymbol int) {
	switch {
	case balance < 100:
		return 2, 1
	case balance < 500:
		return 4, 2
	case balance < 1000:
		return 6, 2
	case balance < 2500:
		return 8, 3
	case balance < 5000:
		return 12, 3
	case balance < 10000:
		return 16, 4
	}
	return 20, 4
}
