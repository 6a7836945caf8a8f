package risk

import (
	"sync"
	"time"
)

// AccountRiskState is the process-wide mutable trading state: the margin
// safety buffer, the monotonic daily trade counter, and per-symbol close
// throttling. It is held by the orchestrating engine and passed down,
// never a package-level singleton. All mutation happens inside a single
// decision cycle, but the mutex keeps it safe for callers that share it
// with a metrics or status endpoint.
type AccountRiskState struct {
	mu sync.Mutex

	marginSafetyBuffer float64
	dailyTradeCount    int
	tradingDay         time.Time // UTC midnight of the day the counter covers
	lastClose          map[string]time.Time
	minCloseInterval   time.Duration
}

const (
	minMarginBuffer = 0.1
	maxMarginBuffer = 1.0

	// DefaultCloseInterval throttles repeated folding actions so a bad
	// cycle cannot liquidate a whole book in seconds.
	DefaultCloseInterval = 30 * time.Second
)

// NewAccountRiskState builds state with the given margin safety buffer
// (clamped to [0.1, 1.0]) and close throttle interval.
func NewAccountRiskState(marginBuffer float64, closeInterval time.Duration) *AccountRiskState {
	if closeInterval <= 0 {
		closeInterval = DefaultCloseInterval
	}
	return &AccountRiskState{
		marginSafetyBuffer: clampBuffer(marginBuffer),
		lastClose:          make(map[string]time.Time),
		minCloseInterval:   closeInterval,
	}
}

func clampBuffer(b float64) float64 {
	if b < minMarginBuffer {
		return minMarginBuffer
	}
	if b > maxMarginBuffer {
		return maxMarginBuffer
	}
	return b
}

// MarginSafetyBuffer returns the fraction of free margin trades may
// consume.
func (s *AccountRiskState) MarginSafetyBuffer() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marginSafetyBuffer
}

// SetMarginSafetyBuffer adjusts the buffer, clamped to [0.1, 1.0].
func (s *AccountRiskState) SetMarginSafetyBuffer(b float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marginSafetyBuffer = clampBuffer(b)
}

// DailyTradeCount reports trades opened so far today.
func (s *AccountRiskState) DailyTradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyTradeCount
}

// RecordTrade increments the daily counter, rolling it over first if the
// UTC date has changed since the last observation.
func (s *AccountRiskState) RecordTrade(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(now)
	s.dailyTradeCount++
}

// RollDay resets the daily counter when now falls on a new UTC date.
func (s *AccountRiskState) RollDay(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(now)
}

func (s *AccountRiskState) rollDayLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.tradingDay) {
		s.tradingDay = day
		s.dailyTradeCount = 0
	}
}

// RecordClose stamps the last close time for a symbol.
func (s *AccountRiskState) RecordClose(symbol string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastClose[symbol] = now
}

// CanCloseAgain reports whether enough time has passed since the last
// close on the symbol for another folding action.
func (s *AccountRiskState) CanCloseAgain(symbol string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastClose[symbol]
	if !ok {
		return true
	}
	return now.Sub(last) >= s.minCloseInterval
}
