package risk

import (
	"context"

	"github.com/quantfold/pilot/broker"
)

// Manager is the optional risk-manager collaborator. When attached, the
// gate runs its checks before executing and the engine consults it for
// portfolio maintenance. When nil, every call site degrades to the
// conservative local-only path (margin and lot checks) — absence is
// never a hard failure.
//
// Check methods return nil when the trade may proceed; a non-nil error
// carries the rejection reason.
type Manager interface {
	// Pre-trade gates, in the order the gate runs them.
	AllowNewTrade(symbol, reason string) error
	CheckExposureLimits(symbol string, lots float64) error
	IsMarginSufficient(symbol string, lots float64) error
	ValidateStopLossPlacement(symbol string, dir broker.Direction, entry, stop float64) error

	// Pre-flight advisories.
	AcceptableVolatility(symbol string) error
	AcceptableSpread(symbol string) error

	// Stop/target advice for entries.
	OptimalStopLoss(symbol string, dir broker.Direction, entry float64) float64
	OptimalTakeProfit(symbol string, dir broker.Direction, entry, stop float64) float64

	// Sizing and account-level gating.
	RiskAdjustedSize(symbol string, baseLots float64) float64
	CanOpenNewTrades() bool
	RiskLevel() Level

	// Bookkeeping after executions. riskDrift is the signed gap between
	// the risk planned at submission and the risk realized at the fill.
	UpdatePerformanceMetrics(symbol string, riskDrift float64)

	// Portfolio maintenance sweeps, run once per cycle.
	SecureProfit(ctx context.Context) error
	UpdateTrailingStops(ctx context.Context) error
	MoveToBreakeven(ctx context.Context, minProfitPoints float64) error
}
