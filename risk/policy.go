package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/market"
)

// Policy is the limit set a PolicyManager enforces.
type Policy struct {
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent"`
	MaxOpenTrades      int     `yaml:"max_open_trades"`      // 0 = derive from balance
	MaxPerSymbol       int     `yaml:"max_per_symbol"`       // 0 = derive from balance
	MaxSpreadPoints    float64 `yaml:"max_spread_points"`    // widest acceptable spread
	MaxATRPercent      float64 `yaml:"max_atr_percent"`      // volatility ceiling, ATR as % of price
	MarginFraction     float64 `yaml:"margin_fraction"`      // fraction of free margin one trade may reserve
	SecureProfitAmount float64 `yaml:"secure_profit_amount"` // bank a winner beyond this profit under stress
	TrailRR            float64 `yaml:"trail_rr"`             // R:R used for optimal targets
}

func DefaultPolicy() Policy {
	return Policy{
		MaxDrawdownPercent: 20,
		MaxSpreadPoints:    50,
		MaxATRPercent:      3.0,
		MarginFraction:     0.5,
		SecureProfitAmount: 100,
		TrailRR:            2.0,
	}
}

// Conditions carries the externally computed market readings the manager
// needs for volatility checks, stop advice and trailing sweeps. The
// engine refreshes them each cycle.
type Conditions struct {
	ATR       float64
	ADX       float64
	RSI       float64
	SwingHigh *float64
	SwingLow  *float64
}

// PolicyManager is a conservative local implementation of Manager. It
// has no platform access of its own: it works entirely from the market
// data, ledger and account collaborators it is given.
type PolicyManager struct {
	policy   Policy
	data     market.Data
	ledger   broker.Ledger
	accounts broker.Accounts
	gateway  broker.Gateway

	mu         sync.Mutex
	conditions map[string]Conditions
	trades     map[string]int     // executions per symbol
	riskDrift  map[string]float64 // cumulative |expected-realized| risk
}

var _ Manager = (*PolicyManager)(nil)

func NewPolicyManager(p Policy, data market.Data, ledger broker.Ledger, accounts broker.Accounts, gateway broker.Gateway) *PolicyManager {
	if p.MarginFraction <= 0 {
		p.MarginFraction = DefaultPolicy().MarginFraction
	}
	if p.TrailRR <= 0 {
		p.TrailRR = DefaultPolicy().TrailRR
	}
	return &PolicyManager{
		policy:     p,
		data:       data,
		ledger:     ledger,
		accounts:   accounts,
		gateway:    gateway,
		conditions: make(map[string]Conditions),
		trades:     make(map[string]int),
		riskDrift:  make(map[string]float64),
	}
}

// SetConditions refreshes the externally computed readings for a symbol.
func (m *PolicyManager) SetConditions(symbol string, c Conditions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions[symbol] = c
}

func (m *PolicyManager) conditionsFor(symbol string) Conditions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditions[symbol]
}

func (m *PolicyManager) limits(balance float64) (total, perSymbol int) {
	total, perSymbol = m.policy.MaxOpenTrades, m.policy.MaxPerSymbol
	recTotal, recPer := PositionLimits(balance)
	if total <= 0 {
		total = recTotal
	}
	if perSymbol <= 0 {
		perSymbol = recPer
	}
	return total, perSymbol
}

func (m *PolicyManager) AllowNewTrade(symbol, reason string) error {
	if !m.CanOpenNewTrades() {
		return fmt.Errorf("account risk level %s blocks new trades", m.RiskLevel())
	}
	if err := m.AcceptableSpread(symbol); err != nil {
		return err
	}
	return nil
}

func (m *PolicyManager) CheckExposureLimits(symbol string, lots float64) error {
	ctx := context.Background()
	acct, err := m.accounts.Account(ctx)
	if err != nil {
		return fmt.Errorf("exposure check: %w", err)
	}
	positions, err := m.ledger.Positions(ctx)
	if err != nil {
		return fmt.Errorf("exposure check: %w", err)
	}
	maxTotal, maxPer := m.limits(acct.Balance)

	total, perSymbol := 0, 0
	for _, p := range positions {
		total++
		if p.Symbol == symbol {
			perSymbol++
		}
	}
	if total >= maxTotal {
		return fmt.Errorf("open positions %d at limit %d", total, maxTotal)
	}
	if perSymbol >= maxPer {
		return fmt.Errorf("positions on %s %d at limit %d", symbol, perSymbol, maxPer)
	}
	return nil
}

func (m *PolicyManager) IsMarginSufficient(symbol string, lots float64) error {
	ctx := context.Background()
	sym, err := m.data.Symbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("margin check: %w", err)
	}
	acct, err := m.accounts.Account(ctx)
	if err != nil {
		return fmt.Errorf("margin check: %w", err)
	}
	required := sym.MarginPerLot * lots
	allowed := acct.FreeMargin * m.policy.MarginFraction
	if required > allowed {
		return fmt.Errorf("required margin %.2f exceeds %.2f (%.0f%% of free margin)",
			required, allowed, m.policy.MarginFraction*100)
	}
	return nil
}

func (m *PolicyManager) ValidateStopLossPlacement(symbol string, dir broker.Direction, entry, stop float64) error {
	if stop <= 0 {
		return fmt.Errorf("no stop loss set")
	}
	ctx := context.Background()
	sym, err := m.data.Symbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("stop check: %w", err)
	}
	if dir == broker.Long && stop >= entry {
		return fmt.Errorf("buy stop %.5f not below entry %.5f", stop, entry)
	}
	if dir == broker.Short && stop <= entry {
		return fmt.Errorf("sell stop %.5f not above entry %.5f", stop, entry)
	}
	if math.Abs(entry-stop) < sym.StopDistance() {
		return fmt.Errorf("stop within broker minimum distance (%.1f points)", float64(sym.StopsLevel))
	}
	return nil
}

func (m *PolicyManager) AcceptableVolatility(symbol string) error {
	if m.policy.MaxATRPercent <= 0 {
		return nil
	}
	ctx := context.Background()
	q, err := m.data.Quote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("volatility check: %w", err)
	}
	c := m.conditionsFor(symbol)
	if c.ATR <= 0 || q.Mid() <= 0 {
		return nil // no reading: don't block
	}
	atrPct := c.ATR / q.Mid() * 100
	if atrPct > m.policy.MaxATRPercent {
		return fmt.Errorf("ATR %.2f%% of price exceeds ceiling %.2f%%", atrPct, m.policy.MaxATRPercent)
	}
	return nil
}

func (m *PolicyManager) AcceptableSpread(symbol string) error {
	if m.policy.MaxSpreadPoints <= 0 {
		return nil
	}
	ctx := context.Background()
	sym, err := m.data.Symbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("spread check: %w", err)
	}
	q, err := m.data.Quote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("spread check: %w", err)
	}
	points := sym.PriceToPoints(q.Spread())
	if points > m.policy.MaxSpreadPoints {
		return fmt.Errorf("spread %.1f points exceeds limit %.1f", points, m.policy.MaxSpreadPoints)
	}
	return nil
}

func (m *PolicyManager) OptimalStopLoss(symbol string, dir broker.Direction, entry float64) float64 {
	ctx := context.Background()
	sym, err := m.data.Symbol(ctx, symbol)
	if err != nil {
		return 0
	}
	c := m.conditionsFor(symbol)
	swing := c.SwingLow
	if dir == broker.Short {
		swing = c.SwingHigh
	}
	return StopLoss(sym, dir, entry, c.ATR, swing)
}

func (m *PolicyManager) OptimalTakeProfit(symbol string, dir broker.Direction, entry, stop float64) float64 {
	ctx := context.Background()
	sym, err := m.data.Symbol(ctx, symbol)
	if err != nil {
		return 0
	}
	return TakeProfit(sym, dir, entry, stop, m.policy.TrailRR)
}

func (m *PolicyManager) RiskAdjustedSize(symbol string, baseLots float64) float64 {
	switch m.RiskLevel() {
	case LevelCritical:
		return 0
	case LevelHigh:
		return baseLots * 0.5
	case LevelModerate:
		return baseLots * 0.75
	case LevelLow:
		return baseLots * 0.9
	}
	return baseLots
}

func (m *PolicyManager) CanOpenNewTrades() bool {
	lvl := m.RiskLevel()
	return lvl != LevelCritical && lvl != LevelHigh
}

func (m *PolicyManager) RiskLevel() Level {
	acct, err := m.accounts.Account(context.Background())
	if err != nil {
		return LevelCritical // fail safe: unknown account state blocks growth
	}
	return AccountRiskLevel(acct.Balance, acct.Equity, m.policy.MaxDrawdownPercent)
}

func (m *PolicyManager) UpdatePerformanceMetrics(symbol string, riskDrift float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[symbol]++
	m.riskDrift[symbol] += math.Abs(riskDrift)
}

// RiskDrift reports the accumulated gap between planned and realized
// risk for a symbol, for diagnostics.
func (m *PolicyManager) RiskDrift(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.riskDrift[symbol]
}

// SecureProfit banks the biggest winner when the account is under
// stress and holding meaningful open profit.
func (m *PolicyManager) SecureProfit(ctx context.Context) error {
	lvl := m.RiskLevel()
	if lvl != LevelHigh && lvl != LevelCritical {
		return nil
	}
	positions, err := m.ledger.Positions(ctx)
	if err != nil {
		return fmt.Errorf("secure profit: %w", err)
	}
	var best *broker.Position
	for i := range positions {
		p := &positions[i]
		if p.Profit >= m.policy.SecureProfitAmount && (best == nil || p.Profit > best.Profit) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	if err := m.gateway.Close(ctx, best.Ticket); err != nil {
		return fmt.Errorf("secure profit close %s: %w", best.Ticket, err)
	}
	return nil
}

// UpdateTrailingStops runs the trailing rule over every open position
// and pushes improved stops through the gateway when it supports stop
// modification.
func (m *PolicyManager) UpdateTrailingStops(ctx context.Context) error {
	sm, ok := m.gateway.(broker.StopModifier)
	if !ok {
		return nil
	}
	positions, err := m.ledger.Positions(ctx)
	if err != nil {
		return fmt.Errorf("trailing sweep: %w", err)
	}
	for _, p := range positions {
		sym, err := m.data.Symbol(ctx, p.Symbol)
		if err != nil {
			continue
		}
		q, err := m.data.Quote(ctx, p.Symbol)
		if err != nil {
			continue
		}
		price := q.Bid
		if p.Direction == broker.Short {
			price = q.Ask
		}
		c := m.conditionsFor(p.Symbol)
		swing := c.SwingLow
		if p.Direction == broker.Short {
			swing = c.SwingHigh
		}
		next := TrailingStop(sym, p.Direction, p.OpenPrice, price, p.StopLoss, c.ATR, swing)
		if next == p.StopLoss {
			continue
		}
		if err := sm.ModifyStops(ctx, p.Ticket, next, p.TakeProfit); err != nil {
			// sweep continues; a vanished ticket is not a failure
			continue
		}
	}
	return nil
}

// MoveToBreakeven lifts stops to the entry price on positions that have
// moved at least minProfitPoints in their favor.
func (m *PolicyManager) MoveToBreakeven(ctx context.Context, minProfitPoints float64) error {
	sm, ok := m.gateway.(broker.StopModifier)
	if !ok {
		return nil
	}
	positions, err := m.ledger.Positions(ctx)
	if err != nil {
		return fmt.Errorf("breakeven sweep: %w", err)
	}
	for _, p := range positions {
		sym, err := m.data.Symbol(ctx, p.Symbol)
		if err != nil {
			continue
		}
		q, err := m.data.Quote(ctx, p.Symbol)
		if err != nil {
			continue
		}
		price := q.Bid
		if p.Direction == broker.Short {
			price = q.Ask
		}
		moved := p.Direction.Sign() * (price - p.OpenPrice)
		if sym.PriceToPoints(moved) < minProfitPoints {
			continue
		}
		// already at or beyond breakeven
		if p.StopLoss > 0 && p.Direction.Sign()*(p.StopLoss-p.OpenPrice) >= 0 {
			continue
		}
		be := sym.NormalizePrice(p.OpenPrice)
		if err := sm.ModifyStops(ctx, p.Ticket, be, p.TakeProfit); err != nil {
			continue
		}
	}
	return nil
}
