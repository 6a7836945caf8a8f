package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/engine"
	"github.com/quantfold/pilot/gate"
	"github.com/quantfold/pilot/market"
	"github.com/quantfold/pilot/risk"
)

// Config is the complete agent configuration.
type Config struct {
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Risk    risk.Policy   `json:"risk" yaml:"risk"`
	State   StateConfig   `json:"state" yaml:"state"`
	Session SessionConfig `json:"session" yaml:"session"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// EngineConfig mirrors engine.Config with file tags.
type EngineConfig struct {
	RiskPercent    float64 `json:"risk_percent" yaml:"risk_percent"`
	RewardRatio    float64 `json:"reward_ratio" yaml:"reward_ratio"`
	MaxDailyTrades int     `json:"max_daily_trades" yaml:"max_daily_trades"`
	MaxOpenTrades  int     `json:"max_open_trades,omitempty" yaml:"max_open_trades,omitempty"`
	MaxPerSymbol   int     `json:"max_per_symbol,omitempty" yaml:"max_per_symbol,omitempty"`
}

// StateConfig tunes the account risk state.
type StateConfig struct {
	MarginBuffer  float64 `json:"margin_buffer" yaml:"margin_buffer"`
	CloseInterval string  `json:"close_interval,omitempty" yaml:"close_interval,omitempty"` // e.g. "30s"
}

// ParseCloseInterval converts the close throttle to a duration. Empty
// means the package default.
func (s StateConfig) ParseCloseInterval() (time.Duration, error) {
	if s.CloseInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(s.CloseInterval)
}

// SessionConfig drives a scripted simulation session.
type SessionConfig struct {
	Balance float64  `json:"balance" yaml:"balance"`
	Symbols []string `json:"symbols" yaml:"symbols"`
	Steps   []Step   `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Step is one scripted cycle: a quote plus the classified tier readings
// and indicator values the engine would otherwise compute upstream.
type Step struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Bid    float64 `json:"bid" yaml:"bid"`
	Ask    float64 `json:"ask" yaml:"ask"`
	Delay  string  `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g. "1h", "30m", "1s"

	Outer TierConfig `json:"outer" yaml:"outer"`
	Mid   TierConfig `json:"mid" yaml:"mid"`
	Inner TierConfig `json:"inner" yaml:"inner"`

	ATR       float64  `json:"atr,omitempty" yaml:"atr,omitempty"`
	ADX       float64  `json:"adx,omitempty" yaml:"adx,omitempty"`
	RSI       float64  `json:"rsi,omitempty" yaml:"rsi,omitempty"`
	SwingHigh *float64 `json:"swing_high,omitempty" yaml:"swing_high,omitempty"`
	SwingLow  *float64 `json:"swing_low,omitempty" yaml:"swing_low,omitempty"`

	Signal *SignalConfig `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// TierConfig is one tier's reading in text form.
type TierConfig struct {
	State string `json:"state" yaml:"state"`
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"` // "long" or "short"
}

// SignalConfig is an externally supplied entry signal.
type SignalConfig struct {
	Entry      float64 `json:"entry" yaml:"entry"`
	StopLoss   float64 `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
	Expiry     string  `json:"expiry,omitempty" yaml:"expiry,omitempty"` // RFC 3339
}

// JournalConfig selects the journal backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	OrdersFile string `json:"orders_file,omitempty" yaml:"orders_file,omitempty"`
	ClosesFile string `json:"closes_file,omitempty" yaml:"closes_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LogConfig tunes the log sink.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"` // rotating file sink when set
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"` // e.g. ":9090", empty disables
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, YAML for .yaml/.yml paths and
// indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Engine.RiskPercent <= 0 || c.Engine.RiskPercent > 100 {
		return fmt.Errorf("engine.risk_percent must be in (0, 100]")
	}
	if c.Engine.RewardRatio <= 0 {
		return fmt.Errorf("engine.reward_ratio must be positive")
	}
	if c.Session.Balance <= 0 {
		return fmt.Errorf("session.balance must be positive")
	}
	if len(c.Session.Symbols) == 0 {
		return fmt.Errorf("session.symbols is required")
	}
	for _, s := range c.Session.Symbols {
		if _, ok := market.Symbols[s]; !ok {
			return fmt.Errorf("unknown symbol: %s", s)
		}
	}
	for i, step := range c.Session.Steps {
		if _, ok := market.Symbols[step.Symbol]; !ok {
			return fmt.Errorf("steps[%d]: unknown symbol %s", i, step.Symbol)
		}
		if step.Ask < step.Bid {
			return fmt.Errorf("steps[%d]: ask below bid", i)
		}
		if _, err := step.Reading(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.OrdersFile == "" || c.Journal.ClosesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal orders_file, closes_file and equity_file required for csv")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// EngineSettings converts to the engine's runtime form.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		RiskPercent:    c.Engine.RiskPercent,
		RewardRatio:    c.Engine.RewardRatio,
		MaxDailyTrades: c.Engine.MaxDailyTrades,
		MaxOpenTrades:  c.Engine.MaxOpenTrades,
		MaxPerSymbol:   c.Engine.MaxPerSymbol,
	}
}

// SessionSymbols resolves the configured symbol names.
func (c *Config) SessionSymbols() map[string]market.Symbol {
	out := make(map[string]market.Symbol, len(c.Session.Symbols))
	for _, name := range c.Session.Symbols {
		out[name] = market.Symbols[name]
	}
	return out
}

// ParseDelay converts the step delay to a duration.
func (s Step) ParseDelay() (time.Duration, error) {
	if s.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Delay)
}

// Quote returns the step's market quote stamped with at.
func (s Step) Quote(at time.Time) market.Quote {
	return market.Quote{Symbol: s.Symbol, Bid: s.Bid, Ask: s.Ask, Time: at}
}

// Reading parses the step's tier readings.
func (s Step) Reading() (engine.Reading, error) {
	var r engine.Reading
	var err error
	if r.Outer, err = s.Outer.reading(); err != nil {
		return r, fmt.Errorf("outer: %w", err)
	}
	if r.Mid, err = s.Mid.reading(); err != nil {
		return r, fmt.Errorf("mid: %w", err)
	}
	if r.Inner, err = s.Inner.reading(); err != nil {
		return r, fmt.Errorf("inner: %w", err)
	}
	return r, nil
}

func (t TierConfig) reading() (engine.TierReading, error) {
	state := t.State
	if state == "" {
		state = "THINKING"
	}
	g, err := engine.ParseGapState(strings.ToUpper(state))
	if err != nil {
		return engine.TierReading{}, err
	}
	dir := broker.Long
	switch strings.ToLower(t.Dir) {
	case "", "long", "buy":
	case "short", "sell":
		dir = broker.Short
	default:
		return engine.TierReading{}, fmt.Errorf("unknown direction %q", t.Dir)
	}
	return engine.TierReading{State: g, Dir: dir}, nil
}

// Snapshot converts the step into the engine's per-cycle input.
func (s Step) Snapshot() (engine.Snapshot, error) {
	reading, err := s.Reading()
	if err != nil {
		return engine.Snapshot{}, err
	}
	snap := engine.Snapshot{
		Symbol:    s.Symbol,
		Reading:   reading,
		ATR:       s.ATR,
		ADX:       s.ADX,
		RSI:       s.RSI,
		SwingHigh: s.SwingHigh,
		SwingLow:  s.SwingLow,
	}
	if s.Signal != nil {
		sig := &gate.Signal{
			EntryPrice: s.Signal.Entry,
			StopLoss:   s.Signal.StopLoss,
			TakeProfit: s.Signal.TakeProfit,
			Valid:      true,
		}
		if s.Signal.Expiry != "" {
			exp, err := time.Parse(time.RFC3339, s.Signal.Expiry)
			if err != nil {
				return engine.Snapshot{}, fmt.Errorf("signal expiry: %w", err)
			}
			sig.Expiry = exp
		}
		snap.Signal = sig
	}
	return snap, nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RiskPercent:    1.0,
			RewardRatio:    2.0,
			MaxDailyTrades: 10,
		},
		Risk: risk.DefaultPolicy(),
		State: StateConfig{
			MarginBuffer:  0.5,
			CloseInterval: "30s",
		},
		Session: SessionConfig{
			Balance: 10000,
			Symbols: []string{"EURUSD"},
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./pilot.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
