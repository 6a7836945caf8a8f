package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/pilot/broker"
	"github.com/quantfold/pilot/closer"
	"github.com/quantfold/pilot/config"
	"github.com/quantfold/pilot/engine"
	"github.com/quantfold/pilot/gate"
	"github.com/quantfold/pilot/internal/logx"
	"github.com/quantfold/pilot/internal/metrics"
	"github.com/quantfold/pilot/journal"
	"github.com/quantfold/pilot/risk"
	"github.com/quantfold/pilot/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted session from a config file",
	Long: `Run a trading session using settings from a configuration file.

The config file specifies the account, risk policy, journal backend and
a sequence of scripted steps. Each step carries a quote plus the
classified tier readings for one decision cycle.

Example:
  pilot run --config examples/configs/trend.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON), defaults to $PILOT_CONFIG")
}

func runRun(cmd *cobra.Command, args []string) error {
	path := runConfigPath
	if path == "" {
		path = os.Getenv("PILOT_CONFIG")
	}
	if path == "" {
		return fmt.Errorf("no config file: pass --config or set PILOT_CONFIG")
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog := logx.New(cfg.Log.Level, cfg.Log.File)
	defer closeLog()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Metrics.Listen).Msg("metrics endpoint down")
			}
		}()
	}

	var j journal.Journal
	switch cfg.Journal.Type {
	case "csv":
		j, err = journal.NewCSV(cfg.Journal.OrdersFile, cfg.Journal.ClosesFile, cfg.Journal.EquityFile)
	case "sqlite":
		j, err = journal.NewSQLite(cfg.Journal.DBPath)
	default:
		j = journal.Nop{}
	}
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	venue := sim.NewEngine(cfg.Session.Balance, cfg.SessionSymbols(), j)
	gw := broker.NewBreakerGateway(venue, broker.DefaultBreakerSettings())
	mgr := risk.NewPolicyManager(cfg.Risk, venue, venue, venue, gw)
	interval, err := cfg.State.ParseCloseInterval()
	if err != nil {
		return fmt.Errorf("close interval: %w", err)
	}
	state := risk.NewAccountRiskState(cfg.State.MarginBuffer, interval)

	eng := engine.New(
		cfg.EngineSettings(),
		venue, venue, venue,
		gate.NewExecutor(venue, venue, gw, mgr, state, log),
		closer.NewSelector(venue, gw, log),
		mgr, state, nil, log,
	)

	ctx := context.Background()
	clock := time.Now()

	log.Info().Str("config", path).Float64("balance", cfg.Session.Balance).
		Strs("symbols", cfg.Session.Symbols).Int("steps", len(cfg.Session.Steps)).
		Msg("session start")

	for i, step := range cfg.Session.Steps {
		delay, err := step.ParseDelay()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		clock = clock.Add(delay)

		if err := venue.UpdateQuote(step.Quote(clock)); err != nil {
			return fmt.Errorf("step %d: update quote: %w", i, err)
		}
		mgr.SetConditions(step.Symbol, risk.Conditions{
			ATR:       step.ATR,
			ADX:       step.ADX,
			RSI:       step.RSI,
			SwingHigh: step.SwingHigh,
			SwingLow:  step.SwingLow,
		})

		snap, err := step.Snapshot()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		rep := eng.Cycle(ctx, snap)

		metrics.CountDecision(rep.Action.String())
		switch {
		case rep.Fill != nil:
			metrics.CountOrder("filled")
		case rep.Action.Entry():
			metrics.CountOrder("rejected")
		}
		if rep.Close != nil && !rep.Close.Stale {
			metrics.CountClose(rep.Close.Strategy.String())
		}

		if acct, err := venue.Account(ctx); err == nil {
			metrics.SetEquity(acct.Equity)
		}
		metrics.SetRiskLevel(int(mgr.RiskLevel()))
	}

	acct, err := venue.Account(ctx)
	if err != nil {
		return fmt.Errorf("final account: %w", err)
	}
	open, err := venue.Positions(ctx)
	if err != nil {
		return fmt.Errorf("final positions: %w", err)
	}

	fmt.Println()
	fmt.Println("Session complete:")
	fmt.Printf("  Balance:     %.2f\n", acct.Balance)
	fmt.Printf("  Equity:      %.2f\n", acct.Equity)
	fmt.Printf("  Free Margin: %.2f\n", acct.FreeMargin)
	fmt.Printf("  Open:        %d position(s)\n", len(open))
	for _, p := range open {
		fmt.Printf("    %s %s %s %.2f lots @ %.5f (P/L %.2f)\n",
			p.Ticket, p.Symbol, p.Direction, p.Lots, p.OpenPrice, p.Profit)
	}
	return nil
}
