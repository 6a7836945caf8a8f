package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "An automated trading agent with layered risk controls",
	Long: `Pilot is an automated trading agent written in Go.

It provides tools for:
  - Running scripted trading sessions against a simulated venue
  - Three-tier trend reading and action selection
  - Gated trade execution with margin and volatility checks
  - Prioritized position closing under account stress
  - Journaling orders, closes and equity to SQLite or CSV`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// a .env can supply PILOT_CONFIG and friends
		_ = godotenv.Load()
	})
}
