package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/pilot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display journal records from a SQLite database.

Subcommands:
  order  - Show an order by ticket
  close  - Show a close by ticket
  day    - List closes on a specific day

Examples:
  pilot journal order 01HV3...
  pilot journal close 01HV3...
  pilot journal day 2026-03-02`,
}

var journalOrderCmd = &cobra.Command{
	Use:   "order <ticket>",
	Short: "Show an order by ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrder,
}

var journalCloseCmd = &cobra.Command{
	Use:   "close <ticket>",
	Short: "Show a close by ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalClose,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List closes on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOrderCmd)
	journalCmd.AddCommand(journalCloseCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./pilot.db", "path to SQLite journal DB")
}

func runJournalOrder(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetOrder(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Order %s\n", rec.Ticket)
	fmt.Printf("  %s %s %.2f lots\n", rec.Direction, rec.Symbol, rec.Lots)
	fmt.Printf("  Requested: %.5f  Filled: %.5f  Slippage: %.5f\n",
		rec.RequestedPrice, rec.FillPrice, rec.Slippage())
	fmt.Printf("  Stop: %.5f  Target: %.5f\n", rec.StopLoss, rec.TakeProfit)
	fmt.Printf("  Reason: %s  Time: %s\n", rec.Reason, rec.Time.Format(time.RFC3339))
	return nil
}

func runJournalClose(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetClose(args[0])
	if err != nil {
		return err
	}

	printClose(rec)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", args[0])
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListClosesBetween(day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("No closes on %s\n", args[0])
		return nil
	}

	var total float64
	for _, rec := range recs {
		printClose(rec)
		total += rec.Profit
	}
	fmt.Printf("Total: %d close(s), P/L %.2f\n", len(recs), total)
	return nil
}

func printClose(rec journal.CloseRecord) {
	fmt.Printf("Close %s\n", rec.Ticket)
	fmt.Printf("  %s %s %.2f lots  %.5f -> %.5f\n",
		rec.Direction, rec.Symbol, rec.Lots, rec.OpenPrice, rec.ExitPrice)
	fmt.Printf("  P/L: %.2f  Reason: %s  Closed: %s\n",
		rec.Profit, rec.Reason, rec.CloseTime.Format(time.RFC3339))
}
