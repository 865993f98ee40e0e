package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/config"
	"swapdash/pkg/history"
)

var (
	historyKindFilter string
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished runs",
	Long: `Show the journal of finished swaps, transfers, payouts and disperses.

Examples:
  swapdash history
  swapdash history --kind swap --limit 5
  swapdash history show 3f2a`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runHistoryList())
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its transactions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runHistoryShow(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.Flags().StringVar(&historyKindFilter, "kind", "", "Filter by kind (swap, transfer, payout, disperse)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most n runs (0 for all)")
}

func openHistory() (*history.Storage, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return history.NewStorage(cfg.History.Path)
}

func runHistoryList() error {
	store, err := openHistory()
	if err != nil {
		printError(err)
		return err
	}

	entries := store.List(historyKindFilter)
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if jsonOutput {
		printJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		color.Yellow("\nNo runs recorded yet.\n")
		fmt.Println("\nStart with:")
		color.Cyan("  swapdash swap <amount> <token> to <token>\n")
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                        RUN HISTORY")
	fmt.Println(strings.Repeat("=", 100))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tFINISHED\tKIND\tDETAILS\tOUTCOME\tDURATION")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID),
			e.Finished.Format("2006-01-02 15:04"),
			e.Kind,
			entryDetails(e),
			outcomeColor(e.Outcome),
			e.Duration().Round(time.Second))
	}

	w.Flush()
	fmt.Printf("\n%d of %d runs. Journal: %s\n\n", len(entries), store.Count(), color.HiBlackString(store.GetFilePath()))
	return nil
}

func runHistoryShow(id string) error {
	store, err := openHistory()
	if err != nil {
		printError(err)
		return err
	}

	e, err := store.Get(id)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOutput {
		printJSON(e)
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        RUN %s", shortID(e.ID))
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  ID:        %s\n", e.ID)
	fmt.Printf("  Kind:      %s\n", e.Kind)
	fmt.Printf("  Details:   %s\n", entryDetails(*e))
	fmt.Printf("  Started:   %s\n", e.Started.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration:  %s\n", e.Duration().Round(time.Millisecond))
	fmt.Printf("  Outcome:   %s\n", outcomeColor(e.Outcome))
	if e.Error != "" {
		fmt.Printf("  Error:     %s (%s)\n", color.RedString(e.Error), e.ErrorKind)
	}

	if len(e.Transactions) > 0 {
		fmt.Println("\n  Transactions:")
		for _, tx := range e.Transactions {
			fmt.Printf("    %-16s %s  %s\n", tx.IntentKind, color.CyanString(tx.Hash.Hex()), getColoredStatus(tx.Status))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
	return nil
}

func entryDetails(e history.Entry) string {
	switch {
	case e.BuyToken != "":
		return fmt.Sprintf("%s %s -> %s", e.Amount, e.SellToken, e.BuyToken)
	case e.Recipient != "":
		return fmt.Sprintf("%s %s -> %s", e.Amount, e.SellToken, truncateString(e.Recipient, 20))
	default:
		return fmt.Sprintf("%s %s", e.Amount, e.SellToken)
	}
}

func outcomeColor(outcome history.Outcome) string {
	switch outcome {
	case history.OutcomeCompleted:
		return color.GreenString(string(outcome))
	case history.OutcomeFailed:
		return color.RedString(string(outcome))
	default:
		return string(outcome)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
