package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/pkg/balance"
)

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show the wallet's balances of every known token",
	Long: `Read the native balance and every registered ERC-20 balance of the
configured wallet in parallel.

Examples:
  swapdash balances
  swapdash balances --json`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runBalances())
	},
}

func init() {
	rootCmd.AddCommand(balancesCmd)
}

func runBalances() error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	w := balance.NewWatcher(a.signer, a.account(), a.registry.List(a.cfg.ChainID), a.log)
	defer w.Close()

	snap, err := withSpinner("Reading balances...", func() (balance.Snapshot, error) {
		return w.Refresh(ctx)
	})
	if err != nil {
		printError(err)
		return err
	}

	if jsonOutput {
		out := make(map[string]string, len(snap.Balances))
		for _, b := range snap.Balances {
			out[b.Token.String()] = b.Display(0)
		}
		printJSON(map[string]interface{}{
			"account":  snap.Account.Hex(),
			"balances": out,
		})
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                       BALANCES")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Account: %s\n\n", color.CyanString(snap.Account.Hex()))
	for _, b := range snap.Balances {
		fmt.Printf("  %-10s %s\n", color.YellowString(b.Token.String()), b.Display(6))
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
	return nil
}
