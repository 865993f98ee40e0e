package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/pkg/parser"
	"swapdash/pkg/quote"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <sell-token> to <buy-token>",
	Short: "Fetch an indicative quote without executing it",
	Long: `Fetch a quote for selling an exact amount of one token for another.

Examples:
  swapdash quote 10 USDC to ETH
  swapdash quote 0.5 ETH for USDT --json`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runQuote(args))
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <sell-token> to <buy-token>",
	Short: "Quote and execute a token swap",
	Long: `Quote a swap, set the ERC-20 allowance when it is insufficient, sign the
permit and submit the swap transaction.

Selling the native asset skips the allowance check entirely. Every
signature and transaction is confirmed on the terminal unless --yes is set.

Examples:
  swapdash swap 10 USDC to ETH
  swapdash swap 0.5 ETH to USDC --yes`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runSwap(args))
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(swapCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// fetchQuote parses a swap command and quotes it once
func fetchQuote(ctx context.Context, a *app, f *quote.Fetcher, args []string) (quote.Snapshot, error) {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return quote.Snapshot{}, types.NewValidationError("%s", err.Error())
	}
	if err := parser.ValidateSwapRequest(req); err != nil {
		return quote.Snapshot{}, err
	}

	sell, err := a.token(req.SourceToken)
	if err != nil {
		return quote.Snapshot{}, err
	}
	buy, err := a.token(req.DestToken)
	if err != nil {
		return quote.Snapshot{}, err
	}

	in := quote.Input{Sell: sell, Buy: buy, Amount: req.Amount, Taker: a.account()}
	return withSpinner("Fetching quote...", func() (quote.Snapshot, error) {
		return f.Fetch(ctx, in)
	})
}

func runQuote(args []string) error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	f := a.fetcher()
	defer f.Close()

	snap, err := fetchQuote(ctx, a, f, args)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOutput {
		printJSON(quoteOutput(snap))
		return nil
	}
	displayQuote(snap)
	return nil
}

func runSwap(args []string) error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	f := a.fetcher()
	defer f.Close()

	snap, err := fetchQuote(ctx, a, f, args)
	if err != nil {
		printError(err)
		return err
	}
	if jsonOutput {
		printJSON(quoteOutput(snap))
	} else {
		displayQuote(snap)
	}

	o, err := a.orchestrator(nil)
	if err != nil {
		printError(err)
		return err
	}
	defer o.Close()

	if !assumeYes && !jsonOutput {
		ok, err := confirmPrompt(ctx, "Proceed with swap?")
		if err != nil || !ok {
			fmt.Println("\nSwap cancelled.")
			return err
		}
	}

	unsubscribe := followRun(o)
	err = o.ExecuteSwap(ctx, snap.Quote)
	unsubscribe()
	return reportRun(o, err)
}

func displayQuote(snap quote.Snapshot) {
	q := snap.Quote

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Sell:              %s %s\n", tokens.FormatUnits(q.SellAmount, q.SellToken.Decimals, 0), color.YellowString(q.SellToken.String()))
	fmt.Printf("  Receive:           ~%s %s\n", snap.BuyDisplay, color.YellowString(q.BuyToken.String()))
	if rate, err := quote.Rate(q, 6); err == nil {
		fmt.Printf("  Rate:              1 %s = %s %s\n", q.SellToken, rate, q.BuyToken)
	}
	if q.Tx != nil {
		fmt.Printf("  Router:            %s\n", color.CyanString(q.Tx.To.Hex()))
	}
	if q.Permit != nil {
		fmt.Printf("  Permit:            %s\n", color.HiBlackString("signature required"))
	}
	if !q.Executable() {
		color.Red("\n  This quote has no executable transaction.")
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func quoteOutput(snap quote.Snapshot) map[string]interface{} {
	q := snap.Quote
	out := map[string]interface{}{
		"sell_token":  q.SellToken.String(),
		"sell_amount": tokens.FormatUnits(q.SellAmount, q.SellToken.Decimals, 0),
		"buy_token":   q.BuyToken.String(),
		"buy_amount":  snap.BuyDisplay,
		"executable":  q.Executable(),
		"permit":      q.Permit != nil,
	}
	if rate, err := quote.Rate(q, 6); err == nil {
		out["rate"] = rate
	}
	return out
}
