package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/pkg/orchestrator"
	"swapdash/pkg/parser"
)

var (
	payoutCLABE  string
	disperseFile string
)

var transferCmd = &cobra.Command{
	Use:   "transfer <amount> <token> <recipient>",
	Short: "Send tokens directly to an address",
	Long: `Send the native asset or an ERC-20 token to a recipient address. Direct
transfers never need an allowance.

Examples:
  swapdash transfer 25 USDC 0x1234...abcd
  swapdash transfer 0.1 ETH 0x1234...abcd --yes`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runTransfer(args))
	},
}

var payoutCmd = &cobra.Command{
	Use:   "payout <amount>",
	Short: "Cash out stablecoins to a bank account",
	Long: `Send the configured payout token to the fiat-rail deposit address, which
settles the amount to the bank account identified by an 18-digit CLABE.

Examples:
  swapdash payout 100 --clabe 002010077777777771`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runPayout(args[0]))
	},
}

var disperseCmd = &cobra.Command{
	Use:   "disperse <token>",
	Short: "Send a token to many recipients in one transaction",
	Long: `Read "address,amount" lines and send every amount in a single transaction
through the disperse contract. ERC-20 tokens are approved for the summed
amount first when the allowance is insufficient.

Examples:
  swapdash disperse USDC --file recipients.csv
  cat recipients.csv | swapdash disperse ETH --file -`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runDisperse(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(payoutCmd)
	rootCmd.AddCommand(disperseCmd)

	payoutCmd.Flags().StringVar(&payoutCLABE, "clabe", "", "18-digit destination account number (REQUIRED)")
	_ = payoutCmd.MarkFlagRequired("clabe")

	disperseCmd.Flags().StringVarP(&disperseFile, "file", "f", "", "Recipients file, '-' for stdin (REQUIRED)")
	_ = disperseCmd.MarkFlagRequired("file")
}

func runTransfer(args []string) error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	token, err := a.token(args[1])
	if err != nil {
		printError(err)
		return err
	}

	o, err := a.orchestrator(nil)
	if err != nil {
		printError(err)
		return err
	}
	defer o.Close()

	ctx, cancel := signalContext()
	defer cancel()

	unsubscribe := followRun(o)
	err = o.Transfer(ctx, orchestrator.TransferRequest{
		Token:     token,
		Recipient: args[2],
		Amount:    args[0],
	})
	unsubscribe()
	return reportRun(o, err)
}

func runPayout(amount string) error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	o, err := a.orchestrator(nil)
	if err != nil {
		printError(err)
		return err
	}
	defer o.Close()

	ctx, cancel := signalContext()
	defer cancel()

	unsubscribe := followRun(o)
	err = o.Payout(ctx, amount, payoutCLABE)
	unsubscribe()
	return reportRun(o, err)
}

func runDisperse(symbol string) error {
	recipients, err := readRecipients(disperseFile)
	if err != nil {
		printError(err)
		return err
	}

	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	token, err := a.token(symbol)
	if err != nil {
		printError(err)
		return err
	}

	if !jsonOutput {
		fmt.Println("\n" + strings.Repeat("=", 70))
		color.Green("                        DISPERSE")
		fmt.Println(strings.Repeat("=", 70))
		for _, r := range recipients {
			fmt.Printf("  %s  %s %s\n", color.CyanString(r.Address.Hex()), r.Amount, token)
		}
		fmt.Println(strings.Repeat("=", 70))
	}

	o, err := a.orchestrator(nil)
	if err != nil {
		printError(err)
		return err
	}
	defer o.Close()

	ctx, cancel := signalContext()
	defer cancel()

	unsubscribe := followRun(o)
	err = o.Disperse(ctx, token, recipients)
	unsubscribe()
	return reportRun(o, err)
}

func readRecipients(path string) ([]parser.Recipient, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open recipients file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parser.ParseRecipients(r)
}
