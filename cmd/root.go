package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"swapdash/pkg/types"
)

var (
	verbose    bool
	jsonOutput bool
	assumeYes  bool
)

var rootCmd = &cobra.Command{
	Use:   "swapdash",
	Short: "A wallet-side swap and payout console for EVM chains",
	Long: `swapdash quotes token swaps against a pricing service, checks and sets
ERC-20 allowances, and signs and submits the resulting transactions from a
local key. It also sends direct transfers, fiat-rail payouts and batch
disperses through the same run state machine.

Examples:
  swapdash quote 10 USDC to ETH
  swapdash swap 0.5 ETH to USDC
  swapdash transfer 25 USDC 0x1234...abcd
  swapdash payout 100 --clabe 002010077777777771
  swapdash disperse USDC --file recipients.csv
  swapdash dash`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
}

// configureLogging sends logs to stderr so stdout stays machine-readable
// with --json
func configureLogging() {
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if jsonOutput {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	return s
}

// withSpinner runs fn behind a spinner unless output is JSON
func withSpinner[T any](suffix string, fn func() (T, error)) (T, error) {
	if jsonOutput {
		return fn()
	}
	s := newSpinner(suffix)
	s.Start()
	defer s.Stop()
	return fn()
}

func printError(err error) {
	if verbose || types.KindOf(err) == types.KindUnknown {
		fmt.Printf("\nError: %v\n\n", err)
		return
	}
	fmt.Printf("\nError: %s\n\n", types.UserMessage(err))
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

// exitOn exits non-zero once the command has reported err
func exitOn(err error) {
	if err != nil {
		os.Exit(1)
	}
}
