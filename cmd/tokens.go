package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/config"
	"swapdash/pkg/client"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

var (
	filterSymbol string
	remoteTokens bool
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List the tokens known on the configured chain",
	Long: `List the tokens swapdash can quote and send on the configured chain.

With --remote the list is extended by the 1Click token directory.

Examples:
  swapdash tokens
  swapdash tokens --symbol USD
  swapdash tokens --remote`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runListTokens())
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&remoteTokens, "remote", false, "Include tokens from the 1Click directory")
}

func runListTokens() error {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		return err
	}

	registry := tokens.Default()
	if remoteTokens {
		apiClient := client.NewOneClickClient(cfg.OneClick.JWTToken)
		remote, err := withSpinner("Fetching supported tokens...", func() ([]types.Token, error) {
			return apiClient.TokensForChain(cfg.ChainID)
		})
		if err != nil {
			printError(err)
			return err
		}
		registry = registry.With(remote...)
	}

	var filtered []types.Token
	for _, t := range registry.List(cfg.ChainID) {
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, t)
	}

	if jsonOutput {
		printJSON(filtered)
		return nil
	}
	displayTokens(cfg.ChainID, filtered)
	return nil
}

func displayTokens(chainID int64, list []types.Token) {
	if len(list) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     SUPPORTED TOKENS (chain %d)", chainID)
	fmt.Println(strings.Repeat("=", 70))

	for _, t := range list {
		address := t.Address.Hex()
		if t.IsNative() {
			address = "native"
		}
		fmt.Printf("  %-10s  %2d decimals  %s\n",
			color.YellowString(t.Symbol),
			t.Decimals,
			color.HiBlackString(address))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\nTotal: %d tokens\n\n", len(list))
}
