package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the confirmation status of a transaction",
	Long: `Check whether a submitted transaction is pending, confirmed or reverted.

Examples:
  swapdash status 0x1234...abcd
  swapdash status 0x1234...abcd --watch
  swapdash status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runStatus(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the transaction resolves")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(hashArg string) error {
	hashArg = strings.TrimSpace(hashArg)
	if len(strings.TrimPrefix(hashArg, "0x")) != 64 {
		err := types.NewValidationError("invalid transaction hash: %q", hashArg)
		printError(err)
		return err
	}
	hash := common.HexToHash(hashArg)

	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !watchStatus {
		type result struct {
			status  types.ConfirmationStatus
			receipt *ethtypes.Receipt
		}
		res, err := withSpinner("Checking transaction status...", func() (result, error) {
			status, receipt, err := checkReceipt(ctx, a, hash)
			return result{status, receipt}, err
		})
		if err != nil {
			printError(err)
			return err
		}
		displayStatus(hash, res.status, res.receipt)
		return nil
	}

	if jsonOutput {
		err := errors.New("watch mode not supported with JSON output")
		printError(err)
		return err
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(hash.Hex()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		status, receipt, err := checkReceipt(ctx, a, hash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayStatus(hash, status, receipt)
			if status != types.ConfirmationPending {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func checkReceipt(ctx context.Context, a *app, hash common.Hash) (types.ConfirmationStatus, *ethtypes.Receipt, error) {
	receipt, err := a.signer.Receipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return types.ConfirmationPending, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return types.ConfirmationFailed, receipt, nil
	}
	return types.ConfirmationConfirmed, receipt, nil
}

func displayStatus(hash common.Hash, status types.ConfirmationStatus, receipt *ethtypes.Receipt) {
	if jsonOutput {
		out := map[string]interface{}{
			"hash":   hash.Hex(),
			"status": status,
		}
		if receipt != nil {
			out["gas_used"] = receipt.GasUsed
			if receipt.BlockNumber != nil {
				out["block"] = receipt.BlockNumber.String()
			}
		}
		printJSON(out)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Hash:      %s\n", color.CyanString(hash.Hex()))
	fmt.Printf("  Status:    %s\n", getColoredStatus(status))
	if receipt != nil {
		if receipt.BlockNumber != nil {
			fmt.Printf("  Block:     %s\n", receipt.BlockNumber)
		}
		fmt.Printf("  Gas Used:  %d\n", receipt.GasUsed)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status types.ConfirmationStatus) string {
	label := strings.ToUpper(string(status))

	switch status {
	case types.ConfirmationConfirmed:
		return color.GreenString(label)
	case types.ConfirmationPending:
		return color.YellowString(label)
	case types.ConfirmationFailed:
		return color.RedString(label)
	default:
		return label
	}
}
