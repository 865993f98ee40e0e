package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"swapdash/config"
	"swapdash/pkg/chain"
	"swapdash/pkg/client"
	"swapdash/pkg/events"
	"swapdash/pkg/history"
	"swapdash/pkg/metrics"
	"swapdash/pkg/orchestrator"
	"swapdash/pkg/quote"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

var (
	stdinOnce sync.Once
	stdin     *bufio.Reader
)

func stdinReader() *bufio.Reader {
	stdinOnce.Do(func() {
		stdin = bufio.NewReader(os.Stdin)
	})
	return stdin
}

// app is the wiring shared by every command that talks to the chain
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *tokens.Registry
	signer   *chain.EVMSigner
	bus      *events.Bus
	history  *history.Storage
	metrics  *metrics.Recorder
	confirm  chain.ConfirmFunc
	onReset  func(orchestrator.Kind)
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logrus.StandardLogger()
	metrics.Register(log)

	signer, err := chain.Dial(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := history.NewStorage(cfg.History.Path)
	if err != nil {
		signer.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: tokens.Default(),
		signer:   signer,
		bus:      events.NewBus(),
		history:  store,
		metrics:  metrics.NewRecorder(),
		confirm:  confirmPrompt,
	}, nil
}

func (a *app) Close() {
	a.bus.Wait()
	a.signer.Close()
}

func (a *app) account() common.Address {
	addr, _ := a.signer.Account()
	return addr
}

func (a *app) token(symbol string) (types.Token, error) {
	t, err := a.registry.Lookup(a.cfg.ChainID, symbol)
	if err != nil {
		return types.Token{}, types.NewValidationError("Unknown token %s. Try: swapdash tokens", strings.ToUpper(symbol))
	}
	return t, nil
}

func (a *app) fetcher() *quote.Fetcher {
	pricer := client.NewPricingClient(a.cfg.Pricing.BaseURL, a.cfg.Pricing.APIKey, a.cfg.Pricing.Timeout)
	return quote.NewFetcher(pricer, quote.Options{
		ChainID:         a.cfg.ChainID,
		Debounce:        a.cfg.Quote.Debounce,
		DisplayDecimals: a.cfg.Quote.DisplayDecimals,
		Logger:          a.log,
		Metrics:         a.metrics,
	})
}

// orchestrator builds the run state machine; quotes may be nil for
// one-shot commands where the held quote cannot change underneath the run
func (a *app) orchestrator(quotes orchestrator.QuoteSource) (*orchestrator.Orchestrator, error) {
	opts := orchestrator.Options{
		Spender:    common.HexToAddress(a.cfg.Pricing.Spender),
		ResetDelay: a.cfg.Swap.ResetDelay,
		OnReset:    a.onReset,
		Quotes:     quotes,
		History:    a.history,
		Metrics:    a.metrics,
		Logger:     a.log,
	}

	if a.cfg.Disperse.Contract != "" {
		if !common.IsHexAddress(a.cfg.Disperse.Contract) {
			return nil, fmt.Errorf("invalid disperse.contract: %q", a.cfg.Disperse.Contract)
		}
		opts.DisperseContract = common.HexToAddress(a.cfg.Disperse.Contract)
	}
	if a.cfg.Payout.DepositAddress != "" {
		if !common.IsHexAddress(a.cfg.Payout.DepositAddress) {
			return nil, fmt.Errorf("invalid payout.deposit_address: %q", a.cfg.Payout.DepositAddress)
		}
		opts.PayoutDeposit = common.HexToAddress(a.cfg.Payout.DepositAddress)
		token, err := a.token(a.cfg.Payout.Token)
		if err != nil {
			return nil, err
		}
		opts.PayoutToken = token
	}

	collab := chain.NewConfirming(a.signer, a.confirm)
	return orchestrator.New(collab, a.bus, opts), nil
}

// confirmPrompt asks on the terminal; --yes and JSON output answer yes
func confirmPrompt(ctx context.Context, prompt string) (bool, error) {
	if assumeYes || jsonOutput {
		return true, nil
	}

	answer := make(chan string, 1)
	go func() {
		fmt.Print(color.YellowString("\n%s (y/N): ", prompt))
		line, err := stdinReader().ReadString('\n')
		if err != nil {
			answer <- ""
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		line = strings.TrimSpace(strings.ToLower(line))
		return line == "y" || line == "yes", nil
	}
}

// followRun prints phase changes of the current run until unsubscribed
func followRun(o *orchestrator.Orchestrator) func() {
	if jsonOutput {
		return func() {}
	}

	var last orchestrator.Phase
	return o.OnStatus(func(s orchestrator.Status) {
		if s.Phase == last {
			return
		}
		last = s.Phase

		switch s.Phase {
		case orchestrator.PhaseEvaluating:
			fmt.Println(color.HiBlackString("  Checking allowance..."))
		case orchestrator.PhaseApprovingAwaitingSignature:
			fmt.Println(color.YellowString("  Approval needed. Waiting for signature..."))
		case orchestrator.PhaseApprovingAwaitingConfirmation:
			fmt.Printf("  Approval sent %s, waiting for confirmation...\n", recordHash(s))
		case orchestrator.PhaseAwaitingSignature:
			fmt.Println(color.YellowString("  Waiting for signature..."))
		case orchestrator.PhaseAwaitingConfirmation:
			fmt.Printf("  Transaction sent %s, waiting for confirmation...\n", recordHash(s))
		}
	})
}

func recordHash(s orchestrator.Status) string {
	if s.Record == nil {
		return ""
	}
	return color.CyanString(s.Record.Hash.Hex())
}

// reportRun prints the terminal status of a run and returns its error
func reportRun(o *orchestrator.Orchestrator, err error) error {
	s := o.Status()
	if jsonOutput {
		printJSON(runOutput(s))
		return err
	}
	if err != nil {
		printError(err)
		return err
	}
	printSuccess(s.Message)
	return nil
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func runOutput(s orchestrator.Status) map[string]interface{} {
	out := map[string]interface{}{
		"run_id":    s.RunID,
		"kind":      s.Kind,
		"phase":     s.Phase,
		"approval":  s.Approval,
		"execution": s.Execution,
	}
	if s.Err != nil {
		out["error_kind"] = types.KindOf(s.Err).String()
		out["error"] = types.UserMessage(s.Err)
	} else {
		out["message"] = s.Message
	}
	return out
}
