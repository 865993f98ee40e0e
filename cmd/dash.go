package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapdash/pkg/balance"
	"swapdash/pkg/metrics"
	"swapdash/pkg/orchestrator"
	"swapdash/pkg/quote"
	"swapdash/pkg/types"
)

const dashHelp = `  sell <token>                   set the token to sell
  buy <token>                    set the token to buy
  amount <value>                 set the sell amount
  clear                          clear the amount and the held quote
  swap                           execute the held quote
  send <amount> <token> <addr>   direct transfer
  payout <amount> <clabe>        fiat-rail payout
  balances                       re-read balances
  status                         show the run status
  help                           show this list
  quit                           leave the session
`

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Interactive swap console with live quotes and balances",
	Long: `Start an interactive session. Editing the sell token, buy token or
amount refreshes the quote after a short quiet period; only the quote for
the latest input is ever shown. Balances are re-read after every run that
moves funds.

Commands inside the session:
` + dashHelp + `
Examples:
  swapdash dash
  swapdash dash --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOn(runDash())
	},
}

func init() {
	rootCmd.AddCommand(dashCmd)
}

// dashSession holds the live state of one interactive session
type dashSession struct {
	app     *app
	fetcher *quote.Fetcher
	orch    *orchestrator.Orchestrator
	watcher *balance.Watcher
	input   quote.Input
}

func runDash() error {
	a, err := newApp()
	if err != nil {
		printError(err)
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	lines := readLines(stdinReader())
	a.confirm = linePrompt(lines)

	var srv *metrics.Server
	if a.cfg.Metrics.Addr != "" {
		srv = metrics.StartServer(a.cfg.Metrics.Addr, a.log)
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Stop(stopCtx)
		}()
	}

	f := a.fetcher()
	defer f.Close()

	a.onReset = func(kind orchestrator.Kind) {
		if kind == orchestrator.KindSwap {
			f.ClearAmount()
		}
	}
	o, err := a.orchestrator(f)
	if err != nil {
		printError(err)
		return err
	}
	defer o.Close()

	w := balance.NewWatcher(a.signer, a.account(), a.registry.List(a.cfg.ChainID), a.log)
	w.Start(a.bus)
	defer w.Close()

	s := &dashSession{
		app:     a,
		fetcher: f,
		orch:    o,
		watcher: w,
		input:   quote.Input{Taker: a.account()},
	}

	unsubscribeQuotes := f.OnUpdate(s.showQuote)
	defer unsubscribeQuotes()
	unsubscribeRun := followRun(o)
	defer unsubscribeRun()
	w.OnUpdate(func(snap balance.Snapshot) {
		showBalances(snap)
	})

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAPDASH")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Account:  %s\n", color.CyanString(a.account().Hex()))
	fmt.Printf("  Chain:    %d\n", a.cfg.ChainID)
	if srv != nil {
		fmt.Printf("  Metrics:  http://%s/metrics\n", a.cfg.Metrics.Addr)
	}
	color.Yellow("\n  Type 'help' for commands, 'quit' or Ctrl+C to leave.\n")
	fmt.Println(strings.Repeat("=", 70))

	if _, err := w.Refresh(ctx); err != nil {
		color.Red("Could not read balances: %v", err)
	}

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one session command; it reports whether the session ends
func (s *dashSession) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help":
		fmt.Print(dashHelp)
	case "sell", "buy":
		if len(fields) != 2 {
			color.Red("usage: %s <token>", fields[0])
			return false
		}
		token, err := s.app.token(fields[1])
		if err != nil {
			printError(err)
			return false
		}
		if strings.EqualFold(fields[0], "sell") {
			s.input.Sell = token
		} else {
			s.input.Buy = token
		}
		s.fetcher.SetInput(s.input)
	case "amount":
		if len(fields) != 2 {
			color.Red("usage: amount <value>")
			return false
		}
		s.input.Amount = fields[1]
		s.fetcher.SetInput(s.input)
	case "clear":
		s.input.Amount = ""
		s.fetcher.ClearAmount()
	case "swap":
		s.finish(s.orch.ExecuteSwap(ctx, s.fetcher.Current().Quote))
	case "send":
		if len(fields) != 4 {
			color.Red("usage: send <amount> <token> <address>")
			return false
		}
		token, err := s.app.token(fields[2])
		if err != nil {
			printError(err)
			return false
		}
		s.finish(s.orch.Transfer(ctx, orchestrator.TransferRequest{
			Token:     token,
			Recipient: fields[3],
			Amount:    fields[1],
		}))
	case "payout":
		if len(fields) != 3 {
			color.Red("usage: payout <amount> <clabe>")
			return false
		}
		s.finish(s.orch.Payout(ctx, fields[1], fields[2]))
	case "balances":
		if _, err := s.watcher.Refresh(ctx); err != nil {
			printError(err)
		}
	case "status":
		showRunStatus(s.orch.Status())
	default:
		color.Red("unknown command %q, type 'help'", fields[0])
	}
	return false
}

func (s *dashSession) finish(err error) {
	if errors.Is(err, orchestrator.ErrRunInProgress) {
		color.Yellow("A run is already in progress.")
		return
	}
	_ = reportRun(s.orch, err)

	if err == nil && s.orch.Status().Kind == orchestrator.KindSwap {
		s.input.Amount = ""
	}
}

func (s *dashSession) showQuote(snap quote.Snapshot) {
	switch {
	case snap.Loading:
		fmt.Println(color.HiBlackString("  quoting %s %s -> %s...", snap.Input.Amount, snap.Input.Sell, snap.Input.Buy))
	case snap.Err != nil:
		fmt.Println(color.RedString("  %s", quoteErrorText(snap.Err)))
	case snap.Quote != nil:
		rate, _ := quote.Rate(snap.Quote, 6)
		fmt.Printf("  %s %s -> %s %s  (1 %s = %s %s)\n",
			snap.Input.Amount, snap.Quote.SellToken,
			color.GreenString(snap.BuyDisplay), snap.Quote.BuyToken,
			snap.Quote.SellToken, rate, snap.Quote.BuyToken)
	}
}

func quoteErrorText(err error) string {
	var upstream *quote.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", types.UserMessage(err), upstream.StatusCode)
	}
	return types.UserMessage(err)
}

func showBalances(snap balance.Snapshot) {
	fmt.Println(color.CyanString("  balances @ %s", snap.At.Format("15:04:05")))
	for _, b := range snap.Balances {
		if b.Amount.Sign() == 0 {
			continue
		}
		fmt.Printf("    %-8s %s\n", b.Token, b.Display(6))
	}
}

func showRunStatus(s orchestrator.Status) {
	fmt.Printf("  phase=%s approval=%s execution=%s", s.Phase, s.Approval, s.Execution)
	if s.Kind != "" {
		fmt.Printf(" kind=%s", s.Kind)
	}
	fmt.Println()
	if s.Message != "" {
		fmt.Printf("  %s\n", color.GreenString(s.Message))
	}
	if s.Err != nil {
		fmt.Printf("  %s\n", color.RedString(types.UserMessage(s.Err)))
	}
}

// readLines is the single consumer of r for the session
func readLines(r *bufio.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := r.ReadString('\n')
			if line != "" || err == nil {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					color.Red("stdin: %v", err)
				}
				return
			}
		}
	}()
	return lines
}

// linePrompt answers confirmations from the session's input lines
func linePrompt(lines <-chan string) func(ctx context.Context, prompt string) (bool, error) {
	return func(ctx context.Context, prompt string) (bool, error) {
		if assumeYes {
			return true, nil
		}
		fmt.Print(color.YellowString("\n%s (y/N): ", prompt))
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return false, nil
			}
			line = strings.TrimSpace(strings.ToLower(line))
			return line == "y" || line == "yes", nil
		}
	}
}
