package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swapdash/pkg/chain"
	"swapdash/pkg/history"
	"swapdash/pkg/parser"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

var errStaleQuote = errors.New("quote no longer matches the current input")

// ExecuteSwap runs the held quote: approval when the sell token is an
// ERC-20 with insufficient allowance, then the permit signature and the swap.
// It blocks until the run reaches a terminal state.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, q *types.Quote) error {
	return o.start(ctx, KindSwap, func(owner common.Address) (*runPlan, error) {
		if q == nil {
			return nil, types.NewValidationError("Get a quote first.")
		}
		if q.SellToken.IsZero() || q.BuyToken.IsZero() {
			return nil, types.NewValidationError("Select both tokens.")
		}
		if q.SellAmount == nil || q.SellAmount.Sign() <= 0 {
			return nil, types.NewValidationError("Amount must be greater than 0.")
		}
		if !q.Executable() {
			return nil, types.NewQuoteError("This quote cannot be executed. Please refresh it.", nil)
		}
		if q.Taker != owner {
			return nil, types.NewQuoteError("This quote was requested for a different account. Please refresh it.", nil)
		}

		stale := func() error {
			if o.opts.Quotes != nil && !o.opts.Quotes.IsCurrent(q) {
				return types.NewQuoteError("The quote is out of date. Please review the new quote and try again.", errStaleQuote)
			}
			return nil
		}
		if err := stale(); err != nil {
			return nil, err
		}

		p := &runPlan{
			kind:  KindSwap,
			check: stale,
			success: fmt.Sprintf("Swapped %s %s for %s %s.",
				tokens.FormatUnits(q.SellAmount, q.SellToken.Decimals, 0), q.SellToken,
				tokens.FormatUnits(q.BuyAmount, q.BuyToken.Decimals, 0), q.BuyToken),
			entry: history.Entry{
				SellToken: q.SellToken.String(),
				BuyToken:  q.BuyToken.String(),
				Amount:    tokens.FormatUnits(q.SellAmount, q.SellToken.Decimals, 0),
			},
		}
		if !q.SellToken.IsNative() {
			p.approval = &approvalPhase{
				token:   q.SellToken,
				spender: o.opts.Spender,
				amount:  q.SellAmount,
			}
		}
		p.build = func(ctx context.Context) (types.TransactionIntent, error) {
			return o.buildSwap(ctx, q, stale)
		}
		return p, nil
	})
}

func (o *Orchestrator) buildSwap(ctx context.Context, q *types.Quote, stale func() error) (types.TransactionIntent, error) {
	if err := stale(); err != nil {
		return types.TransactionIntent{}, err
	}

	data := append([]byte(nil), q.Tx.Data...)
	value := q.Tx.Value
	if q.SellToken.IsNative() {
		value = q.SellAmount
	} else if q.Permit != nil {
		sig, err := o.chain.SignTypedData(ctx, *q.Permit)
		if err != nil {
			return types.TransactionIntent{}, fmt.Errorf("sign permit: %w", err)
		}
		data = chain.AppendSignature(data, sig)
	}
	if value == nil {
		value = new(big.Int)
	}

	return types.TransactionIntent{
		Kind:     types.IntentSwap,
		Target:   q.Tx.To,
		CallData: data,
		Value:    value,
		Gas:      q.Tx.Gas,
		GasPrice: q.Tx.GasPrice,
	}, nil
}

// TransferRequest is a direct single-token transfer
type TransferRequest struct {
	Token     types.Token
	Recipient string
	Amount    string
}

// Transfer sends tokens directly to a recipient; there is no approval phase
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) error {
	return o.start(ctx, KindTransfer, func(common.Address) (*runPlan, error) {
		if req.Token.IsZero() {
			return nil, types.NewValidationError("Select a token.")
		}
		amount, err := parseAmount(req.Token, req.Amount)
		if err != nil {
			return nil, err
		}
		recipient, err := parser.ParseAddress(req.Recipient)
		if err != nil {
			return nil, err
		}

		display := tokens.FormatUnits(amount, req.Token.Decimals, 0)
		return &runPlan{
			kind:    KindTransfer,
			build:   transferBuilder(req.Token, recipient, amount),
			success: fmt.Sprintf("Sent %s %s to %s.", display, req.Token, recipient.Hex()),
			entry: history.Entry{
				SellToken: req.Token.String(),
				Amount:    display,
				Recipient: recipient.Hex(),
			},
		}, nil
	})
}

// Payout sends the configured stablecoin to the fiat-rail deposit address
// for the given 18-digit account number
func (o *Orchestrator) Payout(ctx context.Context, amount, clabe string) error {
	return o.start(ctx, KindPayout, func(common.Address) (*runPlan, error) {
		clabe = strings.TrimSpace(clabe)
		if err := parser.ValidateCLABE(clabe); err != nil {
			return nil, err
		}
		if o.opts.PayoutToken.IsZero() || o.opts.PayoutDeposit == (common.Address{}) {
			return nil, types.NewValidationError("Payouts are not configured.")
		}
		units, err := parseAmount(o.opts.PayoutToken, amount)
		if err != nil {
			return nil, err
		}

		display := tokens.FormatUnits(units, o.opts.PayoutToken.Decimals, 0)
		return &runPlan{
			kind:    KindPayout,
			build:   transferBuilder(o.opts.PayoutToken, o.opts.PayoutDeposit, units),
			success: fmt.Sprintf("Payout of %s %s sent to account ending %s.", display, o.opts.PayoutToken, clabe[len(clabe)-4:]),
			entry: history.Entry{
				SellToken: o.opts.PayoutToken.String(),
				Amount:    display,
				Recipient: clabe,
			},
		}, nil
	})
}

func transferBuilder(token types.Token, recipient common.Address, amount *big.Int) func(context.Context) (types.TransactionIntent, error) {
	return func(context.Context) (types.TransactionIntent, error) {
		if token.IsNative() {
			return types.TransactionIntent{
				Kind:   types.IntentDirectTransfer,
				Target: recipient,
				Value:  amount,
			}, nil
		}

		data, err := chain.PackTransfer(recipient, amount)
		if err != nil {
			return types.TransactionIntent{}, fmt.Errorf("failed to pack transfer data: %w", err)
		}
		return types.TransactionIntent{
			Kind:     types.IntentDirectTransfer,
			Target:   token.Address,
			CallData: data,
			Value:    new(big.Int),
		}, nil
	}
}

// Disperse sends token to many recipients in one transaction through the
// disperse contract, approving the summed amount first for ERC-20 tokens
func (o *Orchestrator) Disperse(ctx context.Context, token types.Token, recipients []parser.Recipient) error {
	return o.start(ctx, KindDisperse, func(common.Address) (*runPlan, error) {
		if token.IsZero() {
			return nil, types.NewValidationError("Select a token.")
		}
		if len(recipients) == 0 {
			return nil, types.NewValidationError("Add at least one recipient.")
		}
		if o.opts.DisperseContract == (common.Address{}) {
			return nil, types.NewValidationError("Disperse contract is not configured.")
		}

		addresses := make([]common.Address, len(recipients))
		values := make([]*big.Int, len(recipients))
		total := new(big.Int)
		for i, rcpt := range recipients {
			if rcpt.Address == (common.Address{}) {
				return nil, types.NewValidationError("recipient %d: zero address is not a valid recipient", i+1)
			}
			amount, err := parseAmount(token, rcpt.Amount)
			if err != nil {
				return nil, types.NewValidationError("recipient %d: %s", i+1, types.UserMessage(err))
			}
			addresses[i] = rcpt.Address
			values[i] = amount
			total.Add(total, amount)
		}

		display := tokens.FormatUnits(total, token.Decimals, 0)
		p := &runPlan{
			kind:    KindDisperse,
			success: fmt.Sprintf("Dispersed %s %s to %d recipients.", display, token, len(recipients)),
			entry: history.Entry{
				SellToken: token.String(),
				Amount:    display,
				Recipient: fmt.Sprintf("%d recipients", len(recipients)),
			},
		}

		if token.IsNative() {
			p.build = func(context.Context) (types.TransactionIntent, error) {
				data, err := chain.PackDisperseEther(addresses, values)
				if err != nil {
					return types.TransactionIntent{}, fmt.Errorf("failed to pack disperse data: %w", err)
				}
				return types.TransactionIntent{
					Kind:     types.IntentDisperse,
					Target:   o.opts.DisperseContract,
					CallData: data,
					Value:    total,
				}, nil
			}
			return p, nil
		}

		p.approval = &approvalPhase{
			token:   token,
			spender: o.opts.DisperseContract,
			amount:  total,
		}
		p.build = func(context.Context) (types.TransactionIntent, error) {
			data, err := chain.PackDisperseToken(token.Address, addresses, values)
			if err != nil {
				return types.TransactionIntent{}, fmt.Errorf("failed to pack disperse data: %w", err)
			}
			return types.TransactionIntent{
				Kind:     types.IntentDisperse,
				Target:   o.opts.DisperseContract,
				CallData: data,
				Value:    new(big.Int),
			}, nil
		}
		return p, nil
	})
}

func parseAmount(token types.Token, amount string) (*big.Int, error) {
	units, err := tokens.ParseUnits(amount, token.Decimals)
	switch {
	case err == nil:
		return units, nil
	case errors.Is(err, tokens.ErrEmptyAmount):
		return nil, types.NewValidationError("Enter an amount.")
	case errors.Is(err, tokens.ErrNonPositiveAmount):
		return nil, types.NewValidationError("Amount must be greater than 0.")
	case errors.Is(err, tokens.ErrTooManyDecimals):
		return nil, types.NewValidationError("%s supports at most %d decimals.", token, token.Decimals)
	default:
		return nil, types.NewValidationError("Enter a valid amount.")
	}
}
