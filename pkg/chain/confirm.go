package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ConfirmFunc asks the wallet holder to approve a request
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirming gates signing and submission behind a confirmation prompt.
// A declined prompt surfaces as ErrUserRejected.
type Confirming struct {
	Collaborator
	Confirm ConfirmFunc
}

// NewConfirming wraps inner with a confirmation prompt
func NewConfirming(inner Collaborator, confirm ConfirmFunc) *Confirming {
	return &Confirming{Collaborator: inner, Confirm: confirm}
}

// SignTypedData prompts before signing
func (c *Confirming) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	prompt := fmt.Sprintf("Sign %s message for %s?", data.PrimaryType, data.Domain.Name)
	if err := c.ask(ctx, prompt); err != nil {
		return nil, err
	}
	return c.Collaborator.SignTypedData(ctx, data)
}

// Submit prompts before broadcasting
func (c *Confirming) Submit(ctx context.Context, tx *PreparedTx) (common.Hash, error) {
	prompt := fmt.Sprintf("Send %s transaction to %s (gas %d)?", tx.Intent.Kind, tx.Intent.Target.Hex(), tx.Gas)
	if tx.Intent.Value != nil && tx.Intent.Value.Sign() > 0 {
		prompt = fmt.Sprintf("Send %s transaction to %s with value %s wei (gas %d)?",
			tx.Intent.Kind, tx.Intent.Target.Hex(), tx.Intent.Value, tx.Gas)
	}
	if err := c.ask(ctx, prompt); err != nil {
		return common.Hash{}, err
	}
	return c.Collaborator.Submit(ctx, tx)
}

func (c *Confirming) ask(ctx context.Context, prompt string) error {
	if c.Confirm == nil {
		return nil
	}
	ok, err := c.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserRejected
	}
	return nil
}
