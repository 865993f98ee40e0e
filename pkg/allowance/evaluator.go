package allowance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"swapdash/pkg/chain"
	"swapdash/pkg/types"
)

// Decision is the outcome of one allowance evaluation
type Decision struct {
	State    types.AllowanceState
	Required *big.Int
	// NeedsApproval is false for native sells and for allowances >= Required
	NeedsApproval bool
}

// Evaluator reads the current allowance for a fixed spender
type Evaluator struct {
	reader  chain.Reader
	spender common.Address
	log     logrus.FieldLogger
}

// NewEvaluator creates an evaluator for spender
func NewEvaluator(reader chain.Reader, spender common.Address, log logrus.FieldLogger) *Evaluator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Evaluator{
		reader:  reader,
		spender: spender,
		log:     log.WithField("component", "allowance"),
	}
}

// Evaluate reads the allowance of owner for token and compares it against
// required. It always reads the chain; results are never cached.
func (e *Evaluator) Evaluate(ctx context.Context, token types.Token, owner common.Address, required *big.Int) (*Decision, error) {
	d := &Decision{
		State: types.AllowanceState{
			Owner:   owner,
			Spender: e.spender,
			Token:   token,
		},
		Required: required,
	}
	if token.IsNative() {
		return d, nil
	}

	current, err := chain.ReadAllowance(ctx, e.reader, token.Address, owner, e.spender)
	if err != nil {
		return nil, types.NewChainError(err)
	}
	d.State.Current = current
	d.NeedsApproval = !d.State.Sufficient(required)

	e.log.WithFields(logrus.Fields{
		"token":          token.String(),
		"current":        current.String(),
		"required":       required.String(),
		"needs_approval": d.NeedsApproval,
	}).Debug("allowance evaluated")

	return d, nil
}
