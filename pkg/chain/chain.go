// Package chain defines the signing/chain collaborator the orchestration core
// talks to, and a go-ethereum implementation of it backed by a local key.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"swapdash/pkg/types"
)

// ErrUserRejected is returned when the signing entity declines a request
var ErrUserRejected = errors.New("user rejected the request")

// ErrNotConnected is returned when no account is available for signing
var ErrNotConnected = errors.New("wallet not connected")

// PreparedTx is a simulated transaction ready for submission
type PreparedTx struct {
	Intent   types.TransactionIntent
	From     common.Address
	Gas      uint64
	GasPrice *big.Int
}

// Reader reads contract state
type Reader interface {
	ReadContract(ctx context.Context, contract common.Address, data []byte) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Collaborator is the five-operation contract of the signing/chain side
type Collaborator interface {
	Reader

	// Account returns the connected account, or ErrNotConnected.
	Account() (common.Address, error)
	// Simulate dry-runs the intent and returns a submittable transaction.
	Simulate(ctx context.Context, intent types.TransactionIntent) (*PreparedTx, error)
	// SignTypedData signs EIP-712 data and returns a 65-byte signature.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	// Submit signs and broadcasts the transaction and returns its hash.
	Submit(ctx context.Context, tx *PreparedTx) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined.
	WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}
