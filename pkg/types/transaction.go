package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IntentKind classifies a prepared transaction
type IntentKind string

const (
	IntentApproval       IntentKind = "approval"
	IntentSwap           IntentKind = "swap"
	IntentDirectTransfer IntentKind = "direct_transfer"
	IntentDisperse       IntentKind = "disperse"
)

// ConfirmationStatus is the on-chain outcome of a submitted transaction
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationFailed    ConfirmationStatus = "failed"
)

// TransactionIntent is a prepared-but-unsent transaction
type TransactionIntent struct {
	Kind     IntentKind
	Target   common.Address
	CallData []byte
	Value    *big.Int

	// Optional hints from the pricing service; zero means estimate.
	Gas      uint64
	GasPrice *big.Int
}

// TransactionRecord tracks one submitted transaction of an orchestration run
type TransactionRecord struct {
	IntentKind IntentKind         `json:"intent_kind"`
	Hash       common.Hash        `json:"hash"`
	Status     ConfirmationStatus `json:"status"`
}

// Resolved reports whether the record reached a terminal status
func (r *TransactionRecord) Resolved() bool {
	return r == nil || r.Status != ConfirmationPending
}
