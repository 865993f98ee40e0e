package orchestrator

import (
	"errors"

	"swapdash/pkg/types"
)

// ErrRunInProgress is returned when execute is called while a run is active
var ErrRunInProgress = errors.New("another transaction is already in progress")

// Kind names the flow an orchestration run executes
type Kind string

const (
	KindSwap     Kind = "swap"
	KindTransfer Kind = "transfer"
	KindPayout   Kind = "payout"
	KindDisperse Kind = "disperse"
)

// Phase is the orchestrator state
type Phase string

const (
	PhaseIdle                          Phase = "idle"
	PhaseEvaluating                    Phase = "evaluating"
	PhaseApprovingAwaitingSignature    Phase = "approving_awaiting_signature"
	PhaseApprovingAwaitingConfirmation Phase = "approving_awaiting_confirmation"
	PhaseAwaitingSignature             Phase = "awaiting_signature"
	PhaseAwaitingConfirmation          Phase = "awaiting_confirmation"
	PhaseCompleted                     Phase = "completed"
	PhaseFailed                        Phase = "failed"
)

// Active reports whether a run is between execute and a terminal state
func (p Phase) Active() bool {
	switch p {
	case PhaseIdle, PhaseCompleted, PhaseFailed:
		return false
	default:
		return true
	}
}

// StageState is the state of the approval or execution stage
type StageState string

const (
	StageNotStarted                StageState = "not_started"
	StageAwaitingWalletSignature   StageState = "awaiting_wallet_signature"
	StageAwaitingChainConfirmation StageState = "awaiting_chain_confirmation"
	StageConfirmed                 StageState = "confirmed"
	StageRejected                  StageState = "rejected"
	StageChainError                StageState = "chain_error"
)

// Status is the single status surface of an orchestrator. Message holds
// either the success text or the user message of Err, never both.
type Status struct {
	RunID     string
	Kind      Kind
	Phase     Phase
	Approval  StageState
	Execution StageState
	// Record is the live or last transaction of the current run
	Record  *types.TransactionRecord
	Message string
	Err     error
}

func idleStatus() Status {
	return Status{
		Phase:     PhaseIdle,
		Approval:  StageNotStarted,
		Execution: StageNotStarted,
	}
}

func (s *Status) succeed(message string) {
	s.Message = message
	s.Err = nil
}

func (s *Status) fail(err error) {
	s.Message = types.UserMessage(err)
	s.Err = err
}
