package history

import (
	"time"

	"swapdash/pkg/types"
)

// Outcome is the terminal state of a run
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Entry is the immutable summary of one finished orchestration run
type Entry struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"` // swap, transfer, payout, disperse
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Outcome  Outcome   `json:"outcome"`

	SellToken string `json:"sell_token,omitempty"`
	BuyToken  string `json:"buy_token,omitempty"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`

	Transactions []types.TransactionRecord `json:"transactions,omitempty"`

	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Duration returns how long the run took
func (e *Entry) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}
