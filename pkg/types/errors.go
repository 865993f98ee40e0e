package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that reach the orchestrator or the UI
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindQuote
	KindSignatureRejected
	KindChain
	KindAllowanceInconsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindQuote:
		return "QuoteError"
	case KindSignatureRejected:
		return "SignatureRejected"
	case KindChain:
		return "ChainError"
	case KindAllowanceInconsistency:
		return "AllowanceInconsistency"
	default:
		return "UnknownError"
	}
}

const (
	chainUserMessage     = "Transaction failed. Please try again."
	rejectedUserMessage  = "Request rejected in wallet."
	allowanceUserMessage = "Token allowance changed during the swap. Please try again."
)

// Error is a classified failure with a user-facing message
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the text safe to show inline
func (e *Error) UserMessage() string {
	return e.Message
}

// NewValidationError creates a validation error
func NewValidationError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewQuoteError creates a quote error
func NewQuoteError(message string, err error) *Error {
	return &Error{
		Kind:    KindQuote,
		Message: message,
		Err:     err,
	}
}

// NewSignatureRejected creates a wallet rejection error
func NewSignatureRejected(err error) *Error {
	return &Error{
		Kind:    KindSignatureRejected,
		Message: rejectedUserMessage,
		Err:     err,
	}
}

// NewChainError creates a chain error; err holds the diagnostic detail
func NewChainError(err error) *Error {
	return &Error{
		Kind:    KindChain,
		Message: chainUserMessage,
		Err:     err,
	}
}

// NewAllowanceInconsistency creates an allowance inconsistency error
func NewAllowanceInconsistency(err error) *Error {
	return &Error{
		Kind:    KindAllowanceInconsistency,
		Message: allowanceUserMessage,
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns the user-facing text for err
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return chainUserMessage
}
