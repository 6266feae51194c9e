package payments

import (
	"context"
	"errors"
	"fmt"

	"fanpay/internal/chain"
)

// Code classifies payment failures for callers and API responses.
type Code string

const (
	CodeSigningRejected     Code = "SIGNING_REJECTED"
	CodeNetworkMismatch     Code = "NETWORK_MISMATCH"
	CodeConfirmationTimeout Code = "CONFIRMATION_TIMEOUT"
	CodePersistenceFailure  Code = "PERSISTENCE_FAILURE"
	CodeUnsupportedMethod   Code = "UNSUPPORTED_METHOD"
	CodeUnknown             Code = "PAYMENT_FAILED"
)

// Error is a classified payment failure.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Classify wraps err in a payment Error, mapping known chain failures to
// their codes. An err that is already a payment Error passes through.
func Classify(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	code := CodeUnknown
	switch {
	case errors.Is(err, chain.ErrRejected):
		code = CodeSigningRejected
	case errors.Is(err, chain.ErrWrongNetwork):
		code = CodeNetworkMismatch
	case errors.Is(err, chain.ErrConfirmTimeout), errors.Is(err, context.DeadlineExceeded):
		code = CodeConfirmationTimeout
	}

	return &Error{Code: code, Message: userMessage(code), cause: err}
}

// newError builds a payment Error for a code with an underlying cause.
func newError(code Code, cause error) *Error {
	return &Error{Code: code, Message: userMessage(code), cause: cause}
}

// userMessage is the operator-safe message shown for each failure code.
func userMessage(code Code) string {
	switch code {
	case CodeSigningRejected:
		return "Transaction was rejected in the wallet"
	case CodeNetworkMismatch:
		return "Wallet is connected to the wrong network, switch to Chiliz Spicy"
	case CodeConfirmationTimeout:
		return "Transaction was not confirmed in time"
	case CodePersistenceFailure:
		return "Payment went through but recording the purchase failed, contact support"
	case CodeUnsupportedMethod:
		return "Unsupported payment method"
	default:
		return "Payment failed"
	}
}
