// Package payments routes checkout payments to the supported rails and
// streams progress back to the caller.
package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"fanpay/internal/store"
)

// Method identifies a payment rail.
type Method string

const (
	// MethodChainWallet pays the down payment in CHZ on Chiliz Spicy.
	MethodChainWallet Method = "chz_wallet"
	// MethodDemo simulates a CHZ payment without touching the chain.
	MethodDemo Method = "demo_chz"
	// MethodCard charges a card through the hosted processor.
	MethodCard Method = "stripe"
)

// Stage is the phase of a progress event.
type Stage string

const (
	StageLoading Stage = "loading"
	StageSuccess Stage = "success"
	StageError   Stage = "error"
)

// Progress is one event on a payment's progress stream. The stream carries
// zero or more loading events followed by exactly one terminal success or
// error event.
type Progress struct {
	Stage   Stage   `json:"stage"`
	Message string  `json:"message"`
	Result  *Result `json:"result,omitempty"`
	Err     *Error  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (p Progress) Terminal() bool {
	return p.Stage == StageSuccess || p.Stage == StageError
}

// Request carries everything a handler needs to take a down payment and
// record the resulting purchase.
type Request struct {
	WalletAddress      string
	AssetID            int64
	TotalAmount        decimal.Decimal
	DownPaymentAmount  decimal.Decimal
	InstallmentAmount  decimal.Decimal
	FinalPaymentAmount decimal.Decimal
}

// Result is the outcome of a successful payment.
type Result struct {
	Purchase        *store.PurchaseDetail `json:"purchase"`
	Method          Method                `json:"method"`
	TransactionHash string                `json:"transaction_hash,omitempty"`
	// Simulated is set when the payment was recorded without a confirmed
	// on-chain transaction.
	Simulated bool `json:"simulated"`
}

// Recorder persists the purchase created by a successful down payment.
// *store.Gateway satisfies it.
type Recorder interface {
	CreateDownPaymentPurchase(ctx context.Context, req store.CreatePurchaseRequest) (*store.PurchaseDetail, error)
}

// Handler executes a down payment on one rail. Implementations report
// intermediate progress through emit and return the final result or error.
type Handler interface {
	Method() Method
	Pay(ctx context.Context, req Request, emit func(message string)) (*Result, error)
}
