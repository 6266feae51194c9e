package payments

import (
	"context"
	"log/slog"
	"time"

	"fanpay/internal/store"
)

// DemoHandler simulates a CHZ payment without touching the chain. The
// recorded purchase carries no transaction hash.
type DemoHandler struct {
	recorder Recorder
	delay    time.Duration
	logger   *slog.Logger
}

// NewDemoHandler creates the simulated payment handler.
func NewDemoHandler(recorder Recorder, logger *slog.Logger) *DemoHandler {
	return &DemoHandler{recorder: recorder, delay: 2 * time.Second, logger: logger}
}

// Method implements Handler.
func (h *DemoHandler) Method() Method {
	return MethodDemo
}

// Pay implements Handler.
func (h *DemoHandler) Pay(ctx context.Context, req Request, emit func(string)) (*Result, error) {
	emit("Processing demo CHZ payment...")

	select {
	case <-time.After(h.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	emit("Recording purchase...")

	detail, err := h.recorder.CreateDownPaymentPurchase(ctx, store.CreatePurchaseRequest{
		WalletAddress:      req.WalletAddress,
		AssetID:            req.AssetID,
		TotalAmount:        req.TotalAmount,
		DownPaymentAmount:  req.DownPaymentAmount,
		InstallmentAmount:  req.InstallmentAmount,
		FinalPaymentAmount: req.FinalPaymentAmount,
		PaymentMethod:      string(MethodDemo),
	})
	if err != nil {
		return nil, newError(CodePersistenceFailure, err)
	}

	return &Result{Purchase: detail, Method: MethodDemo, Simulated: true}, nil
}

var _ Handler = (*DemoHandler)(nil)
