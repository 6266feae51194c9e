package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fanpay/internal/store"
)

// CardHandler charges cards through the hosted processor. The sandbox
// processor approves every charge after a settlement delay and issues a
// payment reference in place of a transaction hash.
type CardHandler struct {
	recorder Recorder
	delay    time.Duration
	logger   *slog.Logger
}

// NewCardHandler creates the card payment handler.
func NewCardHandler(recorder Recorder, logger *slog.Logger) *CardHandler {
	return &CardHandler{recorder: recorder, delay: 3 * time.Second, logger: logger}
}

// Method implements Handler.
func (h *CardHandler) Method() Method {
	return MethodCard
}

// Pay implements Handler.
func (h *CardHandler) Pay(ctx context.Context, req Request, emit func(string)) (*Result, error) {
	emit("Contacting card processor...")

	select {
	case <-time.After(h.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reference := "stripe_" + uuid.NewString()
	emit("Charge approved, recording purchase...")

	detail, err := h.recorder.CreateDownPaymentPurchase(ctx, store.CreatePurchaseRequest{
		WalletAddress:      req.WalletAddress,
		AssetID:            req.AssetID,
		TotalAmount:        req.TotalAmount,
		DownPaymentAmount:  req.DownPaymentAmount,
		InstallmentAmount:  req.InstallmentAmount,
		FinalPaymentAmount: req.FinalPaymentAmount,
		PaymentMethod:      string(MethodCard),
		TransactionHash:    reference,
	})
	if err != nil {
		h.logger.Error("orphaned payment: card charge approved but purchase not recorded",
			"wallet", req.WalletAddress,
			"asset_id", req.AssetID,
			"reference", reference,
			"error", err,
		)
		return nil, newError(CodePersistenceFailure, err)
	}

	return &Result{
		Purchase:        detail,
		Method:          MethodCard,
		TransactionHash: reference,
	}, nil
}

var _ Handler = (*CardHandler)(nil)
