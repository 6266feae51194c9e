package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fanpay/internal/chain"
	"fanpay/internal/store"
)

// ChainHandler takes down payments in CHZ on the Chiliz Spicy network.
// Recoverable chain failures fall back to recording the purchase without a
// transaction hash so the demo flow keeps working when the testnet is flaky.
// A signer rejection or wrong network is the user's to fix and fails the
// payment instead.
type ChainHandler struct {
	adapter  chain.Adapter
	recorder Recorder
	logger   *slog.Logger
}

// NewChainHandler creates the on-chain payment handler.
func NewChainHandler(adapter chain.Adapter, recorder Recorder, logger *slog.Logger) *ChainHandler {
	return &ChainHandler{adapter: adapter, recorder: recorder, logger: logger}
}

// Method implements Handler.
func (h *ChainHandler) Method() Method {
	return MethodChainWallet
}

// Pay implements Handler.
func (h *ChainHandler) Pay(ctx context.Context, req Request, emit func(string)) (*Result, error) {
	emit("Connecting to Chiliz Spicy network...")

	if _, err := h.adapter.ConnectedAddress(); err != nil {
		if !errors.Is(err, chain.ErrNoWallet) {
			return nil, err
		}
		if _, err := h.adapter.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if err := h.adapter.EnsureNetwork(ctx); err != nil {
		return nil, err
	}

	amountCHZ := chain.USDToCHZ(req.DownPaymentAmount)
	emit(fmt.Sprintf("Confirm the transaction in your wallet (%s CHZ)...", amountCHZ.StringFixed(2)))

	receipt, err := h.adapter.CreatePurchase(ctx, req.AssetID, req.TotalAmount, req.DownPaymentAmount)
	if err != nil {
		if errors.Is(err, chain.ErrRejected) || errors.Is(err, chain.ErrWrongNetwork) {
			return nil, err
		}

		// Testnet unavailable or transaction never confirmed: keep the
		// checkout alive by recording the purchase without a hash. No
		// fabricated hash is ever stored.
		h.logger.Warn("chain payment failed, recording simulated purchase",
			"wallet", req.WalletAddress,
			"asset_id", req.AssetID,
			"error", err,
		)
		emit("Network unavailable, completing in demo mode...")

		detail, perr := h.recorder.CreateDownPaymentPurchase(ctx, h.createReq(req, ""))
		if perr != nil {
			return nil, newError(CodePersistenceFailure, perr)
		}
		return &Result{Purchase: detail, Method: MethodChainWallet, Simulated: true}, nil
	}

	emit("Transaction confirmed, recording purchase...")

	detail, err := h.recorder.CreateDownPaymentPurchase(ctx, h.createReq(req, receipt.Hash))
	if err != nil {
		// The payment is on-chain but the purchase is not recorded. Leave
		// a loud trail so the funds can be reconciled.
		h.logger.Error("orphaned payment: on-chain transaction confirmed but purchase not recorded",
			"wallet", req.WalletAddress,
			"asset_id", req.AssetID,
			"tx_hash", receipt.Hash,
			"error", err,
		)
		return nil, newError(CodePersistenceFailure, err)
	}

	return &Result{
		Purchase:        detail,
		Method:          MethodChainWallet,
		TransactionHash: receipt.Hash,
	}, nil
}

func (h *ChainHandler) createReq(req Request, txHash string) store.CreatePurchaseRequest {
	return store.CreatePurchaseRequest{
		WalletAddress:      req.WalletAddress,
		AssetID:            req.AssetID,
		TotalAmount:        req.TotalAmount,
		DownPaymentAmount:  req.DownPaymentAmount,
		InstallmentAmount:  req.InstallmentAmount,
		FinalPaymentAmount: req.FinalPaymentAmount,
		PaymentMethod:      string(MethodChainWallet),
		TransactionHash:    txHash,
	}
}

var _ Handler = (*ChainHandler)(nil)
