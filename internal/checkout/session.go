package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fanpay/internal/chain"
	"fanpay/internal/payments"
	"fanpay/internal/store"
	"fanpay/internal/verify"
)

// Deps are the collaborators a checkout session delegates step actions to.
type Deps struct {
	Wallet        *verify.WalletService
	KYC           *verify.KYCService
	Affordability *verify.AffordabilityService
	Router        *payments.Router
	Gateway       *store.Gateway
	Chain         chain.Adapter
	Logger        *slog.Logger
}

// Session drives one purchase attempt for one wallet through the step
// template. Step actions are dispatched through a transition table keyed by
// step id. Callers serialize actions per session; a second concurrent call
// to the same step's action is a caller error.
type Session struct {
	flow          *Flow
	deps          Deps
	walletAddress string

	purchase         *store.PurchaseDetail
	installmentsPaid int
}

// installmentsBeforeFinal is how many installments step 5 covers; the third
// installment is the final payment taken at asset release.
const installmentsBeforeFinal = 2

// NewSession creates a session for the given wallet.
func NewSession(walletAddress string, deps Deps) *Session {
	return &Session{
		flow:          NewFlow(),
		deps:          deps,
		walletAddress: walletAddress,
	}
}

// Flow exposes the session's step state machine.
func (s *Session) Flow() *Flow {
	return s.flow
}

// Purchase returns the purchase created by the down payment step, or nil.
func (s *Session) Purchase() *store.PurchaseDetail {
	return s.purchase
}

// ActionInput carries the per-step parameters for RunStep.
type ActionInput struct {
	// Method selects the payment rail for the down payment step.
	Method payments.Method
	// OnProgress receives payment progress events when set.
	OnProgress func(payments.Progress)
	// StakeAmount is the CHZ amount for the yield step.
	StakeAmount decimal.Decimal
	// Skip skips the optional yield step.
	Skip bool
}

// ActionResult is the step-specific outcome of a step action.
type ActionResult struct {
	Eligibility   *verify.EligibilityResult   `json:"eligibility,omitempty"`
	KYC           *verify.KYCResult           `json:"kyc,omitempty"`
	Affordability *verify.AffordabilityResult `json:"affordability,omitempty"`
	Purchase      *store.PurchaseDetail       `json:"purchase,omitempty"`
	Payment       *store.Payment              `json:"payment,omitempty"`
}

type actionFunc func(s *Session, ctx context.Context, in ActionInput) (*ActionResult, error)

// stepActions is the transition table mapping each step to its action.
var stepActions = map[StepID]actionFunc{
	StepWalletVerification: (*Session).verifyWallet,
	StepKYC:                (*Session).verifyKYC,
	StepAffordability:      (*Session).checkAffordability,
	StepDownPayment:        (*Session).createPurchase,
	StepInstallments:       (*Session).payInstallment,
	StepYield:              (*Session).enableYield,
	StepFinalRelease:       (*Session).finalRelease,
}

// RunStep dispatches a step action through the transition table, wrapping it
// in the in_progress/terminal status transitions.
func (s *Session) RunStep(ctx context.Context, id StepID, in ActionInput) (*ActionResult, error) {
	action, ok := stepActions[id]
	if !ok {
		return nil, fmt.Errorf("unknown step id %d", id)
	}
	if err := s.flow.begin(id); err != nil {
		return nil, err
	}

	result, err := action(s, ctx, in)
	if err != nil {
		_ = s.flow.UpdateStepStatus(id, StepFailed)
		return nil, err
	}
	return result, nil
}

// VerifyWallet runs the wallet eligibility step.
func (s *Session) VerifyWallet(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepWalletVerification, ActionInput{})
}

// VerifyKYC runs the identity verification step.
func (s *Session) VerifyKYC(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepKYC, ActionInput{})
}

// CheckAffordability runs the affordability assessment step.
func (s *Session) CheckAffordability(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepAffordability, ActionInput{})
}

// CreateDownPayment takes the down payment on the given rail.
func (s *Session) CreateDownPayment(ctx context.Context, method payments.Method, onProgress func(payments.Progress)) (*ActionResult, error) {
	return s.RunStep(ctx, StepDownPayment, ActionInput{Method: method, OnProgress: onProgress})
}

// PayInstallment pays the next scheduled installment.
func (s *Session) PayInstallment(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepInstallments, ActionInput{})
}

// EnableYield stakes CHZ for yield generation.
func (s *Session) EnableYield(ctx context.Context, amountCHZ decimal.Decimal) (*ActionResult, error) {
	return s.RunStep(ctx, StepYield, ActionInput{StakeAmount: amountCHZ})
}

// SkipYield skips the optional yield step.
func (s *Session) SkipYield(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepYield, ActionInput{Skip: true})
}

// FinalRelease pays the final installment and releases the asset.
func (s *Session) FinalRelease(ctx context.Context) (*ActionResult, error) {
	return s.RunStep(ctx, StepFinalRelease, ActionInput{})
}

func (s *Session) verifyWallet(ctx context.Context, in ActionInput) (*ActionResult, error) {
	result := s.deps.Wallet.Check(ctx, s.walletAddress)
	if !result.IsEligible {
		// Surface the service's reasons verbatim.
		_ = s.flow.UpdateStepStatus(StepWalletVerification, StepFailed)
		return &ActionResult{Eligibility: &result}, fmt.Errorf("wallet not eligible: %v", result.Details)
	}

	_ = s.flow.UpdateStepStatus(StepWalletVerification, StepCompleted)
	return &ActionResult{Eligibility: &result}, nil
}

func (s *Session) verifyKYC(ctx context.Context, in ActionInput) (*ActionResult, error) {
	result, err := s.deps.KYC.Verify(ctx, s.walletAddress)
	if err != nil {
		return nil, err
	}

	s.flow.setKYCStatus(result.Status)
	status := StepCompleted
	if result.Status != "verified" {
		status = StepFailed
	}
	_ = s.flow.UpdateStepStatus(StepKYC, status)
	return &ActionResult{KYC: &result}, nil
}

func (s *Session) checkAffordability(ctx context.Context, in ActionInput) (*ActionResult, error) {
	calc := s.flow.Calculations()
	if calc == nil {
		return nil, fmt.Errorf("no asset selected")
	}

	result := s.deps.Affordability.Assess(ctx, s.walletAddress, calc.TotalAmount)
	if !result.CanAfford {
		s.flow.setAffordabilityStatus("failed")
		_ = s.flow.UpdateStepStatus(StepAffordability, StepFailed)
		return &ActionResult{Affordability: &result}, fmt.Errorf("purchase amount %s exceeds affordability limit", calc.TotalAmount)
	}

	s.flow.setAffordabilityStatus("verified")
	_ = s.flow.UpdateStepStatus(StepAffordability, StepCompleted)
	return &ActionResult{Affordability: &result}, nil
}

func (s *Session) createPurchase(ctx context.Context, in ActionInput) (*ActionResult, error) {
	asset := s.flow.SelectedAsset()
	calc := s.flow.Calculations()
	if asset == nil || calc == nil {
		return nil, fmt.Errorf("no asset selected")
	}

	req := payments.Request{
		WalletAddress:      s.walletAddress,
		AssetID:            asset.ID,
		TotalAmount:        calc.TotalAmount,
		DownPaymentAmount:  calc.DownPaymentAmount,
		InstallmentAmount:  calc.InstallmentAmount,
		FinalPaymentAmount: calc.FinalPaymentAmount,
	}

	var terminal payments.Progress
	for event := range s.deps.Router.Process(ctx, in.Method, req) {
		if in.OnProgress != nil {
			in.OnProgress(event)
		}
		if event.Terminal() {
			terminal = event
		}
	}

	if terminal.Stage != payments.StageSuccess {
		if terminal.Err != nil {
			return nil, terminal.Err
		}
		return nil, fmt.Errorf("payment ended without a terminal event")
	}

	s.purchase = terminal.Result.Purchase
	_ = s.flow.UpdateStepStatus(StepDownPayment, StepCompleted)
	return &ActionResult{Purchase: s.purchase}, nil
}

func (s *Session) payInstallment(ctx context.Context, in ActionInput) (*ActionResult, error) {
	payment, err := s.recordScheduledPayment(ctx, store.PaymentTypeInstallment)
	if err != nil {
		return nil, err
	}

	s.installmentsPaid++
	// With one installment down the step stays in_progress; the next
	// PayInstallment re-enters it.
	if s.installmentsPaid >= installmentsBeforeFinal {
		_ = s.flow.UpdateStepStatus(StepInstallments, StepCompleted)
	}
	return &ActionResult{Payment: payment}, nil
}

func (s *Session) enableYield(ctx context.Context, in ActionInput) (*ActionResult, error) {
	if in.Skip {
		// Skipping is not a failure; the step completes with no stake.
		_ = s.flow.UpdateStepStatus(StepYield, StepCompleted)
		return &ActionResult{}, nil
	}

	if s.purchase == nil {
		return nil, fmt.Errorf("no purchase to stake against")
	}
	if !in.StakeAmount.IsPositive() {
		return nil, fmt.Errorf("stake amount must be positive, got %s", in.StakeAmount)
	}

	txHash := ""
	if receipt, err := s.deps.Chain.Stake(ctx, in.StakeAmount); err != nil {
		// Staking never fails the step; the stake is recorded with a
		// simulated hash when the chain is unavailable.
		s.deps.Logger.Warn("staking failed on chain, recording simulated stake",
			"purchase_id", s.purchase.ID,
			"amount", in.StakeAmount,
			"error", err,
		)
		txHash = chain.SimulatedTxHash("stake", s.purchase.ID, in.StakeAmount.String())
	} else {
		txHash = receipt.Hash
	}

	updated, err := s.deps.Gateway.Stake(ctx, s.purchase.ID, in.StakeAmount, txHash)
	if err != nil {
		return nil, err
	}
	s.purchase.Purchase = *updated

	s.flow.setYield(in.StakeAmount, store.EstimatedAnnualYield(in.StakeAmount))
	_ = s.flow.UpdateStepStatus(StepYield, StepCompleted)
	return &ActionResult{Purchase: s.purchase}, nil
}

func (s *Session) finalRelease(ctx context.Context, in ActionInput) (*ActionResult, error) {
	payment, err := s.recordScheduledPayment(ctx, store.PaymentTypeFinal)
	if err != nil {
		return nil, err
	}

	_ = s.flow.UpdateStepStatus(StepFinalRelease, StepCompleted)
	return &ActionResult{Payment: payment}, nil
}

// recordScheduledPayment pays one scheduled amount. On-chain purchases try
// the chain first and fall back to recording without a hash; other rails
// record directly.
func (s *Session) recordScheduledPayment(ctx context.Context, paymentType string) (*store.Payment, error) {
	if s.purchase == nil {
		return nil, fmt.Errorf("no purchase to pay against")
	}

	amount := s.purchase.InstallmentAmount
	if paymentType == store.PaymentTypeFinal {
		amount = s.purchase.FinalPaymentAmount
	}

	txHash := ""
	if s.purchase.PaymentMethod == string(payments.MethodChainWallet) {
		if receipt, err := s.deps.Chain.MakePayment(ctx, s.purchase.ID, amount); err != nil {
			s.deps.Logger.Warn("chain payment failed, recording without hash",
				"purchase_id", s.purchase.ID,
				"payment_type", paymentType,
				"error", err,
			)
		} else {
			txHash = receipt.Hash
		}
	}

	return s.deps.Gateway.RecordPayment(ctx, s.purchase.ID, paymentType, amount, txHash)
}
