package checkout

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpay/internal/chain"
	"fanpay/internal/events"
	"fanpay/internal/payments"
	"fanpay/internal/store"
	"fanpay/internal/verify"
)

const testWallet = "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"

func newTestSession(t *testing.T) (*Session, *store.MemoryStore, *chain.SimAdapter) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	mem := store.NewSeededMemoryStore()
	publisher := events.NewNoopPublisher(logger)
	gateway := store.NewGateway(mem, publisher, logger)

	// Explorer that is always down, so eligibility uses sandbox figures.
	explorer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(explorer.Close)

	walletSvc := verify.NewWalletService(verify.WalletConfig{
		ExplorerURL: explorer.URL,
		Timeout:     time.Second,
	}, mem, publisher, logger)
	kycSvc := verify.NewKYCService(verify.KYCConfig{Delay: time.Millisecond}, mem, logger)
	affordSvc := verify.NewAffordabilityService(mem, logger)

	adapter := chain.NewSimAdapter(testWallet, decimal.NewFromInt(100000))
	_, err := adapter.Connect(context.Background())
	require.NoError(t, err)

	router := payments.NewRouter(logger, 30*time.Second,
		payments.NewChainHandler(adapter, gateway, logger),
		newFastDemoHandler(gateway, logger),
		payments.NewCardHandler(gateway, logger),
	)

	session := NewSession(testWallet, Deps{
		Wallet:        walletSvc,
		KYC:           kycSvc,
		Affordability: affordSvc,
		Router:        router,
		Gateway:       gateway,
		Chain:         adapter,
		Logger:        logger,
	})
	return session, mem, adapter
}

// newFastDemoHandler wraps the demo rail in a router-compatible handler
// without the production settlement delay.
func newFastDemoHandler(gateway *store.Gateway, logger *slog.Logger) payments.Handler {
	return fastDemo{inner: payments.NewDemoHandler(gateway, logger), gateway: gateway}
}

type fastDemo struct {
	inner   payments.Handler
	gateway *store.Gateway
}

func (f fastDemo) Method() payments.Method { return payments.MethodDemo }

func (f fastDemo) Pay(ctx context.Context, req payments.Request, emit func(string)) (*payments.Result, error) {
	emit("Processing demo CHZ payment...")
	detail, err := f.gateway.CreateDownPaymentPurchase(ctx, store.CreatePurchaseRequest{
		WalletAddress:      req.WalletAddress,
		AssetID:            req.AssetID,
		TotalAmount:        req.TotalAmount,
		DownPaymentAmount:  req.DownPaymentAmount,
		InstallmentAmount:  req.InstallmentAmount,
		FinalPaymentAmount: req.FinalPaymentAmount,
		PaymentMethod:      string(payments.MethodDemo),
	})
	if err != nil {
		return nil, err
	}
	return &payments.Result{Purchase: detail, Method: payments.MethodDemo, Simulated: true}, nil
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestSessionHappyPath(t *testing.T) {
	ctx := context.Background()
	session, mem, _ := newTestSession(t)

	asset, err := mem.GetAsset(ctx, 1)
	require.NoError(t, err)
	require.True(t, asset.Price.Equal(decimal.RequireFromString("400.00")))
	require.NoError(t, session.Flow().SelectAsset(asset))

	result, err := session.VerifyWallet(ctx)
	require.NoError(t, err)
	assert.True(t, result.Eligibility.IsEligible)
	assert.Equal(t, StepKYC, session.Flow().CurrentStep())

	result, err = session.VerifyKYC(ctx)
	require.NoError(t, err)
	assert.Equal(t, "verified", result.KYC.Status)
	assert.Contains(t, result.KYC.SessionID, "vs_sandbox_")

	result, err = session.CheckAffordability(ctx)
	require.NoError(t, err)
	assert.True(t, result.Affordability.CanAfford)

	var progress []payments.Progress
	result, err = session.CreateDownPayment(ctx, payments.MethodDemo, func(p payments.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	assert.Equal(t, payments.StageLoading, progress[0].Stage)
	assert.Equal(t, payments.StageSuccess, progress[len(progress)-1].Stage)

	purchase := result.Purchase
	require.NotNil(t, purchase)
	assert.Equal(t, store.PurchaseActive, purchase.Status)
	assert.Equal(t, string(payments.MethodDemo), purchase.PaymentMethod)
	assert.True(t, purchase.DownPaymentAmount.Equal(decimal.NewFromInt(100)))

	require.Len(t, purchase.Payments, 1)
	down := purchase.Payments[0]
	assert.Equal(t, store.PaymentCompleted, down.Status)
	assert.Equal(t, string(payments.MethodDemo), down.PaymentType)
	assert.True(t, down.Amount.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, down.TransactionHash, "demo payments carry no hash")

	assert.Equal(t, StepInstallments, session.Flow().CurrentStep())
}

func TestSessionYieldSkip(t *testing.T) {
	ctx := context.Background()
	session, mem, _ := newTestSession(t)

	asset, err := mem.GetAsset(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, session.Flow().SelectAsset(asset))

	_, err = session.SkipYield(ctx)
	require.NoError(t, err)

	status, err := session.Flow().StepStatus(StepYield)
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, status)

	snap := session.Flow().Snapshot()
	assert.False(t, snap.YieldEnabled)
	assert.True(t, snap.StakedAmount.IsZero())
}

func TestSessionYieldStaking(t *testing.T) {
	ctx := context.Background()
	session, mem, adapter := newTestSession(t)

	asset, err := mem.GetAsset(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, session.Flow().SelectAsset(asset))

	_, err = session.CreateDownPayment(ctx, payments.MethodDemo, nil)
	require.NoError(t, err)

	stake := decimal.NewFromInt(500)
	result, err := session.EnableYield(ctx, stake)
	require.NoError(t, err)

	assert.True(t, result.Purchase.YieldEnabled)
	assert.True(t, result.Purchase.StakedAmount.Equal(stake))
	assert.NotEmpty(t, result.Purchase.TransactionHash)
	assert.True(t, adapter.Staked().Equal(stake))

	snap := session.Flow().Snapshot()
	assert.True(t, snap.YieldEnabled)
	assert.True(t, snap.EstimatedYield.Equal(stake.Mul(store.StakingAPY)))
}

func TestSessionYieldStakingFallsBackWhenChainFails(t *testing.T) {
	ctx := context.Background()
	session, mem, adapter := newTestSession(t)

	asset, err := mem.GetAsset(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, session.Flow().SelectAsset(asset))

	_, err = session.CreateDownPayment(ctx, payments.MethodDemo, nil)
	require.NoError(t, err)

	adapter.FailSubmits = true

	result, err := session.EnableYield(ctx, decimal.NewFromInt(200))
	require.NoError(t, err, "staking falls back to a simulated hash, never fails the step")
	assert.True(t, result.Purchase.YieldEnabled)
	assert.NotEmpty(t, result.Purchase.TransactionHash)

	status, _ := session.Flow().StepStatus(StepYield)
	assert.Equal(t, StepCompleted, status)
}

func TestSessionInstallmentsAndFinalRelease(t *testing.T) {
	ctx := context.Background()
	session, mem, _ := newTestSession(t)

	asset, err := mem.GetAsset(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, session.Flow().SelectAsset(asset))

	_, err = session.CreateDownPayment(ctx, payments.MethodDemo, nil)
	require.NoError(t, err)
	purchaseID := session.Purchase().ID

	// Two installments complete step 5.
	_, err = session.PayInstallment(ctx)
	require.NoError(t, err)
	status, _ := session.Flow().StepStatus(StepInstallments)
	assert.Equal(t, StepInProgress, status, "step stays open until both installments are paid")

	_, err = session.PayInstallment(ctx)
	require.NoError(t, err)
	status, _ = session.Flow().StepStatus(StepInstallments)
	assert.Equal(t, StepCompleted, status)

	_, err = session.SkipYield(ctx)
	require.NoError(t, err)

	result, err := session.FinalRelease(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.PaymentTypeFinal, result.Payment.PaymentType)

	final, err := mem.GetPurchase(ctx, purchaseID)
	require.NoError(t, err)
	assert.Equal(t, store.PurchaseCompleted, final.Status)

	history, err := mem.ListPaymentsByPurchase(ctx, purchaseID)
	require.NoError(t, err)
	assert.Len(t, history, 4, "down payment + two installments + final")
}

func TestSessionStepFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	// No asset selected: the affordability step fails but stays retryable.
	_, err := session.CheckAffordability(ctx)
	require.Error(t, err)

	status, _ := session.Flow().StepStatus(StepAffordability)
	assert.Equal(t, StepFailed, status)
	assert.Equal(t, StepWalletVerification, session.Flow().CurrentStep(), "failure never advances the pointer")
}
