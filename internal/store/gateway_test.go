package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpay/internal/events"
)

const gatewayTestWallet = "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"

func newTestGateway(t *testing.T) (*Gateway, *MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := NewSeededMemoryStore()
	return NewGateway(mem, events.NewNoopPublisher(logger), logger), mem
}

func downPaymentRequest() CreatePurchaseRequest {
	return CreatePurchaseRequest{
		WalletAddress:      gatewayTestWallet,
		AssetID:            1,
		TotalAmount:        decimal.NewFromInt(400),
		DownPaymentAmount:  decimal.NewFromInt(100),
		InstallmentAmount:  decimal.NewFromInt(100),
		FinalPaymentAmount: decimal.NewFromInt(100),
		PaymentMethod:      "chz_wallet",
		TransactionHash:    "0xdeadbeef",
	}
}

func TestGatewayCreateDownPaymentPurchase(t *testing.T) {
	g, mem := newTestGateway(t)
	ctx := context.Background()

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	// A user is created on the fly for a first-time wallet.
	user, err := mem.GetUserByWallet(ctx, gatewayTestWallet)
	require.NoError(t, err)
	assert.Equal(t, "pending", user.KYCStatus)
	assert.Equal(t, user.ID, detail.UserID)

	assert.Equal(t, PurchaseActive, detail.Status)
	assert.Equal(t, "0xdeadbeef", detail.TransactionHash)
	require.NotNil(t, detail.Asset)
	assert.Equal(t, "PSG", detail.Asset.Symbol)

	// The down payment row is completed and typed by payment method.
	require.Len(t, detail.Payments, 1)
	payment := detail.Payments[0]
	assert.Equal(t, "chz_wallet", payment.PaymentType)
	assert.Equal(t, PaymentCompleted, payment.Status)
	assert.NotNil(t, payment.PaidAt)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(100)))
}

func TestGatewayCreateDownPaymentPurchaseReusesUser(t *testing.T) {
	g, mem := newTestGateway(t)
	ctx := context.Background()

	first, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	req := downPaymentRequest()
	req.AssetID = 2
	second, err := g.CreateDownPaymentPurchase(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)

	user, err := mem.GetUserByWallet(ctx, gatewayTestWallet)
	require.NoError(t, err)
	purchases, err := mem.ListPurchasesByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, purchases, 2)
}

// downPaymentFailStore simulates a write failure during the combined
// purchase + down payment commit.
type downPaymentFailStore struct {
	*MemoryStore
}

func (s downPaymentFailStore) CreatePurchaseWithDownPayment(ctx context.Context, purchase *Purchase, payment *Payment) error {
	return errors.New("connection reset during commit")
}

func TestGatewayFailedDownPaymentLeavesNoPurchase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := NewSeededMemoryStore()
	g := NewGateway(downPaymentFailStore{mem}, events.NewNoopPublisher(logger), logger)
	ctx := context.Background()

	_, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.Error(t, err)

	// A failed down payment must leave no persisted purchase record, or a
	// retry would create a duplicate for the same attempt.
	user, err := mem.GetUserByWallet(ctx, gatewayTestWallet)
	require.NoError(t, err)
	purchases, err := mem.ListPurchasesByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, purchases)

	details, err := g.PurchaseDetails(ctx, gatewayTestWallet)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestGatewayRecordFinalPaymentCompletesPurchase(t *testing.T) {
	g, mem := newTestGateway(t)
	ctx := context.Background()

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	_, err = g.RecordPayment(ctx, detail.ID, PaymentTypeInstallment, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	purchase, err := mem.GetPurchase(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseActive, purchase.Status, "installments do not complete the purchase")

	payment, err := g.RecordPayment(ctx, detail.ID, PaymentTypeFinal, decimal.NewFromInt(100), "0xfinal")
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, payment.Status)

	purchase, err = mem.GetPurchase(ctx, detail.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseCompleted, purchase.Status)

	payments, err := mem.ListPaymentsByPurchase(ctx, detail.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestGatewayStake(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	staked := decimal.NewFromInt(100)
	purchase, err := g.Stake(ctx, detail.ID, staked, "0xstake")
	require.NoError(t, err)
	assert.True(t, purchase.YieldEnabled)
	assert.True(t, purchase.StakedAmount.Equal(staked))
	assert.Equal(t, "0xstake", purchase.TransactionHash)
}

func TestGatewayStakeWithoutHashKeepsOriginal(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	purchase, err := g.Stake(ctx, detail.ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", purchase.TransactionHash, "an empty staking hash must not erase the purchase hash")
}

func TestGatewayRefreshYieldNoopWhenNotStaked(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	purchase, err := g.RefreshYield(ctx, detail.ID)
	require.NoError(t, err)
	assert.True(t, purchase.YieldEarned.IsZero())
}

func TestGatewayPurchaseDetailsCache(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	// Unknown wallets read as an empty, non-nil list.
	empty, err := g.PurchaseDetails(ctx, "0xnobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	detail, err := g.CreateDownPaymentPurchase(ctx, downPaymentRequest())
	require.NoError(t, err)

	first, err := g.PurchaseDetails(ctx, gatewayTestWallet)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Len(t, first[0].Payments, 1)

	// A write through the gateway invalidates the cached list.
	_, err = g.RecordPayment(ctx, detail.ID, PaymentTypeInstallment, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	second, err := g.PurchaseDetails(ctx, gatewayTestWallet)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Len(t, second[0].Payments, 2)
}

func TestEstimatedAnnualYield(t *testing.T) {
	got := EstimatedAnnualYield(decimal.NewFromInt(100))
	assert.True(t, got.Equal(decimal.RequireFromString("12.5")))
}
