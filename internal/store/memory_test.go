package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUsers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user := &User{WalletAddress: "0xabc", KYCStatus: "pending", AffordabilityStatus: "not_checked"}
	require.NoError(t, s.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	dup := &User{WalletAddress: "0xabc"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrAlreadyExists)

	got, err := s.GetUserByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.GetUserByWallet(ctx, "0xmissing")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreUpdateUserVerification(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user := &User{WalletAddress: "0xabc", KYCStatus: "pending", AffordabilityStatus: "not_checked"}
	require.NoError(t, s.CreateUser(ctx, user))

	afford := "verified"
	updated, err := s.UpdateUserVerification(ctx, "0xabc", "verified", &afford)
	require.NoError(t, err)
	assert.True(t, updated.IsVerified)
	assert.Equal(t, "verified", updated.KYCStatus)
	assert.Equal(t, "verified", updated.AffordabilityStatus)

	// Nil affordability leaves the previous value in place.
	updated, err = s.UpdateUserVerification(ctx, "0xabc", "pending", nil)
	require.NoError(t, err)
	assert.False(t, updated.IsVerified)
	assert.Equal(t, "verified", updated.AffordabilityStatus)
}

func TestSeededMemoryStoreAssets(t *testing.T) {
	s := NewSeededMemoryStore()
	ctx := context.Background()

	assets, err := s.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 4)
	assert.Equal(t, "PSG", assets[0].Symbol)
	assert.True(t, assets[0].Price.Equal(decimal.RequireFromString("400.00")))

	asset, err := s.GetAsset(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "JERSEY", asset.Symbol)

	_, err = s.GetAsset(ctx, 99)
	assert.True(t, IsNotFound(err))
}

func TestMemoryStorePurchasePartialUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	purchase := &Purchase{
		UserID:      "u1",
		AssetID:     1,
		TotalAmount: decimal.NewFromInt(400),
		Status:      PurchaseActive,
	}
	require.NoError(t, s.CreatePurchase(ctx, purchase))
	require.NotEmpty(t, purchase.ID)

	staked := decimal.NewFromInt(100)
	enabled := true
	updated, err := s.UpdatePurchase(ctx, purchase.ID, PurchaseUpdate{
		StakedAmount: &staked,
		YieldEnabled: &enabled,
	})
	require.NoError(t, err)
	assert.True(t, updated.YieldEnabled)
	assert.True(t, updated.StakedAmount.Equal(staked))
	assert.Equal(t, PurchaseActive, updated.Status, "untouched fields survive")
	assert.Equal(t, purchase.TotalAmount.String(), updated.TotalAmount.String())

	_, err = s.UpdatePurchase(ctx, "missing", PurchaseUpdate{YieldEnabled: &enabled})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreCreatePurchaseWithDownPayment(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	purchase := &Purchase{UserID: "u1", AssetID: 1, TotalAmount: decimal.NewFromInt(400), Status: PurchaseActive}
	payment := &Payment{Amount: decimal.NewFromInt(100), PaymentType: "demo_chz", Status: PaymentCompleted, DueDate: now, PaidAt: &now}

	require.NoError(t, s.CreatePurchaseWithDownPayment(ctx, purchase, payment))
	require.NotEmpty(t, purchase.ID)
	assert.Equal(t, purchase.ID, payment.PurchaseID)

	got, err := s.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, PurchaseActive, got.Status)

	payments, err := s.ListPaymentsByPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, payment.ID, payments[0].ID)
}

func TestMemoryStoreListPurchasesByUserOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := &Purchase{UserID: "u1", AssetID: 1, Status: PurchaseActive, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Purchase{UserID: "u1", AssetID: 2, Status: PurchaseActive, CreatedAt: time.Now()}
	other := &Purchase{UserID: "u2", AssetID: 1, Status: PurchaseActive}
	require.NoError(t, s.CreatePurchase(ctx, newer))
	require.NoError(t, s.CreatePurchase(ctx, older))
	require.NoError(t, s.CreatePurchase(ctx, other))

	list, err := s.ListPurchasesByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, newer.ID, list[1].ID)
}

func TestMemoryStorePaymentsSortedByDueDate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	late := &Payment{PurchaseID: "p1", PaymentType: PaymentTypeInstallment, Status: PaymentPending, DueDate: now.Add(48 * time.Hour)}
	early := &Payment{PurchaseID: "p1", PaymentType: PaymentTypeInstallment, Status: PaymentPending, DueDate: now}
	require.NoError(t, s.CreatePayment(ctx, late))
	require.NoError(t, s.CreatePayment(ctx, early))

	list, err := s.ListPaymentsByPurchase(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewSeededMemoryStore()
	ctx := context.Background()

	asset, err := s.GetAsset(ctx, 1)
	require.NoError(t, err)
	asset.Name = "mutated"

	again, err := s.GetAsset(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Name)
}
