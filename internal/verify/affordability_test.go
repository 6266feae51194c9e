package verify

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpay/internal/store"
)

func TestAffordabilityAssess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := store.NewMemoryStore()
	svc := NewAffordabilityService(mem, logger)
	ctx := context.Background()

	// Seed 0x00ab = 171: income 2671, expenses 1736.15, credit score 821.
	addr := "0x00000000000000000000000000000000000000ab"

	result := svc.Assess(ctx, addr, decimal.NewFromInt(400))
	assert.True(t, result.MonthlyIncome.Equal(decimal.NewFromInt(2671)))
	assert.True(t, result.MonthlyExpenses.Equal(decimal.RequireFromString("1736.15")))
	assert.True(t, result.DisposableIncome.Equal(decimal.RequireFromString("934.85")))
	assert.Equal(t, 821, result.CreditScore)
	assert.True(t, result.RecommendedLimit.Equal(decimal.RequireFromString("934.85")))
	assert.True(t, result.CanAfford, "400 is within 2.5x disposable income")

	result = svc.Assess(ctx, addr, decimal.NewFromInt(5000))
	assert.False(t, result.CanAfford, "5000 exceeds 2.5x disposable income")
}

func TestAffordabilityDeterministic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewAffordabilityService(store.NewMemoryStore(), logger)
	ctx := context.Background()

	addr := "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"
	first := svc.Assess(ctx, addr, decimal.NewFromInt(400))
	second := svc.Assess(ctx, addr, decimal.NewFromInt(400))
	assert.Equal(t, first, second)
}

func TestAffordabilityRecommendedLimitCap(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewAffordabilityService(store.NewMemoryStore(), logger)

	// Seed 0x2710 = 10000: income 2500 + 10000%2500 = 2500, limit 875.
	result := svc.Assess(context.Background(), "0x0000000000000000000000000000000000002710", decimal.NewFromInt(100))
	assert.True(t, result.RecommendedLimit.LessThanOrEqual(decimal.NewFromInt(4000)))
}

func TestAffordabilityRecordsVerdictOnUser(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := store.NewMemoryStore()
	svc := NewAffordabilityService(mem, logger)
	ctx := context.Background()

	addr := "0x00000000000000000000000000000000000000ab"
	user := &store.User{WalletAddress: addr, KYCStatus: "pending", AffordabilityStatus: "not_checked"}
	require.NoError(t, mem.CreateUser(ctx, user))

	svc.Assess(ctx, addr, decimal.NewFromInt(400))

	updated, err := mem.GetUserByWallet(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "verified", updated.AffordabilityStatus)
}
