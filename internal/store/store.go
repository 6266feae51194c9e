package store

import (
	"context"
	"errors"
)

// Common errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store persists checkout records. The reference implementation is the
// in-memory store; a Postgres implementation is provided for deployments
// that want durability.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUserByWallet(ctx context.Context, walletAddress string) (*User, error)
	UpdateUserVerification(ctx context.Context, walletAddress, kycStatus string, affordabilityStatus *string) (*User, error)

	// Asset operations
	ListAssets(ctx context.Context) ([]*Asset, error)
	GetAsset(ctx context.Context, id int64) (*Asset, error)

	// Wallet verification cache
	GetWalletVerification(ctx context.Context, walletAddress string) (*WalletVerification, error)
	CreateWalletVerification(ctx context.Context, v *WalletVerification) error

	// Purchase operations
	CreatePurchase(ctx context.Context, purchase *Purchase) error
	// CreatePurchaseWithDownPayment writes a purchase and its down-payment
	// record atomically: either both rows persist or neither does.
	CreatePurchaseWithDownPayment(ctx context.Context, purchase *Purchase, payment *Payment) error
	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	ListPurchasesByUser(ctx context.Context, userID string) ([]*Purchase, error)
	UpdatePurchase(ctx context.Context, id string, upd PurchaseUpdate) (*Purchase, error)

	// Payment operations
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPaymentsByPurchase(ctx context.Context, purchaseID string) ([]*Payment, error)
	UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (*Payment, error)
}

// IsNotFound reports whether err is a store not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
