// Package store provides the persistence gateway for checkout records.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a wallet-scoped account record.
type User struct {
	ID                  string    `json:"id"`
	WalletAddress       string    `json:"wallet_address"`
	IsVerified          bool      `json:"is_verified"`
	KYCStatus           string    `json:"kyc_status"`           // pending, verified, failed
	AffordabilityStatus string    `json:"affordability_status"` // not_checked, verified, failed
	CreatedAt           time.Time `json:"created_at"`
}

// Asset is a purchasable sports/digital asset.
type Asset struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"` // fan_token, nft, membership
	IsActive    bool            `json:"is_active"`
}

// PurchaseStatus is the lifecycle status of a purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseActive    PurchaseStatus = "active"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseDefaulted PurchaseStatus = "defaulted"
)

// Purchase is a BNPL purchase created by a successful down payment.
// Never deleted; mutated by installment payments and yield staking.
type Purchase struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	AssetID            int64           `json:"asset_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	DownPaymentAmount  decimal.Decimal `json:"down_payment_amount"`
	InstallmentAmount  decimal.Decimal `json:"installment_amount"`
	FinalPaymentAmount decimal.Decimal `json:"final_payment_amount"`
	Status             PurchaseStatus  `json:"status"`
	PaymentMethod      string          `json:"payment_method"`
	YieldEnabled       bool            `json:"yield_enabled"`
	StakedAmount       decimal.Decimal `json:"staked_amount"`
	YieldEarned        decimal.Decimal `json:"yield_earned"`
	TransactionHash    string          `json:"transaction_hash,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PaymentStatus is the lifecycle status of a single payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Scheduled payment types. The initial down-payment record carries the
// payment method identifier instead, so "My Payments" views can tell the
// rails apart without joining back to the purchase.
const (
	PaymentTypeDownPayment = "down_payment"
	PaymentTypeInstallment = "installment"
	PaymentTypeFinal       = "final_payment"
)

// Payment is a child record of a Purchase.
type Payment struct {
	ID              string          `json:"id"`
	PurchaseID      string          `json:"purchase_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentType     string          `json:"payment_type"`
	Status          PaymentStatus   `json:"status"`
	DueDate         time.Time       `json:"due_date"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
}

// WalletVerification is the cached eligibility check result for an address.
// The first result is kept indefinitely; re-verification returns it.
type WalletVerification struct {
	WalletAddress    string    `json:"wallet_address"`
	TransactionCount int       `json:"transaction_count"`
	AccountAge       int       `json:"account_age"` // days
	IsBlacklisted    bool      `json:"is_blacklisted"`
	VerifiedAt       time.Time `json:"verified_at"`
}

// PurchaseDetail is a purchase augmented with its asset and payment history.
type PurchaseDetail struct {
	Purchase
	Asset    *Asset     `json:"asset,omitempty"`
	Payments []*Payment `json:"payments"`
}

// PurchaseUpdate is a partial update to a purchase. Nil fields are unchanged.
type PurchaseUpdate struct {
	Status          *PurchaseStatus
	PaymentMethod   *string
	YieldEnabled    *bool
	StakedAmount    *decimal.Decimal
	YieldEarned     *decimal.Decimal
	TransactionHash *string
}

// PaymentUpdate is a partial update to a payment. Nil fields are unchanged.
type PaymentUpdate struct {
	Status          *PaymentStatus
	PaidAt          *time.Time
	TransactionHash *string
}
