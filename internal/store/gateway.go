package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fanpay/internal/common/middleware"
	"fanpay/internal/events"
)

// StakingAPY is the annual percentage yield applied to staked collateral.
var StakingAPY = decimal.RequireFromString("0.125")

// CreatePurchaseRequest carries everything needed to record a purchase
// after a successful down payment.
type CreatePurchaseRequest struct {
	WalletAddress      string
	AssetID            int64
	TotalAmount        decimal.Decimal
	DownPaymentAmount  decimal.Decimal
	InstallmentAmount  decimal.Decimal
	FinalPaymentAmount decimal.Decimal
	PaymentMethod      string
	TransactionHash    string
}

// Gateway sits between the checkout flow and the Store. It owns the
// per-wallet purchase list cache and publishes domain events after writes.
type Gateway struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string][]*PurchaseDetail // wallet address -> purchase details
}

// NewGateway creates a gateway over the given store and event publisher.
func NewGateway(s Store, publisher events.Publisher, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:     s,
		publisher: publisher,
		logger:    logger,
		cache:     make(map[string][]*PurchaseDetail),
	}
}

// Store returns the underlying store for read-only passthroughs.
func (g *Gateway) Store() Store {
	return g.store
}

// CreateDownPaymentPurchase records a new purchase after a successful down
// payment: the user is created if absent, the purchase starts active and a
// completed payment row is written for the down payment. The payment row
// carries the payment method identifier as its type so payment history can
// tell the rails apart.
func (g *Gateway) CreateDownPaymentPurchase(ctx context.Context, req CreatePurchaseRequest) (*PurchaseDetail, error) {
	user, err := g.store.GetUserByWallet(ctx, req.WalletAddress)
	if IsNotFound(err) {
		user = &User{
			WalletAddress:       req.WalletAddress,
			KYCStatus:           "pending",
			AffordabilityStatus: "not_checked",
		}
		if err := g.store.CreateUser(ctx, user); err != nil {
			// Lost a race with a concurrent checkout for the same wallet.
			if err != ErrAlreadyExists {
				return nil, fmt.Errorf("creating user: %w", err)
			}
			if user, err = g.store.GetUserByWallet(ctx, req.WalletAddress); err != nil {
				return nil, fmt.Errorf("fetching user after conflict: %w", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	purchase := &Purchase{
		UserID:             user.ID,
		AssetID:            req.AssetID,
		TotalAmount:        req.TotalAmount,
		DownPaymentAmount:  req.DownPaymentAmount,
		InstallmentAmount:  req.InstallmentAmount,
		FinalPaymentAmount: req.FinalPaymentAmount,
		Status:             PurchaseActive,
		PaymentMethod:      req.PaymentMethod,
		StakedAmount:       decimal.Zero,
		YieldEarned:        decimal.Zero,
		TransactionHash:    req.TransactionHash,
	}
	now := time.Now().UTC()
	payment := &Payment{
		Amount:          req.DownPaymentAmount,
		PaymentType:     req.PaymentMethod,
		Status:          PaymentCompleted,
		DueDate:         now,
		PaidAt:          &now,
		TransactionHash: req.TransactionHash,
	}
	// Atomic write: a failure here must not leave a purchase without its
	// down-payment record, or a retry would duplicate the purchase.
	if err := g.store.CreatePurchaseWithDownPayment(ctx, purchase, payment); err != nil {
		return nil, fmt.Errorf("creating purchase with down payment: %w", err)
	}

	g.invalidate(req.WalletAddress)
	g.publish(ctx, events.EventPurchaseCreated, events.SubjectPurchaseCreated, events.PurchaseCreatedEvent{
		PurchaseID:        purchase.ID,
		WalletAddress:     req.WalletAddress,
		AssetID:           req.AssetID,
		TotalAmount:       req.TotalAmount,
		DownPaymentAmount: req.DownPaymentAmount,
		PaymentMethod:     req.PaymentMethod,
		TransactionHash:   req.TransactionHash,
	})

	asset, err := g.store.GetAsset(ctx, req.AssetID)
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("fetching asset: %w", err)
	}

	return &PurchaseDetail{
		Purchase: *purchase,
		Asset:    asset,
		Payments: []*Payment{payment},
	}, nil
}

// RecordPayment records a completed installment or final payment against a
// purchase. A final payment marks the purchase completed.
func (g *Gateway) RecordPayment(ctx context.Context, purchaseID, paymentType string, amount decimal.Decimal, txHash string) (*Payment, error) {
	purchase, err := g.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("fetching purchase: %w", err)
	}

	now := time.Now().UTC()
	payment := &Payment{
		PurchaseID:      purchase.ID,
		Amount:          amount,
		PaymentType:     paymentType,
		Status:          PaymentCompleted,
		DueDate:         now,
		PaidAt:          &now,
		TransactionHash: txHash,
	}
	if err := g.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("creating payment record: %w", err)
	}

	if paymentType == PaymentTypeFinal {
		status := PurchaseCompleted
		if _, err := g.store.UpdatePurchase(ctx, purchase.ID, PurchaseUpdate{Status: &status}); err != nil {
			return nil, fmt.Errorf("completing purchase: %w", err)
		}
	}

	g.invalidateUser(ctx, purchase.UserID)
	g.publish(ctx, events.EventPaymentCompleted, events.SubjectPaymentCompleted, events.PaymentCompletedEvent{
		PaymentID:       payment.ID,
		PurchaseID:      purchase.ID,
		Amount:          amount,
		PaymentType:     paymentType,
		TransactionHash: txHash,
		PaidAt:          now,
	})

	return payment, nil
}

// Stake marks a purchase's collateral as staked for yield generation.
func (g *Gateway) Stake(ctx context.Context, purchaseID string, amount decimal.Decimal, txHash string) (*Purchase, error) {
	enabled := true
	upd := PurchaseUpdate{
		YieldEnabled: &enabled,
		StakedAmount: &amount,
	}
	if txHash != "" {
		upd.TransactionHash = &txHash
	}

	purchase, err := g.store.UpdatePurchase(ctx, purchaseID, upd)
	if err != nil {
		return nil, fmt.Errorf("staking purchase: %w", err)
	}

	g.invalidateUser(ctx, purchase.UserID)
	g.publish(ctx, events.EventStakingStaked, events.SubjectStakingStaked, events.StakingStakedEvent{
		PurchaseID:      purchase.ID,
		StakedAmount:    amount,
		EstimatedAPY:    StakingAPY,
		TransactionHash: txHash,
	})

	return purchase, nil
}

// RefreshYield recomputes and persists accrued yield for a staked purchase,
// pro-rated from the staking timestamp at the configured APY.
func (g *Gateway) RefreshYield(ctx context.Context, purchaseID string) (*Purchase, error) {
	purchase, err := g.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("fetching purchase: %w", err)
	}
	if !purchase.YieldEnabled || purchase.StakedAmount.IsZero() {
		return purchase, nil
	}

	days := decimal.NewFromFloat(time.Since(purchase.UpdatedAt).Hours() / 24)
	if days.IsNegative() {
		days = decimal.Zero
	}
	accrued := purchase.StakedAmount.Mul(StakingAPY).Mul(days).Div(decimal.NewFromInt(365))
	earned := purchase.YieldEarned.Add(accrued).Round(8)

	updated, err := g.store.UpdatePurchase(ctx, purchaseID, PurchaseUpdate{YieldEarned: &earned})
	if err != nil {
		return nil, fmt.Errorf("updating yield: %w", err)
	}

	g.invalidateUser(ctx, updated.UserID)
	return updated, nil
}

// EstimatedAnnualYield returns the projected yearly yield for a staked amount.
func EstimatedAnnualYield(stakedAmount decimal.Decimal) decimal.Decimal {
	return stakedAmount.Mul(StakingAPY)
}

// PurchaseDetails returns a wallet's purchases with their assets and payment
// history, served from the per-wallet cache when fresh.
func (g *Gateway) PurchaseDetails(ctx context.Context, walletAddress string) ([]*PurchaseDetail, error) {
	g.mu.Lock()
	if cached, ok := g.cache[walletAddress]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	user, err := g.store.GetUserByWallet(ctx, walletAddress)
	if IsNotFound(err) {
		return []*PurchaseDetail{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	purchases, err := g.store.ListPurchasesByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}

	details := make([]*PurchaseDetail, 0, len(purchases))
	for _, p := range purchases {
		asset, err := g.store.GetAsset(ctx, p.AssetID)
		if err != nil && !IsNotFound(err) {
			return nil, fmt.Errorf("fetching asset: %w", err)
		}
		payments, err := g.store.ListPaymentsByPurchase(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("listing payments: %w", err)
		}
		details = append(details, &PurchaseDetail{
			Purchase: *p,
			Asset:    asset,
			Payments: payments,
		})
	}

	g.mu.Lock()
	g.cache[walletAddress] = details
	g.mu.Unlock()

	return details, nil
}

// PurchaseDetail returns a single purchase with its asset and payments.
func (g *Gateway) PurchaseDetail(ctx context.Context, purchaseID string) (*PurchaseDetail, error) {
	purchase, err := g.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	asset, err := g.store.GetAsset(ctx, purchase.AssetID)
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("fetching asset: %w", err)
	}
	payments, err := g.store.ListPaymentsByPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return &PurchaseDetail{
		Purchase: *purchase,
		Asset:    asset,
		Payments: payments,
	}, nil
}

func (g *Gateway) invalidate(walletAddress string) {
	g.mu.Lock()
	delete(g.cache, walletAddress)
	g.mu.Unlock()
}

// invalidateUser clears cached lists for the wallet owning the given user id.
// The cache is keyed by wallet address so the user record is looked up first.
func (g *Gateway) invalidateUser(ctx context.Context, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Small cache; a full sweep is cheaper than a reverse index.
	for wallet, details := range g.cache {
		for _, d := range details {
			if d.UserID == userID {
				delete(g.cache, wallet)
				break
			}
		}
	}
}

func (g *Gateway) publish(ctx context.Context, eventType events.EventType, subject string, data any) {
	envelope, err := events.NewEnvelope(eventType, middleware.GetCorrelationID(ctx), data)
	if err != nil {
		g.logger.Error("failed to build event envelope", "type", eventType, "error", err)
		return
	}
	if err := g.publisher.Publish(ctx, subject, envelope); err != nil {
		g.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
