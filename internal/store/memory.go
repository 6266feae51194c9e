package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// MemoryStore is the reference single-process store. All maps are guarded by
// one mutex; every accessor returns copies so callers cannot mutate shared state.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*User   // keyed by id
	usersByWallet map[string]string  // wallet address -> user id
	assets        map[int64]*Asset   // keyed by id
	assetOrder    []int64
	verifications map[string]*WalletVerification // keyed by wallet address
	purchases     map[string]*Purchase           // keyed by id
	payments      map[string]*Payment            // keyed by id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		usersByWallet: make(map[string]string),
		assets:        make(map[int64]*Asset),
		verifications: make(map[string]*WalletVerification),
		purchases:     make(map[string]*Purchase),
		payments:      make(map[string]*Payment),
	}
}

// NewSeededMemoryStore creates an in-memory store preloaded with demo assets.
func NewSeededMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	for _, a := range demoAssets() {
		s.assets[a.ID] = a
		s.assetOrder = append(s.assetOrder, a.ID)
	}
	return s
}

func demoAssets() []*Asset {
	mustDec := decimal.RequireFromString
	return []*Asset{
		{ID: 1, Name: "Paris Saint-Germain Fan Token", Symbol: "PSG", Description: "Official PSG fan token with voting rights", ImageURL: "/assets/psg.png", Price: mustDec("400.00"), Category: "fan_token", IsActive: true},
		{ID: 2, Name: "FC Barcelona Fan Token", Symbol: "BAR", Description: "Official FC Barcelona fan token", ImageURL: "/assets/bar.png", Price: mustDec("250.00"), Category: "fan_token", IsActive: true},
		{ID: 3, Name: "Signed Matchday Jersey NFT", Symbol: "JERSEY", Description: "Limited edition signed jersey collectible", ImageURL: "/assets/jersey.png", Price: mustDec("1200.00"), Category: "nft", IsActive: true},
		{ID: 4, Name: "VIP Season Membership", Symbol: "VIP", Description: "Season-long VIP stadium access", ImageURL: "/assets/vip.png", Price: mustDec("800.00"), Category: "membership", IsActive: true},
	}
}

// CreateUser inserts a new user record.
func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByWallet[user.WalletAddress]; exists {
		return ErrAlreadyExists
	}

	u := *user
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.users[u.ID] = &u
	s.usersByWallet[u.WalletAddress] = u.ID
	*user = u
	return nil
}

// GetUserByWallet retrieves a user by wallet address.
func (s *MemoryStore) GetUserByWallet(ctx context.Context, walletAddress string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByWallet[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

// UpdateUserVerification updates a user's verification status fields.
func (s *MemoryStore) UpdateUserVerification(ctx context.Context, walletAddress, kycStatus string, affordabilityStatus *string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByWallet[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}

	u := s.users[id]
	u.KYCStatus = kycStatus
	u.IsVerified = kycStatus == "verified"
	if affordabilityStatus != nil {
		u.AffordabilityStatus = *affordabilityStatus
	}

	out := *u
	return &out, nil
}

// ListAssets lists all active assets in seed order.
func (s *MemoryStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Asset, 0, len(s.assetOrder))
	for _, id := range s.assetOrder {
		a := *s.assets[id]
		if a.IsActive {
			out = append(out, &a)
		}
	}
	return out, nil
}

// GetAsset retrieves an asset by id.
func (s *MemoryStore) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

// GetWalletVerification retrieves a cached verification result.
func (s *MemoryStore) GetWalletVerification(ctx context.Context, walletAddress string) (*WalletVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

// CreateWalletVerification caches a verification result for an address.
func (s *MemoryStore) CreateWalletVerification(ctx context.Context, v *WalletVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *v
	if rec.VerifiedAt.IsZero() {
		rec.VerifiedAt = time.Now().UTC()
	}
	s.verifications[rec.WalletAddress] = &rec
	*v = rec
	return nil
}

// CreatePurchase inserts a new purchase record.
func (s *MemoryStore) CreatePurchase(ctx context.Context, purchase *Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *purchase
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	s.purchases[p.ID] = &p
	*purchase = p
	return nil
}

// CreatePurchaseWithDownPayment inserts a purchase and its down-payment
// record under one lock so a reader never observes the purchase alone.
func (s *MemoryStore) CreatePurchaseWithDownPayment(ctx context.Context, purchase *Purchase, payment *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *purchase
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	pay := *payment
	if pay.ID == "" {
		pay.ID = ulid.Make().String()
	}
	pay.PurchaseID = p.ID

	s.purchases[p.ID] = &p
	s.payments[pay.ID] = &pay
	*purchase = p
	*payment = pay
	return nil
}

// GetPurchase retrieves a purchase by id.
func (s *MemoryStore) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

// ListPurchasesByUser lists purchases for a user, oldest first.
func (s *MemoryStore) ListPurchasesByUser(ctx context.Context, userID string) ([]*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdatePurchase applies a partial update to a purchase.
func (s *MemoryStore) UpdatePurchase(ctx context.Context, id string, upd PurchaseUpdate) (*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.PaymentMethod != nil {
		p.PaymentMethod = *upd.PaymentMethod
	}
	if upd.YieldEnabled != nil {
		p.YieldEnabled = *upd.YieldEnabled
	}
	if upd.StakedAmount != nil {
		p.StakedAmount = *upd.StakedAmount
	}
	if upd.YieldEarned != nil {
		p.YieldEarned = *upd.YieldEarned
	}
	if upd.TransactionHash != nil {
		p.TransactionHash = *upd.TransactionHash
	}
	p.UpdatedAt = time.Now().UTC()

	out := *p
	return &out, nil
}

// CreatePayment inserts a new payment record.
func (s *MemoryStore) CreatePayment(ctx context.Context, payment *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *payment
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	s.payments[p.ID] = &p
	*payment = p
	return nil
}

// GetPayment retrieves a payment by id.
func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

// ListPaymentsByPurchase lists payments for a purchase, oldest due first.
func (s *MemoryStore) ListPaymentsByPurchase(ctx context.Context, purchaseID string) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Payment
	for _, p := range s.payments {
		if p.PurchaseID == purchaseID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

// UpdatePayment applies a partial update to a payment.
func (s *MemoryStore) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.PaidAt != nil {
		p.PaidAt = upd.PaidAt
	}
	if upd.TransactionHash != nil {
		p.TransactionHash = *upd.TransactionHash
	}

	out := *p
	return &out, nil
}

var _ Store = (*MemoryStore)(nil)
