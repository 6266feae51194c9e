package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"fanpay/internal/common/database"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, wallet_address, is_verified, kyc_status, affordability_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID, user.WalletAddress, user.IsVerified,
		user.KYCStatus, user.AffordabilityStatus, user.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetUserByWallet retrieves a user by wallet address.
func (s *PostgresStore) GetUserByWallet(ctx context.Context, walletAddress string) (*User, error) {
	query := `
		SELECT id, wallet_address, is_verified, kyc_status, affordability_status, created_at
		FROM users
		WHERE wallet_address = $1
	`

	var u User
	err := s.db.QueryRow(ctx, query, walletAddress).Scan(
		&u.ID, &u.WalletAddress, &u.IsVerified,
		&u.KYCStatus, &u.AffordabilityStatus, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserVerification updates a user's verification status fields.
func (s *PostgresStore) UpdateUserVerification(ctx context.Context, walletAddress, kycStatus string, affordabilityStatus *string) (*User, error) {
	query := `
		UPDATE users SET
			kyc_status = $2,
			is_verified = ($2 = 'verified'),
			affordability_status = COALESCE($3, affordability_status)
		WHERE wallet_address = $1
		RETURNING id, wallet_address, is_verified, kyc_status, affordability_status, created_at
	`

	var u User
	err := s.db.QueryRow(ctx, query, walletAddress, kycStatus, affordabilityStatus).Scan(
		&u.ID, &u.WalletAddress, &u.IsVerified,
		&u.KYCStatus, &u.AffordabilityStatus, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListAssets lists all active assets.
func (s *PostgresStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	query := `
		SELECT id, name, symbol, description, image_url, price, category, is_active
		FROM assets
		WHERE is_active = true
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetAsset retrieves an asset by id.
func (s *PostgresStore) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	query := `
		SELECT id, name, symbol, description, image_url, price, category, is_active
		FROM assets
		WHERE id = $1
	`

	a, err := scanAsset(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID, &a.Name, &a.Symbol, &a.Description,
		&a.ImageURL, &a.Price, &a.Category, &a.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetWalletVerification retrieves a cached verification result.
func (s *PostgresStore) GetWalletVerification(ctx context.Context, walletAddress string) (*WalletVerification, error) {
	query := `
		SELECT wallet_address, transaction_count, account_age, is_blacklisted, verified_at
		FROM wallet_verifications
		WHERE wallet_address = $1
	`

	var v WalletVerification
	err := s.db.QueryRow(ctx, query, walletAddress).Scan(
		&v.WalletAddress, &v.TransactionCount, &v.AccountAge,
		&v.IsBlacklisted, &v.VerifiedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CreateWalletVerification caches a verification result for an address.
func (s *PostgresStore) CreateWalletVerification(ctx context.Context, v *WalletVerification) error {
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO wallet_verifications (wallet_address, transaction_count, account_age, is_blacklisted, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address) DO UPDATE SET
			transaction_count = EXCLUDED.transaction_count,
			account_age = EXCLUDED.account_age,
			is_blacklisted = EXCLUDED.is_blacklisted,
			verified_at = EXCLUDED.verified_at
	`

	_, err := s.db.Exec(ctx, query,
		v.WalletAddress, v.TransactionCount, v.AccountAge, v.IsBlacklisted, v.VerifiedAt,
	)
	return err
}

// CreatePurchase inserts a new purchase.
func (s *PostgresStore) CreatePurchase(ctx context.Context, purchase *Purchase) error {
	return insertPurchase(ctx, s.db, purchase)
}

// CreatePurchaseWithDownPayment inserts a purchase and its down-payment
// record in one transaction so a failed payment insert rolls back the
// purchase row.
func (s *PostgresStore) CreatePurchaseWithDownPayment(ctx context.Context, purchase *Purchase, payment *Payment) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := insertPurchase(ctx, tx, purchase); err != nil {
			return err
		}
		payment.PurchaseID = purchase.ID
		return insertPayment(ctx, tx, payment)
	})
}

// insertPurchase writes a purchase row through the pool or an open transaction.
func insertPurchase(ctx context.Context, q database.Querier, purchase *Purchase) error {
	if purchase.ID == "" {
		purchase.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	purchase.UpdatedAt = now

	query := `
		INSERT INTO purchases (
			id, user_id, asset_id,
			total_amount, down_payment_amount, installment_amount, final_payment_amount,
			status, payment_method, yield_enabled, staked_amount, yield_earned,
			transaction_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := q.Exec(ctx, query,
		purchase.ID, purchase.UserID, purchase.AssetID,
		purchase.TotalAmount, purchase.DownPaymentAmount, purchase.InstallmentAmount, purchase.FinalPaymentAmount,
		purchase.Status, purchase.PaymentMethod, purchase.YieldEnabled, purchase.StakedAmount, purchase.YieldEarned,
		nullStr(purchase.TransactionHash), purchase.CreatedAt, purchase.UpdatedAt,
	)
	return err
}

const purchaseColumns = `
	id, user_id, asset_id,
	total_amount, down_payment_amount, installment_amount, final_payment_amount,
	status, payment_method, yield_enabled, staked_amount, yield_earned,
	transaction_hash, created_at, updated_at
`

// GetPurchase retrieves a purchase by id.
func (s *PostgresStore) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	p, err := scanPurchase(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPurchasesByUser lists purchases for a user, oldest first.
func (s *PostgresStore) ListPurchasesByUser(ctx context.Context, userID string) ([]*Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []*Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// UpdatePurchase applies a partial update to a purchase.
func (s *PostgresStore) UpdatePurchase(ctx context.Context, id string, upd PurchaseUpdate) (*Purchase, error) {
	query := `
		UPDATE purchases SET
			status = COALESCE($2, status),
			payment_method = COALESCE($3, payment_method),
			yield_enabled = COALESCE($4, yield_enabled),
			staked_amount = COALESCE($5, staked_amount),
			yield_earned = COALESCE($6, yield_earned),
			transaction_hash = COALESCE($7, transaction_hash),
			updated_at = $8
		WHERE id = $1
		RETURNING ` + purchaseColumns

	p, err := scanPurchase(s.db.QueryRow(ctx, query, id,
		upd.Status, upd.PaymentMethod, upd.YieldEnabled,
		upd.StakedAmount, upd.YieldEarned, upd.TransactionHash,
		time.Now().UTC(),
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	var txHash *string

	err := row.Scan(
		&p.ID, &p.UserID, &p.AssetID,
		&p.TotalAmount, &p.DownPaymentAmount, &p.InstallmentAmount, &p.FinalPaymentAmount,
		&p.Status, &p.PaymentMethod, &p.YieldEnabled, &p.StakedAmount, &p.YieldEarned,
		&txHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if txHash != nil {
		p.TransactionHash = *txHash
	}
	return &p, nil
}

// CreatePayment inserts a new payment.
func (s *PostgresStore) CreatePayment(ctx context.Context, payment *Payment) error {
	return insertPayment(ctx, s.db, payment)
}

// insertPayment writes a payment row through the pool or an open transaction.
func insertPayment(ctx context.Context, q database.Querier, payment *Payment) error {
	if payment.ID == "" {
		payment.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO payments (id, purchase_id, amount, payment_type, status, due_date, paid_at, transaction_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.Exec(ctx, query,
		payment.ID, payment.PurchaseID, payment.Amount, payment.PaymentType,
		payment.Status, payment.DueDate, payment.PaidAt, nullStr(payment.TransactionHash),
	)
	return err
}

// GetPayment retrieves a payment by id.
func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	query := `
		SELECT id, purchase_id, amount, payment_type, status, due_date, paid_at, transaction_hash
		FROM payments
		WHERE id = $1
	`

	p, err := scanPayment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPaymentsByPurchase lists payments for a purchase, oldest due first.
func (s *PostgresStore) ListPaymentsByPurchase(ctx context.Context, purchaseID string) ([]*Payment, error) {
	query := `
		SELECT id, purchase_id, amount, payment_type, status, due_date, paid_at, transaction_hash
		FROM payments
		WHERE purchase_id = $1
		ORDER BY due_date ASC
	`

	rows, err := s.db.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdatePayment applies a partial update to a payment.
func (s *PostgresStore) UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) (*Payment, error) {
	query := `
		UPDATE payments SET
			status = COALESCE($2, status),
			paid_at = COALESCE($3, paid_at),
			transaction_hash = COALESCE($4, transaction_hash)
		WHERE id = $1
		RETURNING id, purchase_id, amount, payment_type, status, due_date, paid_at, transaction_hash
	`

	p, err := scanPayment(s.db.QueryRow(ctx, query, id, upd.Status, upd.PaidAt, upd.TransactionHash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var txHash *string

	err := row.Scan(
		&p.ID, &p.PurchaseID, &p.Amount, &p.PaymentType,
		&p.Status, &p.DueDate, &p.PaidAt, &txHash,
	)
	if err != nil {
		return nil, err
	}
	if txHash != nil {
		p.TransactionHash = *txHash
	}
	return &p, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Store = (*PostgresStore)(nil)
