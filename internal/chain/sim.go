package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// SimulatedTxHash derives a deterministic pseudo transaction hash from the
// given parts. Used where a real transaction could not be submitted but the
// flow records a hash-shaped reference.
func SimulatedTxHash(parts ...string) string {
	return fmt.Sprintf("0x%x", crypto.Keccak256([]byte(strings.Join(parts, "|"))))
}

// SimAdapter is a deterministic in-process chain used for demo deployments
// and tests. Transaction hashes are derived from a per-adapter sequence so
// runs are reproducible.
type SimAdapter struct {
	mu        sync.Mutex
	address   string
	connected bool
	balance   decimal.Decimal
	staked    decimal.Decimal
	seq       atomic.Uint64

	// FailSubmits makes every transaction return ErrRejected; used to
	// exercise failure paths in tests.
	FailSubmits bool
	// WrongNetwork makes EnsureNetwork fail.
	WrongNetwork bool
}

// NewSimAdapter creates a simulator for the given wallet address with a
// starting CHZ balance.
func NewSimAdapter(address string, balanceCHZ decimal.Decimal) *SimAdapter {
	return &SimAdapter{
		address: address,
		balance: balanceCHZ,
	}
}

// Connect marks the simulated wallet connected.
func (a *SimAdapter) Connect(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return a.address, nil
}

// ConnectedAddress returns the simulated address, or ErrNoWallet.
func (a *SimAdapter) ConnectedAddress() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return "", ErrNoWallet
	}
	return a.address, nil
}

// EnsureNetwork succeeds unless WrongNetwork is set.
func (a *SimAdapter) EnsureNetwork(ctx context.Context) error {
	if a.WrongNetwork {
		return ErrWrongNetwork
	}
	return nil
}

// CreatePurchase simulates the on-chain purchase registration.
func (a *SimAdapter) CreatePurchase(ctx context.Context, assetID int64, totalUSD, downPaymentUSD decimal.Decimal) (*TxReceipt, error) {
	return a.submit(ctx, USDToCHZ(downPaymentUSD), fmt.Sprintf("purchase:%d:%s", assetID, totalUSD))
}

// MakePayment simulates an installment or final payment.
func (a *SimAdapter) MakePayment(ctx context.Context, purchaseID string, amountUSD decimal.Decimal) (*TxReceipt, error) {
	return a.submit(ctx, USDToCHZ(amountUSD), "payment:"+purchaseID)
}

// Stake simulates delegation to the validator.
func (a *SimAdapter) Stake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error) {
	receipt, err := a.submit(ctx, amountCHZ, "stake:"+amountCHZ.String())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.staked = a.staked.Add(amountCHZ)
	a.mu.Unlock()
	return receipt, nil
}

// WithdrawStake simulates undelegation.
func (a *SimAdapter) WithdrawStake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error) {
	a.mu.Lock()
	if amountCHZ.GreaterThan(a.staked) {
		a.mu.Unlock()
		return nil, fmt.Errorf("withdraw %s exceeds staked %s", amountCHZ, a.staked)
	}
	a.staked = a.staked.Sub(amountCHZ)
	a.mu.Unlock()

	receipt, err := a.submit(ctx, decimal.Zero, "unstake:"+amountCHZ.String())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.balance = a.balance.Add(amountCHZ)
	a.mu.Unlock()
	return receipt, nil
}

// Balance returns the remaining simulated CHZ balance.
func (a *SimAdapter) Balance(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return decimal.Zero, ErrNoWallet
	}
	return a.balance, nil
}

// Disconnect marks the simulated wallet disconnected.
func (a *SimAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

// Staked returns the total simulated staked amount.
func (a *SimAdapter) Staked() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staked
}

func (a *SimAdapter) submit(ctx context.Context, valueCHZ decimal.Decimal, payload string) (*TxReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return nil, ErrNoWallet
	}
	if a.WrongNetwork {
		return nil, ErrWrongNetwork
	}
	if a.FailSubmits {
		return nil, ErrRejected
	}

	a.mu.Lock()
	if valueCHZ.GreaterThan(a.balance) {
		a.mu.Unlock()
		return nil, fmt.Errorf("insufficient balance: need %s CHZ, have %s", valueCHZ, a.balance)
	}
	a.balance = a.balance.Sub(valueCHZ)
	a.mu.Unlock()

	seq := a.seq.Add(1)
	hash := crypto.Keccak256([]byte(fmt.Sprintf("%s|%s|%d", a.address, payload, seq)))

	return &TxReceipt{
		Hash:        fmt.Sprintf("0x%x", hash),
		BlockNumber: seq,
		GasUsed:     21000,
	}, nil
}

var _ Adapter = (*SimAdapter)(nil)
