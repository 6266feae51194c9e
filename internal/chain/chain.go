// Package chain abstracts wallet and transaction access to the Chiliz Spicy
// network so the checkout flow can run against the real chain or a simulator.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Chiliz Spicy testnet parameters.
const (
	SpicyChainID    = 88882
	SpicyRPCURL     = "https://spicy-rpc.chiliz.com"
	SpicyExplorer   = "https://testnet.chiliscan.com"
	ContractAddress = "0x2C85616cAE23Bd11D7b07F5B3aDd64c8E77796B2"

	// Chiliz governance staking precompile and its function selectors.
	StakingContractAddress = "0x0000000000000000000000000000000000001000"
	ValidatorAddress       = "0x742d35Cc6661C0532c26013575AD7c6ba8d87158"
	DelegateSelector       = "0x026e402b"
	UndelegateSelector     = "0x58d3232f"

	DefaultGasLimit = 500000
)

// CHZPriceUSD is the fixed conversion rate used to turn USD checkout amounts
// into CHZ transaction values.
var CHZPriceUSD = decimal.RequireFromString("0.10")

// Sentinel errors returned by adapters.
var (
	ErrNoWallet       = errors.New("no wallet connected")
	ErrWrongNetwork   = errors.New("wallet connected to wrong network")
	ErrRejected       = errors.New("transaction rejected by signer")
	ErrConfirmTimeout = errors.New("timed out waiting for transaction confirmation")
)

// Config holds chain connection parameters.
type Config struct {
	RPCURL          string `envconfig:"CHAIN_RPC_URL" default:"https://spicy-rpc.chiliz.com"`
	ChainID         int64  `envconfig:"CHAIN_ID" default:"88882"`
	ContractAddress string `envconfig:"CHAIN_CONTRACT_ADDRESS" default:"0x2C85616cAE23Bd11D7b07F5B3aDd64c8E77796B2"`
	StakingAddress  string `envconfig:"CHAIN_STAKING_ADDRESS" default:"0x0000000000000000000000000000000000001000"`
	PrivateKey      string `envconfig:"CHAIN_PRIVATE_KEY"`
	GasLimit        uint64 `envconfig:"CHAIN_GAS_LIMIT" default:"500000"`
}

// TxReceipt is the confirmed result of a submitted transaction.
type TxReceipt struct {
	Hash        string
	BlockNumber uint64
	GasUsed     uint64
}

// Adapter is the wallet and transaction surface the checkout flow depends on.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Connect establishes the wallet session and returns the signer address.
	Connect(ctx context.Context) (string, error)

	// ConnectedAddress returns the current signer address, or ErrNoWallet.
	ConnectedAddress() (string, error)

	// EnsureNetwork verifies the connection targets the expected chain,
	// switching to it where the transport allows.
	EnsureNetwork(ctx context.Context) error

	// CreatePurchase submits the on-chain purchase registration with the
	// asset id and USD amounts converted to CHZ.
	CreatePurchase(ctx context.Context, assetID int64, totalUSD, downPaymentUSD decimal.Decimal) (*TxReceipt, error)

	// MakePayment sends an installment or final payment in CHZ.
	MakePayment(ctx context.Context, purchaseID string, amountUSD decimal.Decimal) (*TxReceipt, error)

	// Stake delegates the given CHZ amount to the configured validator.
	Stake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error)

	// WithdrawStake undelegates the given CHZ amount from the validator.
	WithdrawStake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error)

	// Balance returns the signer's CHZ balance.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// Disconnect tears down the wallet session.
	Disconnect() error
}

// USDToCHZ converts a USD amount to CHZ at the fixed rate.
func USDToCHZ(usd decimal.Decimal) decimal.Decimal {
	return usd.Div(CHZPriceUSD)
}

var weiPerCHZ = decimal.New(1, 18)

// ToWei converts a CHZ amount to wei, truncating sub-wei precision.
func ToWei(chz decimal.Decimal) *big.Int {
	return chz.Mul(weiPerCHZ).BigInt()
}

// FromWei converts a wei amount to CHZ.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}
