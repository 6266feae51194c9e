package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const contractABI = `[
	{"name":"createPurchase","type":"function","stateMutability":"payable","inputs":[{"name":"assetId","type":"uint256"},{"name":"totalAmount","type":"uint256"},{"name":"downPayment","type":"uint256"}],"outputs":[]},
	{"name":"makePayment","type":"function","stateMutability":"payable","inputs":[{"name":"purchaseId","type":"uint256"}],"outputs":[]}
]`

// EVMAdapter talks to a Chiliz EVM node over JSON-RPC and signs with a
// local private key.
type EVMAdapter struct {
	cfg    Config
	client *ethclient.Client
	abi    abi.ABI
	logger *slog.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration

	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	address   common.Address
	connected bool
}

// NewEVMAdapter dials the configured RPC endpoint. The wallet stays
// disconnected until Connect is called.
func NewEVMAdapter(cfg Config, logger *slog.Logger) (*EVMAdapter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract ABI: %w", err)
	}

	return &EVMAdapter{
		cfg:            cfg,
		client:         client,
		abi:            parsed,
		logger:         logger,
		confirmTimeout: 60 * time.Second,
		pollInterval:   2 * time.Second,
	}, nil
}

// Connect loads the configured private key and verifies the node is
// reachable on the expected chain.
func (a *EVMAdapter) Connect(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.PrivateKey == "" {
		return "", ErrNoWallet
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}

	a.key = key
	a.address = crypto.PubkeyToAddress(key.PublicKey)
	a.connected = true

	if err := a.ensureNetworkLocked(ctx); err != nil {
		a.key = nil
		a.connected = false
		return "", err
	}

	a.logger.Info("wallet connected", "address", a.address.Hex(), "chain_id", a.cfg.ChainID)
	return a.address.Hex(), nil
}

// ConnectedAddress returns the signer address, or ErrNoWallet.
func (a *EVMAdapter) ConnectedAddress() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return "", ErrNoWallet
	}
	return a.address.Hex(), nil
}

// EnsureNetwork checks the node's chain id against the configured one.
func (a *EVMAdapter) EnsureNetwork(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureNetworkLocked(ctx)
}

func (a *EVMAdapter) ensureNetworkLocked(ctx context.Context) error {
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	if chainID.Int64() != a.cfg.ChainID {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongNetwork, chainID.Int64(), a.cfg.ChainID)
	}
	return nil
}

// CreatePurchase registers the purchase on-chain, sending the down payment
// converted to CHZ as the transaction value.
func (a *EVMAdapter) CreatePurchase(ctx context.Context, assetID int64, totalUSD, downPaymentUSD decimal.Decimal) (*TxReceipt, error) {
	data, err := a.abi.Pack("createPurchase",
		big.NewInt(assetID),
		ToWei(USDToCHZ(totalUSD)),
		ToWei(USDToCHZ(downPaymentUSD)),
	)
	if err != nil {
		return nil, fmt.Errorf("encoding createPurchase: %w", err)
	}

	to := common.HexToAddress(a.cfg.ContractAddress)
	return a.submit(ctx, to, ToWei(USDToCHZ(downPaymentUSD)), data)
}

// MakePayment sends an installment or final payment in CHZ.
func (a *EVMAdapter) MakePayment(ctx context.Context, purchaseID string, amountUSD decimal.Decimal) (*TxReceipt, error) {
	data, err := a.abi.Pack("makePayment", purchaseKey(purchaseID))
	if err != nil {
		return nil, fmt.Errorf("encoding makePayment: %w", err)
	}

	to := common.HexToAddress(a.cfg.ContractAddress)
	return a.submit(ctx, to, ToWei(USDToCHZ(amountUSD)), data)
}

// purchaseKey maps an external purchase id to the uint256 key the contract
// uses, by hashing the id.
func purchaseKey(purchaseID string) *big.Int {
	return new(big.Int).SetBytes(crypto.Keccak256([]byte(purchaseID)))
}

// Stake delegates CHZ to the configured validator via the governance
// staking precompile.
func (a *EVMAdapter) Stake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error) {
	data, err := stakingCallData(DelegateSelector, ValidatorAddress, ToWei(amountCHZ))
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(a.cfg.StakingAddress)
	return a.submit(ctx, to, ToWei(amountCHZ), data)
}

// WithdrawStake undelegates CHZ from the validator.
func (a *EVMAdapter) WithdrawStake(ctx context.Context, amountCHZ decimal.Decimal) (*TxReceipt, error) {
	data, err := stakingCallData(UndelegateSelector, ValidatorAddress, ToWei(amountCHZ))
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(a.cfg.StakingAddress)
	return a.submit(ctx, to, nil, data)
}

// stakingCallData builds selector + abi-padded (validator, amount) arguments.
func stakingCallData(selector, validator string, amountWei *big.Int) ([]byte, error) {
	sel, err := hex.DecodeString(strings.TrimPrefix(selector, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding selector: %w", err)
	}

	data := make([]byte, 0, 4+64)
	data = append(data, sel...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(validator).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amountWei.Bytes(), 32)...)
	return data, nil
}

// Balance returns the signer's CHZ balance.
func (a *EVMAdapter) Balance(ctx context.Context) (decimal.Decimal, error) {
	a.mu.Lock()
	connected := a.connected
	addr := a.address
	a.mu.Unlock()

	if !connected {
		return decimal.Zero, ErrNoWallet
	}

	wei, err := a.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance: %w", err)
	}
	return FromWei(wei), nil
}

// Disconnect clears the signer key.
func (a *EVMAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.key = nil
	a.connected = false
	return nil
}

// submit signs and sends a dynamic fee transaction and waits for its receipt.
func (a *EVMAdapter) submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (*TxReceipt, error) {
	a.mu.Lock()
	key := a.key
	from := a.address
	connected := a.connected
	a.mu.Unlock()

	if !connected {
		return nil, ErrNoWallet
	}

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}

	tipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading gas tip cap: %w", err)
	}

	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}

	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(a.cfg.ChainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       a.cfg.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(a.cfg.ChainID)), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	a.logger.Info("transaction submitted", "hash", signed.Hash().Hex(), "to", to.Hex())
	return a.waitForReceipt(ctx, signed.Hash())
}

// waitForReceipt polls for the transaction receipt until confirmation or
// timeout.
func (a *EVMAdapter) waitForReceipt(ctx context.Context, hash common.Hash) (*TxReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, a.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return &TxReceipt{
				Hash:        hash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetching receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrConfirmTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

var _ Adapter = (*EVMAdapter)(nil)
